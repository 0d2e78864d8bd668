package savepath

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaim_IsSingleUse(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://a/x", "/tmp/a")

	path, ok := r.Claim([]string{"https://a/x"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/a", path)

	path, ok = r.Claim([]string{"https://a/x"})
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestClaim_OriginBeforeFinal(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://orig", "/tmp/p")

	path, ok := r.Claim([]string{"https://orig", "https://final"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/p", path)
}

func TestClaim_OriginWinsOverFinalAndKeepsTheOther(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://orig", "/tmp/orig")
	r.Reserve("https://final", "/tmp/final")

	path, ok := r.Claim([]string{"https://orig", "https://final"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/orig", path)
	assert.Equal(t, 1, r.Len())

	path, ok = r.Claim([]string{"https://final"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/final", path)
}

func TestClaim_FinalURLMatches(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://final", "/tmp/f")

	path, ok := r.Claim([]string{"https://orig", "https://final"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/f", path)
}

func TestClaim_NoMatch(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://other", "/tmp/o")

	_, ok := r.Claim([]string{"https://a", "https://b"})
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Claim(nil)
	assert.False(t, ok)
}

func TestReserve_LastWriterWins(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://a/x", "/tmp/first")
	r.Reserve("https://a/x", "/tmp/second")

	assert.Equal(t, 1, r.Len())

	path, ok := r.Claim([]string{"https://a/x"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/second", path)
}

func TestReserve_IgnoresEmpty(t *testing.T) {
	r := NewResolver()
	r.Reserve("", "/tmp/a")
	r.Reserve("https://a", "")

	assert.Zero(t, r.Len())
}

func TestFlush(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://a", "/tmp/a")
	r.Reserve("https://b", "/tmp/b")

	r.Flush()

	assert.Zero(t, r.Len())
	_, ok := r.Claim([]string{"https://a", "https://b"})
	assert.False(t, ok)
}

func TestClaim_ConcurrentClaimsHandOutPathOnce(t *testing.T) {
	r := NewResolver()
	r.Reserve("https://a/x", "/tmp/a")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, ok := r.Claim([]string{"https://a/x"}); ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, claims)
}

func TestReserve_ManyURLs(t *testing.T) {
	r := NewResolver()

	for i := 0; i < 10; i++ {
		r.Reserve(fmt.Sprintf("https://a/%d", i), fmt.Sprintf("/tmp/%d", i))
	}

	assert.Equal(t, 10, r.Len())

	path, ok := r.Claim([]string{"https://a/7"})
	assert.True(t, ok)
	assert.Equal(t, "/tmp/7", path)
	assert.Equal(t, 9, r.Len())
}
