package filename

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		hint     string
		urlChain []string
		mimeType string
		want     string
	}{
		{
			name:     "bare hint",
			hint:     "f.bin",
			urlChain: []string{"https://site/other.bin"},
			want:     "f.bin",
		},
		{
			name:     "content disposition hint",
			hint:     `attachment; filename="report.pdf"`,
			urlChain: []string{"https://site/download?id=1"},
			want:     "report.pdf",
		},
		{
			name:     "hint with directories is reduced to its base",
			hint:     "../../etc/passwd",
			urlChain: []string{"https://site/x"},
			want:     "passwd",
		},
		{
			name:     "final url path",
			urlChain: []string{"https://site/click", "https://cdn.site/files/archive.tar.gz"},
			want:     "archive.tar.gz",
		},
		{
			name:     "escaped url path",
			urlChain: []string{"https://site/my%20file.txt"},
			want:     "my file.txt",
		},
		{
			name:     "falls back to origin when final has no name",
			urlChain: []string{"https://site/setup.exe", "https://cdn.site/"},
			want:     "setup.exe",
		},
		{
			name:     "synthesized with mime extension",
			urlChain: []string{"https://site/"},
			mimeType: "application/pdf",
			want:     "download-20240309-140507.pdf",
		},
		{
			name:     "synthesized with mime parameters",
			urlChain: []string{"::not a url"},
			mimeType: "image/png; charset=binary",
			want:     "download-20240309-140507.png",
		},
		{
			name: "synthesized without mime",
			want: "download-20240309-140507",
		},
		{
			name:     "dot hint ignored",
			hint:     "..",
			urlChain: []string{"https://site/a.zip"},
			want:     "a.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.hint, tt.urlChain, tt.mimeType, now))
		})
	}
}

func TestExtensionForMIME(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionForMIME("application/pdf"))
	assert.Equal(t, ".png", ExtensionForMIME("image/png"))
	assert.Empty(t, ExtensionForMIME(""))
	assert.Empty(t, ExtensionForMIME("not a mime"))
	assert.Empty(t, ExtensionForMIME("application/x-definitely-not-registered"))
}

func TestResolve_NeverEmpty(t *testing.T) {
	for _, chain := range [][]string{nil, {""}, {"https://"}, {"%%"}} {
		name := Resolve("", chain, "", now)
		assert.True(t, strings.HasPrefix(name, "download-"), name)
	}
}
