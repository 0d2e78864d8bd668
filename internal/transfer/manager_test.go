package transfer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lanternweb/download_manager/internal/events"
	"github.com/lanternweb/download_manager/internal/notifier"
	"github.com/lanternweb/download_manager/internal/savepath"
	"github.com/lanternweb/download_manager/internal/storage/jsonfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_BeginTransferRejectsEmptyChain(t *testing.T) {
	f := newRegistryFixture(t)
	m := NewManager(f.registry)

	_, err := m.BeginTransfer(context.Background(), BeginRequest{})
	require.ErrorIs(t, err, ErrEmptyURLChain)
	assert.Empty(t, f.observer.all())
}

func TestManager_BeginTransferNamesFile(t *testing.T) {
	f := newRegistryFixture(t)
	m := NewManager(f.registry)
	ctx := context.Background()

	id, err := m.BeginTransfer(ctx, BeginRequest{
		URLChain:   []string{"https://example.com/get?id=1", "https://cdn.example.com/files/report%20v2.pdf"},
		TotalBytes: 10,
	})
	require.NoError(t, err)

	rec, ok := f.registry.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, "report v2.pdf", rec.Filename)

	id, err = m.BeginTransfer(ctx, BeginRequest{
		URLChain:     []string{"https://example.com/x"},
		FilenameHint: `attachment; filename="hinted.zip"`,
		TotalBytes:   -1,
	})
	require.NoError(t, err)

	rec, _ = f.registry.Snapshot(id)
	assert.Equal(t, "hinted.zip", rec.Filename)
	assert.Equal(t, int64(-1), rec.TotalBytes)
}

func TestManager_BeginTransferKeepsZeroSize(t *testing.T) {
	f := newRegistryFixture(t)
	m := NewManager(f.registry)

	id, err := m.BeginTransfer(context.Background(), BeginRequest{URLChain: []string{"https://example.com/empty.txt"}})
	require.NoError(t, err)

	rec, ok := f.registry.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, int64(0), rec.TotalBytes)
}

func TestManager_SavePath(t *testing.T) {
	f := newRegistryFixture(t)
	m := NewManager(f.registry)
	ctx := context.Background()

	id, err := m.BeginTransfer(ctx, BeginRequest{URLChain: []string{"https://example.com/a.bin"}, TotalBytes: 10})
	require.NoError(t, err)

	assert.Empty(t, m.SavePath(id))

	m.ByteProgress(ctx, id, 1, 10, "progressing")
	assert.Equal(t, filepath.Join(f.dir, "a.bin"), m.SavePath(id))
	assert.Empty(t, m.SavePath("missing"))
}

func TestManager_TransferFinishedMapsLabels(t *testing.T) {
	tests := []struct {
		name   string
		cancel bool
		label  string
		want   string
	}{
		{name: "completed", label: "completed", want: "completed"},
		{name: "done synonym", label: "done", want: "completed"},
		{name: "transport cancelled", label: "canceled", want: "cancelled"},
		{name: "failure", label: "network_failed", want: "interrupted"},
		{name: "failure after cancel", cancel: true, label: "network_failed", want: "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistryFixture(t)
			m := NewManager(f.registry)
			ctx := context.Background()

			id, err := m.BeginTransfer(ctx, BeginRequest{
				URLChain: []string{"https://example.com/a.bin"},
				Handle:   &fakeHandle{},
			})
			require.NoError(t, err)

			if tt.cancel {
				require.True(t, f.registry.Cancel(ctx, id))
			}

			require.True(t, m.TransferFinished(ctx, id, tt.label))
			assert.False(t, m.TransferFinished(ctx, id, tt.label))

			complete := f.observer.named(events.NameComplete)
			require.Len(t, complete, 1)
			assert.Equal(t, tt.want, complete[0].Payload.(events.Complete).State)
		})
	}
}

func TestManager_CompletedTransferLandsInHistory(t *testing.T) {
	dir := t.TempDir()
	history := jsonfile.NewHistoryRepository(filepath.Join(dir, "history.json"), 50)
	n := notifier.NewEventNotifier(16, history, nil)
	registry := NewRegistry(dir, savepath.NewResolver(), n, WithIDGenerator(func() string { return "D1" }))
	m := NewManager(registry)
	ctx := context.Background()

	id, err := m.BeginTransfer(ctx, BeginRequest{URLChain: []string{"https://example.com/f.bin"}, TotalBytes: 1000})
	require.NoError(t, err)
	require.Equal(t, "D1", id)

	require.True(t, m.ByteProgress(ctx, id, 500, 1000, "progressing"))
	require.True(t, m.TransferFinished(ctx, id, "completed"))

	var names []string

	for len(n.Events()) > 0 {
		names = append(names, (<-n.Events()).Name)
	}

	assert.Equal(t, []string{events.NameStarted, events.NameProgress, events.NameComplete}, names)
	assert.Equal(t, 0, registry.Len())

	records, err := history.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "D1", records[0].ID)
	assert.Equal(t, "f.bin", records[0].Filename)
	assert.Equal(t, filepath.Join(dir, "f.bin"), records[0].Path)
	assert.Equal(t, int64(500), records[0].TotalBytes)
	assert.Equal(t, "completed", records[0].State)
}
