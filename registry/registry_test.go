package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orian/trendlabel/models"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
}

func TestListSkipsMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "gru.pth"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ListFile), []byte(
		"Model Name,Model File,Remarks,Short Description\n"+
			"GRU model v1,gru.pth,\"trained on 2024, lead II\",baseline\n"+
			"Ghost,ghost.pth,,\n"+
			",orphan.pth,,\n"), 0o644))

	r := New(dir, nil)
	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Model{
		Name:             "GRU model v1",
		File:             filepath.Join(dir, "gru.pth"),
		Remarks:          "trained on 2024, lead II",
		ShortDescription: "baseline",
	}, list[0])

	loc, err := r.Resolve("GRU model v1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gru.pth"), loc)

	_, err = r.Resolve("Ghost")
	assert.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestListMissingRegistry(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "models_to_use"), nil)
	list, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = r.Resolve("anything")
	assert.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestRegisterCreatesHeaderAndInvalidates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models_to_use")
	r := New(dir, nil)

	list, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	touch(t, filepath.Join(dir, "a.pth"))
	require.NoError(t, r.Register(Registration{Name: "A", File: "a.pth", Remarks: "first, of many"}))
	touch(t, filepath.Join(dir, "b.pth"))
	require.NoError(t, r.Register(Registration{Name: "B", File: "b.pth"}))

	raw, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Equal(t, "Model Name,Model File,Remarks,Short Description\n"+
		"A,a.pth,\"first, of many\",\n"+
		"B,b.pth,,\n", string(raw))

	list, err = r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first, of many", list[0].Remarks)
}

func TestRegisterValidation(t *testing.T) {
	r := New(t.TempDir(), nil)

	assert.Error(t, r.Register(Registration{File: "a.pth"}))
	assert.Error(t, r.Register(Registration{Name: "A"}))
	assert.ErrorIs(t, r.Register(Registration{Name: "A", File: "../a.pth"}), models.ErrPath)
	assert.ErrorIs(t, r.Register(Registration{Name: "A", File: ".hidden"}), models.ErrPath)
	assert.NoFileExists(t, r.Path())
}

func TestListIsCachedUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.pth"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ListFile), []byte("Model Name,Model File,Remarks,Short Description\nA,a.pth,,\n"), 0o644))

	r := New(dir, nil)
	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.pth")))
	list, err = r.List()
	require.NoError(t, err)
	assert.Len(t, list, 1, "served from cache")

	r.Invalidate()
	list, err = r.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWatchInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)

	list, err := r.List()
	require.NoError(t, err)
	require.Empty(t, list)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	touch(t, filepath.Join(dir, "a.pth"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ListFile), []byte("Model Name,Model File,Remarks,Short Description\nA,a.pth,,\n"), 0o644))

	assert.Eventually(t, func() bool {
		list, err := r.List()
		return err == nil && len(list) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
