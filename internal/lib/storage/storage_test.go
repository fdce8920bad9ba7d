package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Delete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), []byte("png"), 0o600))

	l := NewLocal(dir)
	require.NoError(t, l.Delete(context.Background(), "cover.png"))

	_, err := os.Stat(filepath.Join(dir, "cover.png"))
	assert.True(t, os.IsNotExist(err))

	err = l.Delete(context.Background(), "cover.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_DeleteRejectsTraversal(t *testing.T) {
	l := NewLocal(t.TempDir())

	for _, id := range []string{"", "..", "../etc/passwd", "a/b.png"} {
		err := l.Delete(context.Background(), id)
		assert.Error(t, err, id)
		assert.NotErrorIs(t, err, ErrNotFound, id)
	}
}
