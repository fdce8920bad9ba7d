// Package storage deletes uploaded files.
//
// Uploads themselves are handled elsewhere; background jobs only need to
// remove files that are no longer referenced.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Delete when the file does not exist.
var ErrNotFound = errors.New("file not found")

// Provider is a file store.
type Provider interface {
	Delete(ctx context.Context, fileID string) error
}

// Local stores files as plain files under one directory.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

// Delete removes fileID from the upload directory. File ids are bare
// names; anything that would escape the directory is rejected.
func (l *Local) Delete(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := l.resolve(fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(ErrNotFound, "delete %s", fileID)
		}
		return errors.Wrapf(err, "delete %s", fileID)
	}
	return nil
}

func (l *Local) resolve(fileID string) (string, error) {
	name := strings.TrimSpace(fileID)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errors.Errorf("invalid file id %q", fileID)
	}
	return filepath.Join(l.root, name), nil
}
