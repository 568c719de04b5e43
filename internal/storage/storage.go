package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidPath = errors.New("invalid storage path")

// Storage uploads course media and returns a public URL
type Storage interface {
	Upload(ctx context.Context, dir, filename string, r io.Reader, size int64, contentType string) (*Object, error)
}

type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ObjectKey builds "{dir}/{uuid}{ext}". The directory is cleaned and may not
// escape the bucket root.
func ObjectKey(dir, filename string) (string, error) {
	dir = strings.Trim(path.Clean("/"+strings.ReplaceAll(dir, "\\", "/")), "/")
	if strings.Contains(dir, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, dir)
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	if dir == "" || dir == "." {
		return name, nil
	}
	return dir + "/" + name, nil
}
