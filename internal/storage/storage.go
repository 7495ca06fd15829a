// Package storage keeps downloaded spreadsheets, on disk or in an S3 bucket.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

type PutInput struct {
	Filename    string
	ContentType string
	Size        int64
}

// PutResult locates a stored file. Location is what the operator is shown: a
// path for local storage, a URL for S3.
type PutResult struct {
	Key      string
	Location string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

// safeName keeps the base name and drops anything outside a conservative set.
func safeName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		return "export.xlsx"
	}
	return name
}
