// Package pdfstore archives rendered quote PDFs on the local filesystem.
package pdfstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrInvalidPath = errors.New("invalid pdf path")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Store writes quotes/<number>/quote-v<version>.pdf below root. Paths handed
// out by Put are relative to root.
type Store struct {
	root string
}

func New(root string) *Store {
	if root == "" {
		root = "data/pdf"
	}
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Key returns the relative archive path for a quote version.
func Key(quoteNumber string, version int) string {
	dir := unsafeChars.ReplaceAllString(quoteNumber, "_")
	if dir == "" {
		dir = "_"
	}
	return filepath.ToSlash(filepath.Join("quotes", dir, fmt.Sprintf("quote-v%d.pdf", version)))
}

// Put stores data and returns its relative path. The file is written to a
// temp name first and renamed so readers never see a partial PDF.
func (s *Store) Put(ctx context.Context, quoteNumber string, version int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if version < 1 {
		return "", fmt.Errorf("pdf version must be >= 1, got %d", version)
	}
	key := Key(quoteNumber, version)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create pdf dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".quote-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create pdf: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store pdf: %w", err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Delete removes key. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, clean), nil
}
