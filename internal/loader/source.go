package loader

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Source lists and opens raw input files.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource serves every regular file below Root.
type DirSource struct {
	Root string
}

// List returns file paths relative to Root in lexical order.
func (d DirSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// SourceName returns the slash-separated path of name relative to Root, so
// files sharing a base name in different directories stay distinct.
func (d DirSource) SourceName(name string) string {
	return path.Clean(filepath.ToSlash(name))
}

// Open opens name relative to Root.
func (d DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.Root, name))
}

// FileList serves an explicit list of paths. Missing files surface as Open
// errors.
type FileList []string

// List implements Source.
func (f FileList) List(context.Context) ([]string, error) {
	return append([]string(nil), f...), nil
}

// Open implements Source.
func (FileList) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(name)
}
