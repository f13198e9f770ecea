package template

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultTemplateDir is where DirSource looks for templates when no
// directory is configured.
const DefaultTemplateDir = "/var/lib/groundplane/templates"

// WalkFunc is called once per file during a template tree walk, in lexical
// path order. Returning an error aborts the walk.
type WalkFunc func(relPath string, content []byte) error

// Source provides access to template trees. A template id is the name of a
// top-level directory (or key prefix) in the source; relative paths inside a
// tree always use forward slashes.
type Source interface {
	// List returns the available template ids in lexical order.
	List(ctx context.Context) ([]string, error)

	// ReadFile returns the contents of one file inside a template tree.
	// Returns ErrTemplateNotFound when the template does not exist and
	// fs.ErrNotExist when the template exists but the file does not.
	ReadFile(ctx context.Context, templateID, relPath string) ([]byte, error)

	// Walk visits every file in a template tree in lexical path order.
	Walk(ctx context.Context, templateID string, fn WalkFunc) error
}

// DirSource serves templates from subdirectories of a local directory.
type DirSource struct {
	root string
}

var _ Source = (*DirSource)(nil)

// NewDirSource creates a source rooted at dir. An empty dir falls back to
// DefaultTemplateDir. The directory is not required to exist until first
// use.
func NewDirSource(dir string) *DirSource {
	if dir == "" {
		dir = DefaultTemplateDir
	}
	return &DirSource{root: dir}
}

// List returns the template directory names in lexical order.
func (s *DirSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read template directory %s: %w", s.root, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadFile returns the contents of relPath inside the template's directory.
func (s *DirSource) ReadFile(ctx context.Context, templateID, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := s.templateDir(templateID)
	if err != nil {
		return nil, err
	}

	clean, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("template %s: read %s: %w", templateID, clean, err)
	}
	return data, nil
}

// Walk visits every regular file under the template's directory.
func (s *DirSource) Walk(ctx context.Context, templateID string, fn WalkFunc) error {
	dir, err := s.templateDir(templateID)
	if err != nil {
		return err
	}

	root := os.DirFS(dir)
	return fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}

		content, err := fs.ReadFile(root, p)
		if err != nil {
			return fmt.Errorf("template %s: read %s: %w", templateID, p, err)
		}
		return fn(p, content)
	})
}

// templateDir resolves and checks the template's directory.
func (s *DirSource) templateDir(templateID string) (string, error) {
	if templateID == "" || strings.ContainsAny(templateID, "/\\") {
		return "", fmt.Errorf("%w: invalid template id %q", ErrTemplateNotFound, templateID)
	}

	dir := filepath.Join(s.root, templateID)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return "", fmt.Errorf("failed to stat template directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	return dir, nil
}

// cleanRelPath normalizes a slash-separated relative path and rejects
// traversal outside the template tree.
func cleanRelPath(relPath string) (string, error) {
	clean := strings.TrimPrefix(relPath, "/")
	if clean == "" {
		return "", fmt.Errorf("empty template file path")
	}
	for _, seg := range strings.Split(clean, "/") {
		switch seg {
		case "", ".", "..":
			return "", fmt.Errorf("invalid template file path %q", relPath)
		}
	}
	return clean, nil
}
