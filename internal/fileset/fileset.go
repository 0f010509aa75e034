package fileset

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"assemblyline/internal/artifact"
)

var ErrInvalidPath = errors.New("fileset: invalid path")

// NormalizePath converts p into a clean, repo-relative, forward-slash path.
func NormalizePath(p string) (string, error) {
	raw := strings.TrimSpace(p)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	raw = strings.ReplaceAll(raw, `\`, "/")
	if len(raw) >= 2 && raw[1] == ':' {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	raw = strings.TrimLeft(raw, "/")
	clean := path.Clean(raw)
	if clean == "." || clean == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s escapes the project root", ErrInvalidPath, p)
	}
	return clean, nil
}

// FileSet is the mutable working set of one run. It is not safe for concurrent mutation.
type FileSet struct {
	files map[string]string
}

func New() *FileSet {
	return &FileSet{files: make(map[string]string)}
}

// FromFiles builds a FileSet, later entries overwriting earlier ones.
func FromFiles(files []artifact.GeneratedFile) (*FileSet, error) {
	s := New()
	for _, f := range files {
		if err := s.Set(f.Path, f.Content); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileSet) Get(p string) (string, bool) {
	key, err := NormalizePath(p)
	if err != nil {
		return "", false
	}
	c, ok := s.files[key]
	return c, ok
}

func (s *FileSet) Has(p string) bool {
	_, ok := s.Get(p)
	return ok
}

func (s *FileSet) Set(p, content string) error {
	key, err := NormalizePath(p)
	if err != nil {
		return err
	}
	s.files[key] = content
	return nil
}

// Delete removes p and reports whether it was present.
func (s *FileSet) Delete(p string) bool {
	key, err := NormalizePath(p)
	if err != nil {
		return false
	}
	if _, ok := s.files[key]; !ok {
		return false
	}
	delete(s.files, key)
	return true
}

func (s *FileSet) Len() int { return len(s.files) }

// Paths returns every path in lexical order.
func (s *FileSet) Paths() []string {
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Files returns a sorted snapshot of the set.
func (s *FileSet) Files() []artifact.GeneratedFile {
	paths := s.Paths()
	out := make([]artifact.GeneratedFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, artifact.GeneratedFile{Path: p, Content: s.files[p]})
	}
	return out
}

func (s *FileSet) Clone() *FileSet {
	out := &FileSet{files: make(map[string]string, len(s.files))}
	for k, v := range s.files {
		out.files[k] = v
	}
	return out
}

// Index groups paths by their directory ("." for the root).
func (s *FileSet) Index() map[string][]string {
	idx := make(map[string][]string)
	for _, p := range s.Paths() {
		dir := path.Dir(p)
		idx[dir] = append(idx[dir], p)
	}
	return idx
}

// Siblings lists the files that live directly in dir.
func (s *FileSet) Siblings(dir string) []string {
	dir = strings.Trim(strings.ReplaceAll(dir, `\`, "/"), "/")
	if dir == "" {
		dir = "."
	}
	return s.Index()[dir]
}

// Write stores generated files and returns the normalized paths that were written.
// Files with invalid paths are skipped and reported in the error.
func (s *FileSet) Write(files []artifact.GeneratedFile) ([]string, error) {
	var (
		written []string
		errs    []error
	)
	for _, f := range files {
		key, err := NormalizePath(f.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.files[key] = f.Content
		written = append(written, key)
	}
	return written, errors.Join(errs...)
}

// ApplyFragments applies fragments in order: the last write to a path wins and a delete
// removes any earlier entry. Malformed fragments are skipped and returned as input errors.
func (s *FileSet) ApplyFragments(frags []artifact.Fragment) []artifact.ValidationError {
	var inputErrs []artifact.ValidationError
	report := func(i int, f artifact.Fragment, msg string) {
		inputErrs = append(inputErrs, artifact.ValidationError{
			File:     f.Path,
			Message:  fmt.Sprintf("fragment %d: %s", i, msg),
			Severity: artifact.SeverityError,
			Kind:     artifact.KindInput,
		})
	}
	for i, f := range frags {
		key, err := NormalizePath(f.Path)
		if err != nil {
			report(i, f, err.Error())
			continue
		}
		action, err := f.NormalizedAction()
		if err != nil {
			report(i, f, err.Error())
			continue
		}
		switch action {
		case artifact.ActionDelete:
			delete(s.files, key)
		default:
			if f.Content == nil {
				report(i, f, fmt.Sprintf("%s of %s has no content", action, key))
				continue
			}
			s.files[key] = *f.Content
		}
	}
	return inputErrs
}
