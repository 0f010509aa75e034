package lang

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type Role string

const (
	RoleModels     Role = "models"
	RoleServices   Role = "services"
	RoleRoutes     Role = "routes"
	RolePages      Role = "pages"
	RoleComponents Role = "components"
	RoleUtils      Role = "utils"
)

// FileStructure is the canonical layout of a stack.
type FileStructure struct {
	Dirs map[Role]string
	// SourceExtensions are tried in order when resolving extensionless specifiers.
	SourceExtensions []string
	// IndexNames are directory entry points without extension ("index").
	IndexNames []string
	// SourceGlobs and IgnoreGlobs are doublestar patterns deciding what counts as source.
	SourceGlobs []string
	IgnoreGlobs []string
	Manifest    string
	// DirectoryModules is set when a directory, not a file, is the unit of import (Go).
	// Such stacks legitimately split one module over several files and are not deduplicated.
	DirectoryModules bool
}

// IsSource reports whether p is a source file of the stack.
func (fs FileStructure) IsSource(p string) bool {
	for _, g := range fs.IgnoreGlobs {
		if ok, _ := doublestar.Match(g, p); ok {
			return false
		}
	}
	for _, g := range fs.SourceGlobs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
	}
	return false
}

// Dir returns the directory for role, falling back to the utils directory.
func (fs FileStructure) Dir(role Role) string {
	if d, ok := fs.Dirs[role]; ok && d != "" {
		return d
	}
	return fs.Dirs[RoleUtils]
}

var roleHints = []struct {
	role  Role
	hints []string
}{
	{RoleRoutes, []string{"route", "router", "controller", "handler", "endpoint"}},
	{RoleServices, []string{"service", "repository", "repo", "client", "api"}},
	{RoleModels, []string{"model", "schema", "entity", "types", "dto"}},
	{RolePages, []string{"page", "view", "screen"}},
	{RoleComponents, []string{"component", "widget", "button", "card", "modal"}},
}

// RoleFor guesses the role of a file name from common naming conventions.
func (fs FileStructure) RoleFor(name string) Role {
	base := strings.ToLower(path.Base(name))
	for _, rh := range roleHints {
		for _, h := range rh.hints {
			if strings.Contains(base, h) {
				return rh.role
			}
		}
	}
	return RoleUtils
}

// Route places a bare file name into the directory of its role. Paths that already
// carry a directory are returned unchanged.
func (fs FileStructure) Route(p string) string {
	p = strings.TrimLeft(strings.ReplaceAll(p, `\`, "/"), "/")
	if strings.Contains(p, "/") {
		return p
	}
	dir := fs.Dir(fs.RoleFor(p))
	if dir == "" {
		return p
	}
	return path.Join(dir, p)
}

// ResolveCandidates tries base as an exact path, then with each extension appended,
// then as a directory containing an index file.
func ResolveCandidates(base string, fs FileStructure, files Files) (string, bool) {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return "", false
	}
	if files.Has(base) {
		return base, true
	}
	for _, ext := range fs.SourceExtensions {
		if files.Has(base + ext) {
			return base + ext, true
		}
	}
	for _, idx := range fs.IndexNames {
		for _, ext := range fs.SourceExtensions {
			cand := path.Join(base, idx+ext)
			if files.Has(cand) {
				return cand, true
			}
		}
	}
	return "", false
}
