// Package golang implements the Go stack adapter on top of go/parser.
//
// Go exports belong to a package, not a file, so a resolved import carries every
// non-test file of the package directory as peers.
package golang

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang"
)

const (
	ID             = "go"
	manifest       = "go.mod"
	goVersion      = "1.22"
	maxParseErrors = 10
)

var reMajorVersion = regexp.MustCompile(`^v[0-9]+$`)

type Adapter struct {
	structure lang.FileStructure
}

func New() *Adapter {
	return &Adapter{structure: lang.FileStructure{
		Dirs: map[lang.Role]string{
			lang.RoleModels:     "internal/model",
			lang.RoleServices:   "internal/service",
			lang.RoleRoutes:     "internal/handler",
			lang.RolePages:      "web",
			lang.RoleComponents: "web/components",
			lang.RoleUtils:      "internal/util",
		},
		SourceExtensions: []string{".go"},
		SourceGlobs:      []string{"**/*.go"},
		IgnoreGlobs:      []string{"vendor/**", "**/testdata/**"},
		Manifest:         manifest,
		DirectoryModules: true,
	}}
}

func (a *Adapter) ID() string                        { return ID }
func (a *Adapter) FileStructure() lang.FileStructure { return a.structure }

func (a *Adapter) Commands() lang.Commands {
	return lang.Commands{
		Install:   []string{"go", "mod", "tidy"},
		TypeCheck: []string{"go", "vet", "./..."},
	}
}

func parse(content, p string, mode parser.Mode) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, p, content, mode|parser.SkipObjectResolution)
	return fset, f, err
}

// ParseImports lists the imports of a Go file. Imported symbols are the exported
// selectors used through the import's local name; a dot import yields "*".
func (a *Adapter) ParseImports(content, p string) []artifact.ImportRecord {
	fset, f, _ := parse(content, p, 0)
	if f == nil {
		return nil
	}
	type entry struct {
		rec   artifact.ImportRecord
		local string
	}
	var entries []*entry
	byLocal := map[string]*entry{}
	for _, spec := range f.Imports {
		ip := strings.Trim(spec.Path.Value, "\"`")
		if ip == "" {
			continue
		}
		e := &entry{rec: artifact.ImportRecord{
			ImportingFile:   p,
			ModuleSpecifier: ip,
			SourceLine:      fset.Position(spec.Pos()).Line,
		}}
		local := defaultLocalName(ip)
		if spec.Name != nil {
			local = spec.Name.Name
		}
		switch local {
		case "_":
		case ".":
			e.rec.ImportedSymbols = []string{artifact.NamespaceSymbol}
		default:
			e.local = local
			byLocal[local] = e
		}
		entries = append(entries, e)
	}

	used := map[string]artifact.SymbolSet{}
	ast.Inspect(f, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok || byLocal[id.Name] == nil || !ast.IsExported(sel.Sel.Name) {
			return true
		}
		if used[id.Name] == nil {
			used[id.Name] = artifact.SymbolSet{}
		}
		used[id.Name].Add(sel.Sel.Name)
		return true
	})

	out := make([]artifact.ImportRecord, 0, len(entries))
	for _, e := range entries {
		if syms := used[e.local]; len(syms) > 0 {
			e.rec.ImportedSymbols = syms.Sorted()
		}
		out = append(out, e.rec)
	}
	return out
}

// defaultLocalName guesses the package name from an import path: the last element,
// skipping a /vN suffix and trimming a gopkg.in style .vN.
func defaultLocalName(ip string) string {
	parts := strings.Split(ip, "/")
	name := parts[len(parts)-1]
	if reMajorVersion.MatchString(name) && len(parts) > 1 {
		name = parts[len(parts)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	return strings.ReplaceAll(name, "-", "")
}

// ParseExports lists exported package-level declarations. Methods are skipped.
func (a *Adapter) ParseExports(content, p string) []artifact.ExportRecord {
	_, f, _ := parse(content, p, 0)
	if f == nil {
		return nil
	}
	var out []artifact.ExportRecord
	add := func(name string, kind artifact.ExportKind) {
		if ast.IsExported(name) {
			out = append(out, artifact.ExportRecord{File: p, SymbolName: name, Kind: kind})
		}
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				add(d.Name.Name, artifact.ExportValue)
			}
		case *ast.GenDecl:
			for _, s := range d.Specs {
				switch sp := s.(type) {
				case *ast.TypeSpec:
					add(sp.Name.Name, artifact.ExportType)
				case *ast.ValueSpec:
					for _, n := range sp.Names {
						add(n.Name, artifact.ExportValue)
					}
				}
			}
		}
	}
	return out
}

// ResolveImportPath maps an import path inside the main module (or a relative path)
// to the package directory. Everything else is external.
func (a *Adapter) ResolveImportPath(specifier, fromFile string, files lang.Files) lang.Resolution {
	spec := strings.TrimSpace(specifier)
	var dir string
	switch mod := modulePath(files); {
	case spec == "":
		return lang.Resolution{External: true}
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"):
		dir = path.Join(path.Dir(fromFile), spec)
		if dir == ".." || strings.HasPrefix(dir, "../") {
			return lang.Resolution{External: true}
		}
	case mod != "" && spec == mod:
		dir = "."
	case mod != "" && strings.HasPrefix(spec, mod+"/"):
		dir = strings.TrimPrefix(spec, mod+"/")
	default:
		if pkg := packageFiles(spec, files); len(pkg) > 0 {
			return lang.Resolution{Path: pkg[0], Peers: pkg[1:]}
		}
		return lang.Resolution{External: true}
	}
	if pkg := packageFiles(dir, files); len(pkg) > 0 {
		return lang.Resolution{Path: pkg[0], Peers: pkg[1:]}
	}
	name := path.Base(dir)
	if dir == "." {
		return lang.Resolution{Path: "main.go", Missing: true}
	}
	return lang.Resolution{Path: path.Join(dir, name+".go"), Missing: true}
}

func packageFiles(dir string, files lang.Files) []string {
	var out []string
	for _, p := range files.Paths() {
		if path.Dir(p) == dir && strings.HasSuffix(p, ".go") && !strings.HasSuffix(p, "_test.go") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func modulePath(files lang.Files) string {
	raw, ok := files.Get(manifest)
	if !ok {
		return ""
	}
	return modfile.ModulePath([]byte(raw))
}

func (a *Adapter) ParsePackageDependencies(m string) ([]string, error) {
	if strings.TrimSpace(m) == "" {
		return nil, nil
	}
	f, err := modfile.ParseLax(manifest, []byte(m), nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}
	out := make([]string, 0, len(f.Require))
	for _, r := range f.Require {
		out = append(out, r.Mod.Path)
	}
	sort.Strings(out)
	return out, nil
}

// PackageName maps an external import path to its likely module path. Standard
// library paths (no dot in the first element) return "".
func (a *Adapter) PackageName(specifier string) string {
	spec := strings.TrimSpace(specifier)
	parts := strings.Split(spec, "/")
	if spec == "" || strings.HasPrefix(spec, ".") || !strings.Contains(parts[0], ".") {
		return ""
	}
	n := 2
	switch parts[0] {
	case "github.com", "gitlab.com", "bitbucket.org", "golang.org":
		n = 3
	}
	if len(parts) < n {
		return spec
	}
	mod := strings.Join(parts[:n], "/")
	if len(parts) > n && reMajorVersion.MatchString(parts[n]) {
		mod += "/" + parts[n]
	}
	return mod
}

// AddDependencies records requirements that carry a canonical version. Unversioned
// dependencies are left to `go mod tidy`, which the install step runs.
func (a *Adapter) AddDependencies(m string, deps []lang.Dependency) (string, []string, error) {
	f, err := modfile.Parse(manifest, []byte(m), nil)
	if err != nil {
		return m, nil, fmt.Errorf("parse go.mod: %w", err)
	}
	have := map[string]bool{}
	for _, r := range f.Require {
		have[r.Mod.Path] = true
	}
	var added []string
	for _, d := range deps {
		if d.Name == "" || have[d.Name] || module.CanonicalVersion(d.Version) == "" {
			continue
		}
		f.AddNewRequire(d.Name, module.CanonicalVersion(d.Version), false)
		have[d.Name] = true
		added = append(added, d.Name)
	}
	if len(added) == 0 {
		return m, nil, nil
	}
	f.Cleanup()
	raw, err := f.Format()
	if err != nil {
		return m, nil, err
	}
	return string(raw), added, nil
}

// ValidateFile reports syntax errors from go/parser. Generated Go that does not parse
// is treated as fixable.
func (a *Adapter) ValidateFile(content, p string) []artifact.ValidationError {
	if !a.structure.IsSource(p) {
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return []artifact.ValidationError{{
			File: p, Message: p + " is empty", Severity: artifact.SeverityWarning, Fixable: true, Kind: artifact.KindSymbol,
		}}
	}
	_, _, err := parse(content, p, parser.AllErrors)
	if err == nil {
		return nil
	}
	list, ok := err.(scanner.ErrorList)
	if !ok {
		return []artifact.ValidationError{{
			File: p, Message: err.Error(), Severity: artifact.SeverityError, Fixable: true, Kind: artifact.KindSymbol,
		}}
	}
	var out []artifact.ValidationError
	for i, e := range list {
		if i == maxParseErrors {
			break
		}
		out = append(out, artifact.ValidationError{
			File:     p,
			Line:     e.Pos.Line,
			Message:  fmt.Sprintf("%s: syntax error: %s", p, e.Msg),
			Severity: artifact.SeverityError,
			Fixable:  true,
			Kind:     artifact.KindSymbol,
		})
	}
	return out
}

var reModuleName = regexp.MustCompile(`[^a-z0-9._/-]+`)

func (a *Adapter) Scaffold(opts lang.ScaffoldOptions) []artifact.GeneratedFile {
	name := reModuleName.ReplaceAllString(strings.ToLower(strings.TrimSpace(opts.ProjectName)), "-")
	name = strings.Trim(name, "-./")
	if name == "" {
		name = "app"
	}
	f := new(modfile.File)
	_ = f.AddModuleStmt(name)
	_ = f.AddGoStmt(goVersion)
	raw, err := f.Format()
	if err != nil {
		raw = []byte("module " + name + "\n\ngo " + goVersion + "\n")
	}
	return []artifact.GeneratedFile{
		{Path: manifest, Content: string(raw)},
		{Path: ".gitignore", Content: "bin/\n"},
	}
}
