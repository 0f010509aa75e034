// Package typescript implements the TypeScript/JavaScript stack adapter.
//
// Parsing is syntactic: regular expressions over comment-stripped source. It
// understands ES module imports/exports, CommonJS require/module.exports and
// one hop of `export * from` (followed by the graph builder, not here).
package typescript

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"assemblyline/internal/jsonutil"
	"assemblyline/internal/lang"
)

const ID = "typescript"

var defaultAliases = map[string]string{
	"@/": "src/",
	"~/": "src/",
}

var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true, "crypto": true,
	"dns": true, "events": true, "fs": true, "http": true, "http2": true, "https": true,
	"net": true, "os": true, "path": true, "process": true, "querystring": true,
	"readline": true, "stream": true, "string_decoder": true, "timers": true, "tls": true,
	"tty": true, "url": true, "util": true, "worker_threads": true, "zlib": true,
}

var reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)

type Adapter struct {
	structure lang.FileStructure
}

func New() *Adapter {
	return &Adapter{structure: lang.FileStructure{
		Dirs: map[lang.Role]string{
			lang.RoleModels:     "src/models",
			lang.RoleServices:   "src/services",
			lang.RoleRoutes:     "src/routes",
			lang.RolePages:      "src/pages",
			lang.RoleComponents: "src/components",
			lang.RoleUtils:      "src/lib",
		},
		SourceExtensions: []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"},
		IndexNames:       []string{"index"},
		SourceGlobs:      []string{"**/*.{ts,tsx,js,jsx,mjs,cjs}"},
		IgnoreGlobs:      []string{"node_modules/**", "dist/**", "build/**", ".next/**", "**/*.d.ts"},
		Manifest:         "package.json",
	}}
}

func (a *Adapter) ID() string                        { return ID }
func (a *Adapter) FileStructure() lang.FileStructure { return a.structure }

func (a *Adapter) Commands() lang.Commands {
	return lang.Commands{
		Install:   []string{"npm", "install", "--no-audit", "--no-fund", "--ignore-scripts"},
		TypeCheck: []string{"npx", "--no-install", "tsc", "--noEmit", "--pretty", "false"},
	}
}

// ResolveImportPath resolves relative and aliased specifiers against files. Bare
// package specifiers are external.
func (a *Adapter) ResolveImportPath(specifier, fromFile string, files lang.Files) lang.Resolution {
	spec := strings.TrimSpace(specifier)
	base, ok := a.localBase(spec, fromFile, files)
	if !ok {
		return lang.Resolution{External: true}
	}
	if p, ok := lang.ResolveCandidates(base, a.structure, files); ok {
		return lang.Resolution{Path: p}
	}
	// ESM style imports name the compiled .js file of a .ts source.
	if ext := path.Ext(base); ext == ".js" || ext == ".jsx" || ext == ".mjs" {
		if p, ok := lang.ResolveCandidates(strings.TrimSuffix(base, ext), a.structure, files); ok {
			return lang.Resolution{Path: p}
		}
	}
	return lang.Resolution{Path: a.expectedPath(base, fromFile), Missing: true}
}

func (a *Adapter) localBase(spec, fromFile string, files lang.Files) (string, bool) {
	switch {
	case spec == "":
		return "", false
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), spec == ".", spec == "..":
		joined := path.Join(path.Dir(fromFile), spec)
		if joined == ".." || strings.HasPrefix(joined, "../") {
			return "", false
		}
		return joined, true
	case strings.HasPrefix(spec, "/"):
		return path.Clean(strings.TrimLeft(spec, "/")), true
	}
	aliases := a.aliases(files)
	prefixes := make([]string, 0, len(aliases))
	for prefix := range aliases {
		prefixes = append(prefixes, prefix)
	}
	// Longest prefix wins.
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	for _, prefix := range prefixes {
		if strings.HasPrefix(spec, prefix) {
			return path.Clean(aliases[prefix] + strings.TrimPrefix(spec, prefix)), true
		}
	}
	return "", false
}

// aliases merges tsconfig compilerOptions.paths wildcard aliases over the defaults.
func (a *Adapter) aliases(files lang.Files) map[string]string {
	out := make(map[string]string, len(defaultAliases))
	for k, v := range defaultAliases {
		out[k] = v
	}
	raw, ok := files.Get("tsconfig.json")
	if !ok {
		return out
	}
	var cfg struct {
		CompilerOptions struct {
			BaseURL string              `json:"baseUrl"`
			Paths   map[string][]string `json:"paths"`
		} `json:"compilerOptions"`
	}
	cleaned := reTrailingComma.ReplaceAllString(blankComments(raw, false), "$1")
	if err := jsonutil.UnmarshalFlex([]byte(cleaned), &cfg); err != nil {
		return out
	}
	baseURL := strings.Trim(path.Clean(strings.TrimPrefix(cfg.CompilerOptions.BaseURL, "./")), ".")
	for pattern, targets := range cfg.CompilerOptions.Paths {
		if !strings.HasSuffix(pattern, "/*") || len(targets) == 0 || !strings.HasSuffix(targets[0], "*") {
			continue
		}
		target := strings.TrimSuffix(strings.TrimPrefix(targets[0], "./"), "*")
		if baseURL != "" && baseURL != "/" {
			target = path.Join(baseURL, target) + "/"
		}
		if target == "/" {
			target = ""
		}
		out[strings.TrimSuffix(pattern, "*")] = target
	}
	return out
}

// expectedPath picks the file a missing module should be created at.
func (a *Adapter) expectedPath(base, fromFile string) string {
	switch path.Ext(base) {
	case ".ts", ".tsx", ".mjs", ".cjs", ".json", ".css", ".scss", ".svg":
		return base
	case ".js":
		return strings.TrimSuffix(base, ".js") + ".ts"
	case ".jsx":
		return strings.TrimSuffix(base, ".jsx") + ".tsx"
	}
	name := path.Base(base)
	switch path.Ext(fromFile) {
	case ".js", ".mjs", ".cjs":
		return base + ".js"
	case ".jsx":
		return base + ".jsx"
	case ".tsx":
		if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return base + ".tsx"
		}
	}
	if strings.Contains(base, "/components/") || strings.Contains(base, "/pages/") {
		if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return base + ".tsx"
		}
	}
	return base + ".ts"
}

type packageManifest struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

func (a *Adapter) ParsePackageDependencies(manifest string) ([]string, error) {
	if strings.TrimSpace(manifest) == "" {
		return nil, nil
	}
	var m packageManifest
	if err := json.Unmarshal([]byte(manifest), &m); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	set := map[string]bool{}
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies, m.PeerDependencies} {
		for name := range deps {
			set[strings.TrimSpace(name)] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// PackageName returns the npm package an import specifier refers to, or "" for local
// paths, aliases and node builtins.
func (a *Adapter) PackageName(specifier string) string {
	spec := strings.TrimSpace(specifier)
	if spec == "" {
		return ""
	}
	for _, prefix := range []string{".", "/", "#", "node:", "http://", "https://", "@/", "~/"} {
		if strings.HasPrefix(spec, prefix) {
			return ""
		}
	}
	var name string
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, "/", 3)
		if len(parts) < 2 {
			return ""
		}
		name = parts[0] + "/" + parts[1]
	} else {
		name, _, _ = strings.Cut(spec, "/")
	}
	if nodeBuiltins[name] {
		return ""
	}
	return name
}

// AddDependencies inserts deps that are not declared yet and returns the updated
// manifest together with the names that were added.
func (a *Adapter) AddDependencies(manifest string, deps []lang.Dependency) (string, []string, error) {
	doc := map[string]any{}
	if strings.TrimSpace(manifest) != "" {
		if err := json.Unmarshal([]byte(manifest), &doc); err != nil {
			return manifest, nil, fmt.Errorf("parse package.json: %w", err)
		}
	} else {
		doc["name"] = "app"
		doc["private"] = true
	}
	declared, _ := a.ParsePackageDependencies(manifest)
	have := map[string]bool{}
	for _, d := range declared {
		have[d] = true
	}
	var added []string
	for _, d := range deps {
		name := strings.TrimSpace(d.Name)
		if name == "" || have[name] {
			continue
		}
		section := "dependencies"
		if d.Dev {
			section = "devDependencies"
		}
		block, _ := doc[section].(map[string]any)
		if block == nil {
			block = map[string]any{}
		}
		version := d.Version
		if version == "" {
			version = "latest"
		}
		block[name] = version
		doc[section] = block
		have[name] = true
		added = append(added, name)
	}
	if len(added) == 0 {
		return manifest, nil, nil
	}
	raw, err := jsonutil.MarshalNoEscapeIndent(doc, "", "  ")
	if err != nil {
		return manifest, nil, err
	}
	return string(raw) + "\n", added, nil
}
