package artifact

import (
	"sort"
	"strings"
)

// ImportRecord is one import statement found in a source file.
type ImportRecord struct {
	ImportingFile   string   `json:"importing_file"`
	ImportedSymbols []string `json:"imported_symbols,omitempty"`
	ModuleSpecifier string   `json:"module_specifier"`
	SourceLine      int      `json:"source_line"`
}

const (
	// DefaultSymbol marks a default import. It never counts as a missing export.
	DefaultSymbol = "default"
	// NamespaceSymbol marks a namespace import (`* as ns`) or a star re-export.
	NamespaceSymbol = "*"
)

// NamedSymbols returns the imported names that must be satisfied by a named export.
func (r ImportRecord) NamedSymbols() []string {
	out := make([]string, 0, len(r.ImportedSymbols))
	for _, s := range r.ImportedSymbols {
		if s == "" || s == DefaultSymbol || s == NamespaceSymbol {
			continue
		}
		out = append(out, s)
	}
	return out
}

type ExportKind string

const (
	ExportValue   ExportKind = "value"
	ExportType    ExportKind = "type"
	ExportDefault ExportKind = "default"
)

// ExportRecord is one exported symbol. Identity is by name only.
// A star re-export is carried with SymbolName "*" and From set to the specifier.
type ExportRecord struct {
	File       string     `json:"file"`
	SymbolName string     `json:"symbol_name"`
	Kind       ExportKind `json:"kind"`
	From       string     `json:"from,omitempty"`
}

// IsStar reports whether the record re-exports everything from another module.
func (e ExportRecord) IsStar() bool {
	return e.SymbolName == NamespaceSymbol && e.From != ""
}

// MissingFileSpec describes a file that importers expect but the FileSet lacks.
type MissingFileSpec struct {
	ExpectedPath    string   `json:"expected_path"`
	RequiredExports []string `json:"required_exports"`
	ImportedBy      []string `json:"imported_by"`
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type ErrorKind string

const (
	// KindSymbol covers unresolved imports, missing exports and per-file adapter checks.
	KindSymbol ErrorKind = "symbol"
	// KindToolchain covers diagnostics produced by the external compiler.
	KindToolchain ErrorKind = "toolchain"
	// KindInput covers malformed fragments.
	KindInput ErrorKind = "input"
)

type ValidationError struct {
	File     string    `json:"file"`
	Line     int       `json:"line,omitempty"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Fixable  bool      `json:"fixable"`
	Kind     ErrorKind `json:"kind"`
	Code     string    `json:"code,omitempty"`
}

// CountErrors returns how many entries have error severity.
func CountErrors(errs []ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.Severity == SeverityError {
			n++
		}
	}
	return n
}

// SortErrors orders errors by file, line and message so reports are stable.
func SortErrors(errs []ValidationError) {
	sort.SliceStable(errs, func(i, j int) bool {
		a, b := errs[i], errs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Message < b.Message
	})
}

// GeneratedFile is a path/content pair returned by the synthesizer or read back from storage.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SymbolSet is a small ordered-on-demand string set.
type SymbolSet map[string]struct{}

func (s SymbolSet) Add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
}

func (s SymbolSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s SymbolSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
