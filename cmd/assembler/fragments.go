package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"assemblyline/internal/artifact"
	"assemblyline/internal/workspace"
)

// fragmentFile is the input document. A bare list of fragments is accepted too.
type fragmentFile struct {
	Stack       string              `json:"stack" yaml:"stack"`
	ProjectName string              `json:"project_name" yaml:"project_name"`
	Fragments   []artifact.Fragment `json:"fragments" yaml:"fragments"`
}

// loadFragments reads path ("-" for stdin). Files ending in .yaml or .yml are YAML,
// everything else JSON.
func loadFragments(path string, stdin io.Reader) (fragmentFile, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fragmentFile{}, fmt.Errorf("read fragments: %w", err)
	}

	var doc fragmentFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var list []artifact.Fragment
		if yaml.Unmarshal(raw, &list) == nil {
			return fragmentFile{Fragments: list}, nil
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fragmentFile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			var list []artifact.Fragment
			if err := json.Unmarshal(raw, &list); err != nil {
				return fragmentFile{}, fmt.Errorf("parse %s: %w", path, err)
			}
			return fragmentFile{Fragments: list}, nil
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fragmentFile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if len(doc.Fragments) == 0 {
		return fragmentFile{}, fmt.Errorf("%s has no fragments", path)
	}
	return doc, nil
}

// writeTree writes files under dir.
func writeTree(dir string, files []artifact.GeneratedFile) error {
	for _, f := range files {
		full := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := workspace.WriteAtomic(full, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
