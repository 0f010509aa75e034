package synth

import (
	"path"
	"sort"
	"strings"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
)

// Route normalizes the paths of returned files and moves misplaced ones.
//
// known maps paths already present in the file set to their content. A bare file
// name sharing its name with exactly one expected path is moved there, otherwise
// it is placed by its role in the layout. A file with a directory is only moved
// onto a same-named expected path when that directory is unknown, the reply does
// not fill the target itself and the target does not already hold other content.
// Entry names like index are never moved by name. Files with unusable paths are
// dropped. Later duplicates win.
func Route(files []artifact.GeneratedFile, expected []string, known map[string]string, fs lang.FileStructure) []artifact.GeneratedFile {
	want := map[string]bool{}
	byName := map[string][]string{}
	for _, e := range expected {
		p, err := fileset.NormalizePath(e)
		if err != nil {
			continue
		}
		want[p] = true
		byName[stem(p)] = append(byName[stem(p)], p)
	}
	dirs := map[string]bool{}
	for k := range known {
		if p, err := fileset.NormalizePath(k); err == nil {
			dirs[path.Dir(p)] = true
		}
	}

	norm := make([]artifact.GeneratedFile, 0, len(files))
	direct := map[string]bool{}
	for _, f := range files {
		p, err := fileset.NormalizePath(f.Path)
		if err != nil {
			continue
		}
		norm = append(norm, artifact.GeneratedFile{Path: p, Content: f.Content})
		if strings.Contains(p, "/") {
			direct[p] = true
		}
	}

	out := map[string]string{}
	for _, f := range norm {
		p := f.Path
		if !want[p] {
			cand := ""
			if cands := byName[stem(p)]; len(cands) == 1 && !entryNames[stem(p)] {
				cand = cands[0]
			}
			switch {
			case !strings.Contains(p, "/"):
				if cand != "" {
					p = cand
				} else {
					p = fs.Route(p)
				}
			case cand != "" && !dirs[path.Dir(p)] && !direct[cand]:
				if cur, ok := known[cand]; !ok || cur == f.Content {
					p = cand
				}
			}
		}
		out[p] = f.Content
	}

	paths := make([]string, 0, len(out))
	for p := range out {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	routed := make([]artifact.GeneratedFile, 0, len(paths))
	for _, p := range paths {
		routed = append(routed, artifact.GeneratedFile{Path: p, Content: out[p]})
	}
	return routed
}

var entryNames = map[string]bool{"index": true, "main": true, "mod": true, "app": true}

func stem(p string) string {
	base := path.Base(p)
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}
