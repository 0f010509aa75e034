// Package dedup collapses file variants that name the same module: a singular and a
// plural form (user.ts / users.ts) or two casings (User.ts / user.ts) in one directory.
// Only files with the same extension are compared, so config.ts and config.js both stay.
package dedup

import (
	"log"
	"path"
	"regexp"
	"sort"
	"strings"

	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
	"assemblyline/internal/symgraph"
)

// Removal records one deleted variant and the file that replaced it.
type Removal struct {
	Removed string `json:"removed"`
	Kept    string `json:"kept"`
}

type Result struct {
	Removals []Removal
	// Rewritten lists importers whose specifiers were pointed at a kept file.
	Rewritten []string
}

// Key is the grouping key of a file stem: lower-cased with one trailing pluralizing
// "s" removed. A trailing "ss" is kept.
func Key(stem string) string {
	k := strings.ToLower(stem)
	if len(k) > 1 && strings.HasSuffix(k, "s") && !strings.HasSuffix(k, "ss") {
		k = k[:len(k)-1]
	}
	return k
}

func stemOf(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Run deletes duplicate variants from files and rewrites the importers of every
// deleted file. The kept file of a group is the singular form; ties go to the file
// with more importers, then to the smallest path, so the outcome does not depend
// on which variant was written first.
func Run(files *fileset.FileSet, adapter lang.Adapter, logf func(format string, args ...any)) Result {
	if logf == nil {
		logf = log.Printf
	}
	fs := adapter.FileStructure()
	var res Result
	if fs.DirectoryModules {
		return res
	}

	g := symgraph.Build(files, adapter)
	importers := map[string]int{}
	for _, e := range g.Edges {
		if e.Local() && !e.Resolution.Missing {
			importers[e.Resolution.Path]++
		}
	}

	dirs := files.Index()
	dirNames := make([]string, 0, len(dirs))
	for d := range dirs {
		dirNames = append(dirNames, d)
	}
	sort.Strings(dirNames)

	replaced := map[string]string{}
	for _, dir := range dirNames {
		groups := map[string][]string{}
		for _, p := range dirs[dir] {
			if fs.IsSource(p) {
				k := Key(stemOf(p)) + strings.ToLower(path.Ext(p))
				groups[k] = append(groups[k], p)
			}
		}
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			members := groups[k]
			if len(members) < 2 {
				continue
			}
			kept := pickKept(members, importers)
			for _, p := range members {
				if p == kept {
					continue
				}
				files.Delete(p)
				replaced[p] = kept
				res.Removals = append(res.Removals, Removal{Removed: p, Kept: kept})
				logf("dedup: removed %s in favour of %s", p, kept)
			}
		}
	}
	if len(replaced) == 0 {
		return res
	}
	res.Rewritten = rewriteImporters(files, g, replaced, logf)
	return res
}

func isSingular(p string) bool {
	stem := stemOf(p)
	return strings.EqualFold(stem, Key(stem))
}

func pickKept(members []string, importers map[string]int) string {
	sorted := append([]string(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if sa, sb := isSingular(a), isSingular(b); sa != sb {
			return sa
		}
		if importers[a] != importers[b] {
			return importers[a] > importers[b]
		}
		return a < b
	})
	return sorted[0]
}

// rewriteImporters points specifiers that resolved to a removed file at its
// replacement by renaming the last path segment of the specifier.
func rewriteImporters(files *fileset.FileSet, g *symgraph.Graph, replaced map[string]string, logf func(string, ...any)) []string {
	edits := map[string]map[string]string{}
	for _, e := range g.Edges {
		kept, ok := replaced[e.Resolution.Path]
		if !ok || !e.Local() || e.Resolution.Missing {
			continue
		}
		if _, gone := replaced[e.From]; gone {
			continue
		}
		spec := e.Import.ModuleSpecifier
		next := renameSpecifier(spec, stemOf(e.Resolution.Path), stemOf(kept))
		if next == spec {
			continue
		}
		if edits[e.From] == nil {
			edits[e.From] = map[string]string{}
		}
		edits[e.From][spec] = next
	}

	var rewritten []string
	for from, m := range edits {
		content, ok := files.Get(from)
		if !ok {
			continue
		}
		for old, next := range m {
			content = replaceSpecifier(content, old, next)
			logf("dedup: %s now imports %q instead of %q", from, next, old)
		}
		_ = files.Set(from, content)
		rewritten = append(rewritten, from)
	}
	sort.Strings(rewritten)
	return rewritten
}

func renameSpecifier(spec, oldStem, newStem string) string {
	dir, last := path.Split(spec)
	ext := path.Ext(last)
	if strings.TrimSuffix(last, ext) != oldStem {
		return spec
	}
	return dir + newStem + ext
}

func replaceSpecifier(content, old, next string) string {
	re := regexp.MustCompile("(['\"`])" + regexp.QuoteMeta(old) + "(['\"`])")
	return re.ReplaceAllString(content, "${1}"+strings.ReplaceAll(next, "$", "$$")+"${2}")
}
