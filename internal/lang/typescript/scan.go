package typescript

import "strings"

// blankComments replaces comment bodies with spaces while keeping newlines and
// string literals intact, so regex offsets still map to the original lines.
// When blankStrings is set, string and template literal bodies are blanked as well.
func blankComments(src string, blankStrings bool) string {
	b := []byte(src)
	n := len(b)
	for i := 0; i < n; i++ {
		c := b[i]
		switch {
		case c == '/' && i+1 < n && b[i+1] == '/':
			for i < n && b[i] != '\n' {
				b[i] = ' '
				i++
			}
		case c == '/' && i+1 < n && b[i+1] == '*':
			b[i], b[i+1] = ' ', ' '
			i += 2
			for i < n && !(b[i] == '*' && i+1 < n && b[i+1] == '/') {
				if b[i] != '\n' {
					b[i] = ' '
				}
				i++
			}
			if i < n {
				b[i] = ' '
				if i+1 < n {
					b[i+1] = ' '
				}
				i++
			}
		case c == '\'' || c == '"' || c == '`':
			quote := c
			i++
			for i < n && b[i] != quote {
				if b[i] == '\\' && i+1 < n {
					if blankStrings {
						b[i] = ' '
						if b[i+1] != '\n' {
							b[i+1] = ' '
						}
					}
					i += 2
					continue
				}
				if b[i] == '\n' && quote != '`' {
					break
				}
				if blankStrings && b[i] != '\n' {
					b[i] = ' '
				}
				i++
			}
		}
	}
	return string(b)
}

// lineAt returns the 1-based line number of offset off in s.
func lineAt(s string, off int) int {
	if off > len(s) {
		off = len(s)
	}
	return 1 + strings.Count(s[:off], "\n")
}

// splitList splits a brace list body ("a, b as c, type D") into trimmed items.
func splitList(body string) []string {
	parts := strings.Split(body, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// listItem splits "type a as b" into source name "a" and local/exported name "b".
func listItem(item string) (source, alias string) {
	item = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(item), "type "))
	if i := strings.Index(item, " as "); i >= 0 {
		return strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+4:])
	}
	return item, item
}
