package manifest

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
)

// tomlValue is one key/value of the document, flattened to its full path.
// For strings start/end cover the quoted token; for inline tables start is
// the offset of the opening brace.
type tomlValue struct {
	path    []string
	kind    unstable.Kind
	data    string
	start   int
	end     int
	empty   bool
	inArray bool
	element bool
}

type tomlHeader struct {
	path  []string
	start int
	body  int
	array bool
}

type tomlIndex struct {
	data    []byte
	values  []tomlValue
	headers []tomlHeader
}

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func indexTOML(data []byte) (*tomlIndex, error) {
	idx := &tomlIndex{data: data}

	p := unstable.Parser{}
	p.Reset(data)

	var table []string
	inArray := false
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			keys, first := keyPath(expr.Key())
			table = keys
			inArray = expr.Kind == unstable.ArrayTable
			idx.headers = append(idx.headers, tomlHeader{
				path:  keys,
				start: lineStart(data, first),
				body:  lineEnd(data, first),
				array: inArray,
			})
		case unstable.KeyValue:
			keys, _ := keyPath(expr.Key())
			idx.addValue(joinPath(table, keys), expr.Value(), inArray)
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}
	return idx, nil
}

func (idx *tomlIndex) addValue(path []string, n *unstable.Node, inArray bool) {
	v := tomlValue{path: path, kind: n.Kind, inArray: inArray, start: -1, end: -1}
	switch n.Kind {
	case unstable.String:
		v.start = int(n.Raw.Offset)
		v.end = v.start + int(n.Raw.Length)
		v.data = string(n.Data)
	case unstable.InlineTable:
		v.start = int(n.Raw.Offset)
		v.empty = true
		it := n.Children()
		for it.Next() {
			kv := it.Node()
			v.empty = false
			keys, _ := keyPath(kv.Key())
			idx.addValue(joinPath(path, keys), kv.Value(), inArray)
		}
	case unstable.Array:
		it := n.Children()
		for it.Next() {
			el := it.Node()
			if el.Kind != unstable.String {
				continue
			}
			start := int(el.Raw.Offset)
			idx.values = append(idx.values, tomlValue{
				path:    path,
				kind:    unstable.String,
				data:    string(el.Data),
				start:   start,
				end:     start + int(el.Raw.Length),
				inArray: inArray,
				element: true,
			})
		}
	}
	idx.values = append(idx.values, v)
}

func keyPath(it unstable.Iterator) ([]string, int) {
	var parts []string
	first := -1
	for it.Next() {
		n := it.Node()
		if first < 0 {
			first = int(n.Raw.Offset)
		}
		parts = append(parts, string(n.Data))
	}
	return parts, first
}

func (idx *tomlIndex) value(path []string) (tomlValue, bool) {
	for _, v := range idx.values {
		if !v.inArray && !v.element && equalPath(v.path, path) {
			return v, true
		}
	}
	return tomlValue{}, false
}

func (idx *tomlIndex) header(path []string) (tomlHeader, bool) {
	for _, h := range idx.headers {
		if !h.array && equalPath(h.path, path) {
			return h, true
		}
	}
	return tomlHeader{}, false
}

// hasChildren reports whether path is a table holding other keys.
func (idx *tomlIndex) hasChildren(path []string) bool {
	for _, v := range idx.values {
		if !v.element && len(v.path) > len(path) && equalPath(v.path[:len(path)], path) {
			return true
		}
	}
	for _, h := range idx.headers {
		if len(h.path) >= len(path) && equalPath(h.path[:len(path)], path) {
			return true
		}
	}
	return false
}

func (idx *tomlIndex) known(prefix []string) bool {
	if _, ok := idx.value(prefix); ok {
		return true
	}
	return idx.hasChildren(prefix)
}

// missing names the first segment of path that the document does not define.
func (idx *tomlIndex) missing(path []string) error {
	for i := range path {
		if !idx.known(path[:i+1]) {
			return fmt.Errorf("missing TOML key: %s", path[i])
		}
	}
	return fmt.Errorf("table %s has no header of its own to add keys under", strings.Join(path, "."))
}

// regionEnd returns the offset of the first table header at or after from.
func (idx *tomlIndex) regionEnd(from int) int {
	end := len(idx.data)
	for _, h := range idx.headers {
		if h.start >= from && h.start < end {
			end = h.start
		}
	}
	return end
}

func (t TableKey) read(data []byte) (string, error) {
	if len(t.Key) == 0 {
		return "", fmt.Errorf("empty key path")
	}
	idx, err := indexTOML(data)
	if err != nil {
		return "", err
	}
	v, ok := idx.value(t.Key)
	if !ok {
		if idx.hasChildren(t.Key) {
			return "", fmt.Errorf("%s is a table, not a string", strings.Join(t.Key, "."))
		}
		return "", idx.missing(t.Key)
	}
	if v.kind != unstable.String {
		return "", fmt.Errorf("%s is a %s, not a string", strings.Join(t.Key, "."), v.kind)
	}
	return v.data, nil
}

func (t TableKey) apply(data []byte, value string) ([]byte, error) {
	if len(t.Key) == 0 {
		return nil, fmt.Errorf("empty key path")
	}
	idx, err := indexTOML(data)
	if err != nil {
		return nil, err
	}

	if v, ok := idx.value(t.Key); ok {
		if v.kind != unstable.String {
			return nil, fmt.Errorf("%s is a %s, not a string", strings.Join(t.Key, "."), v.kind)
		}
		return splice(data, v.start, v.end, quoteLike(data[v.start:v.end], value)), nil
	}
	if idx.hasChildren(t.Key) {
		return nil, fmt.Errorf("%s is a table, not a string", strings.Join(t.Key, "."))
	}

	parent, key := t.Key[:len(t.Key)-1], t.Key[len(t.Key)-1]
	if len(parent) == 0 {
		return idx.insertBlock(0, key, value), nil
	}
	if pv, ok := idx.value(parent); ok {
		if pv.kind != unstable.InlineTable {
			return nil, fmt.Errorf("%s is a %s, not a table", strings.Join(parent, "."), pv.kind)
		}
		return idx.insertInline(pv, key, value)
	}
	if h, ok := idx.header(parent); ok {
		return idx.insertBlock(h.body, key, value), nil
	}
	return nil, idx.missing(parent)
}

func (idx *tomlIndex) insertInline(table tomlValue, key, value string) ([]byte, error) {
	data := idx.data
	closing, err := closingBrace(data, table.start)
	if err != nil {
		return nil, err
	}
	entry := formatKey(key) + " = " + basicString(value)
	if table.empty {
		return splice(data, table.start+1, closing, []byte(" "+entry+" ")), nil
	}
	i := closing
	for i > table.start+1 && isSpace(data[i-1]) {
		i--
	}
	return splice(data, i, i, []byte(", "+entry)), nil
}

// insertBlock adds a standalone assignment after the last non-blank line of
// the table whose body starts at body.
func (idx *tomlIndex) insertBlock(body int, key, value string) []byte {
	data := idx.data
	end := idx.regionEnd(body)

	j := end
	for j > body && isSpace(data[j-1]) {
		j--
	}
	pos := body
	if j > body {
		pos = lineEnd(data, j-1)
	}

	line := formatKey(key) + " = " + basicString(value) + "\n"
	if pos > 0 && data[pos-1] != '\n' {
		line = "\n" + line
	}
	return splice(data, pos, pos, []byte(line))
}

// closingBrace finds the brace closing the inline table opened at open.
func closingBrace(data []byte, open int) (int, error) {
	depth := 0
	for i := open; i < len(data); i++ {
		switch data[i] {
		case '"', '\'':
			i = skipString(data, i) - 1
		case '#':
			for i < len(data) && data[i] != '\n' {
				i++
			}
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				if data[i] != '}' {
					return -1, fmt.Errorf("malformed inline table")
				}
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("unterminated inline table")
}

// skipString returns the offset just past the string starting at i.
func skipString(data []byte, i int) int {
	q := data[i]
	if i+2 < len(data) && data[i+1] == q && data[i+2] == q {
		j := bytes.Index(data[i+3:], []byte{q, q, q})
		if j < 0 {
			return len(data)
		}
		return i + 3 + j + 3
	}
	for j := i + 1; j < len(data); j++ {
		if q == '"' && data[j] == '\\' {
			j++
			continue
		}
		if data[j] == q || data[j] == '\n' {
			return j + 1
		}
	}
	return len(data)
}

// quoteLike renders value with the same quoting style as the token it replaces.
func quoteLike(raw []byte, value string) []byte {
	literalSafe := !strings.ContainsAny(value, "'\n")
	switch {
	case bytes.HasPrefix(raw, []byte(`'''`)) && !strings.Contains(value, "'''"):
		return []byte("'''" + value + "'''")
	case bytes.HasPrefix(raw, []byte(`"""`)):
		return []byte(`"""` + escapeBasic(value) + `"""`)
	case len(raw) > 0 && raw[0] == '\'' && literalSafe:
		return []byte("'" + value + "'")
	default:
		return []byte(basicString(value))
	}
}

func basicString(s string) string {
	return `"` + escapeBasic(s) + `"`
}

func escapeBasic(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

func formatKey(k string) string {
	if bareKey.MatchString(k) {
		return k
	}
	return basicString(k)
}

func splice(data []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(repl))
	out = append(out, data[:start]...)
	out = append(out, repl...)
	return append(out, data[end:]...)
}

func lineStart(data []byte, off int) int {
	return bytes.LastIndexByte(data[:off], '\n') + 1
}

func lineEnd(data []byte, off int) int {
	i := bytes.IndexByte(data[off:], '\n')
	if i < 0 {
		return len(data)
	}
	return off + i + 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func joinPath(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rewriteStrings offers every string of the document, array elements
// included, to fn and splices in the replacements it returns.
func rewriteStrings(data []byte, fn func(key []string, value string) (string, bool)) ([]byte, bool, error) {
	idx, err := indexTOML(data)
	if err != nil {
		return nil, false, err
	}

	type edit struct {
		start, end int
		repl       []byte
	}
	var edits []edit
	for _, v := range idx.values {
		if v.kind != unstable.String || v.inArray {
			continue
		}
		repl, ok := fn(v.path, v.data)
		if !ok || repl == v.data {
			continue
		}
		edits = append(edits, edit{v.start, v.end, quoteLike(data[v.start:v.end], repl)})
	}
	if len(edits) == 0 {
		return data, false, nil
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := data
	for _, e := range edits {
		out = splice(out, e.start, e.end, e.repl)
	}
	return out, true, nil
}
