package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"
)

var (
	iniSection = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(?:[#;].*)?$`)
	iniKeyLine = regexp.MustCompile(`^(\s*)([^=:\s\[#;][^=:]*?)(\s*[=:]\s*)(.*?)(\s*)$`)
)

func (t IniKey) read(data []byte) (string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SkipUnrecognizableLines:    true,
		InsensitiveKeys:            true,
	}, data)
	if err != nil {
		return "", fmt.Errorf("invalid INI: %w", err)
	}
	sec, err := f.GetSection(t.Section)
	if err != nil {
		return "", fmt.Errorf("section '%s' not found", t.Section)
	}
	if !sec.HasKey(strings.ToLower(t.Key)) {
		return "", fmt.Errorf("key '%s' not found in section '%s'", t.Key, t.Section)
	}
	return sec.Key(strings.ToLower(t.Key)).String(), nil
}

// apply rewrites the value of the first matching key in the section. Key
// names compare case-insensitively, like Python's configparser.
func (t IniKey) apply(data []byte, value string) ([]byte, error) {
	lines := strings.SplitAfter(string(data), "\n")

	inSection, sawSection := false, false
	for i, raw := range lines {
		body := strings.TrimRight(raw, "\r\n")
		eol := raw[len(body):]

		if m := iniSection.FindStringSubmatch(body); m != nil {
			inSection = strings.TrimSpace(m[1]) == t.Section
			sawSection = sawSection || inSection
			continue
		}
		if !inSection {
			continue
		}
		m := iniKeyLine.FindStringSubmatch(body)
		if m == nil || !strings.EqualFold(m[2], t.Key) {
			continue
		}
		lines[i] = m[1] + m[2] + m[3] + value + m[5] + eol
		return []byte(strings.Join(lines, "")), nil
	}

	if !sawSection {
		return nil, fmt.Errorf("section '%s' not found", t.Section)
	}
	return nil, fmt.Errorf("key '%s' not found in section '%s'", t.Key, t.Section)
}

// rewriteList offers each item of a possibly multi-line value to fn. Items
// are the text after the delimiter and every indented continuation line.
func rewriteList(data []byte, section, key string, fn func(string) (string, bool)) ([]byte, bool) {
	lines := strings.SplitAfter(string(data), "\n")

	inSection, inKey, changed := false, false, false
	for i, raw := range lines {
		body := strings.TrimRight(raw, "\r\n")
		eol := raw[len(body):]

		if inKey {
			if body != "" && (body[0] == ' ' || body[0] == '\t') {
				item := strings.TrimSpace(body)
				if item == "" || item[0] == '#' || item[0] == ';' {
					continue
				}
				indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
				if repl, ok := fn(item); ok && repl != item {
					lines[i] = indent + repl + eol
					changed = true
				}
				continue
			}
			inKey = false
		}

		if m := iniSection.FindStringSubmatch(body); m != nil {
			inSection = strings.TrimSpace(m[1]) == section
			continue
		}
		if !inSection {
			continue
		}
		m := iniKeyLine.FindStringSubmatch(body)
		if m == nil || !strings.EqualFold(m[2], key) {
			continue
		}
		inKey = true
		if m[4] != "" {
			if repl, ok := fn(m[4]); ok && repl != m[4] {
				lines[i] = m[1] + m[2] + m[3] + repl + m[5] + eol
				changed = true
			}
		}
	}
	if !changed {
		return data, false
	}
	return []byte(strings.Join(lines, "")), true
}
