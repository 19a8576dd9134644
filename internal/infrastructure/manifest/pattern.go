package manifest

import (
	"fmt"
	"regexp"
)

// match returns the byte range holding the version: group 1 when the
// expression has one, otherwise the whole match.
func (t Pattern) match(data []byte) (int, int, error) {
	re, err := regexp.Compile(t.Regexp)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pattern: %w", err)
	}
	matches := re.FindAllSubmatchIndex(data, -1)
	switch len(matches) {
	case 0:
		return 0, 0, fmt.Errorf("pattern '%s' not found", t.Regexp)
	case 1:
	default:
		return 0, 0, fmt.Errorf("pattern '%s' matched %d times, refusing to update an ambiguous version", t.Regexp, len(matches))
	}

	m := matches[0]
	if re.NumSubexp() > 0 && m[2] >= 0 {
		return m[2], m[3], nil
	}
	return m[0], m[1], nil
}

func (t Pattern) read(data []byte) (string, error) {
	start, end, err := t.match(data)
	if err != nil {
		return "", err
	}
	return string(data[start:end]), nil
}

func (t Pattern) apply(data []byte, value string) ([]byte, error) {
	start, end, err := t.match(data)
	if err != nil {
		return nil, err
	}
	return splice(data, start, end, []byte(value)), nil
}
