// Package security masks credentials in CLI output.
package security

import (
	"io"

	"github.com/relicta-tech/changelogs/internal/errors"
)

// ciEnvVars mark a CI environment, where output ends up in shared logs.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"JENKINS_URL",
	"BUILDKITE",
	"TF_BUILD",
}

// InCI reports whether getenv describes a CI environment.
func InCI(getenv func(string) string) bool {
	for _, key := range ciEnvVars {
		if getenv(key) != "" {
			return true
		}
	}
	return false
}

// Mask redacts registry tokens, API keys and URL credentials from s.
func Mask(s string) string {
	return errors.RedactSensitive(s)
}

// MaskedWriter redacts everything written through it.
type MaskedWriter struct {
	w io.Writer
}

// NewMaskedWriter wraps w. Each Write is masked on its own, so a secret
// split across two writes is not caught; the CLI writes whole lines.
func NewMaskedWriter(w io.Writer) *MaskedWriter {
	return &MaskedWriter{w: w}
}

// Write implements io.Writer. It reports len(p) on success so callers do
// not see a short write when a secret shrinks to [REDACTED].
func (mw *MaskedWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(mw.w, Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
