package ecosystem

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/relicta-tech/changelogs/internal/errors"
)

var alreadyPublishedMarkers = []string{
	"already uploaded",
	"already exists",
	"cannot publish over",
	"previously published versions",
}

var authFailureMarkers = []string{
	"not authenticated",
	"unauthorized",
	"authentication",
	"eneedauth",
	"need auth",
	"cargo login",
	"no token found",
	"invalid or non-existent authentication",
	"invalid credentials",
	"403 forbidden",
	"401",
}

func credentialHint(k Kind) string {
	switch k {
	case KindCargo:
		return "set CARGO_REGISTRY_TOKEN"
	case KindPython:
		return "set TWINE_USERNAME and TWINE_PASSWORD, or TWINE_API_TOKEN"
	case KindNPM:
		return "set NPM_TOKEN or NODE_AUTH_TOKEN, or add an auth token to .npmrc"
	default:
		return "configure registry credentials"
	}
}

// publishOutcome turns the result of the final publish step into a
// PublishResult. Only context cancellation is returned as an error.
func publishOutcome(ctx context.Context, kind Kind, cmd Command, out Output, err error) (PublishResult, error) {
	combined := errors.RedactSensitive(out.Combined())
	if err == nil {
		return PublishResult{Status: PublishSuccess, Message: "published", Output: combined}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return PublishResult{Status: PublishFailed, Message: "canceled"}, ctxErr
	}

	lower := strings.ToLower(combined)
	switch {
	case containsAny(lower, alreadyPublishedMarkers):
		return PublishResult{Status: PublishSuccess, Message: "version already published", Output: combined}, nil
	case stderrors.Is(err, exec.ErrNotFound):
		return PublishResult{
			Status:  PublishFailed,
			Message: fmt.Sprintf("%s not found on PATH", cmd.Name),
		}, nil
	case containsAny(lower, authFailureMarkers):
		return PublishResult{
			Status:  PublishFailed,
			Message: fmt.Sprintf("not authenticated to %s: %s", kind.Registry(), credentialHint(kind)),
			Output:  combined,
		}, nil
	default:
		return PublishResult{
			Status:  PublishFailed,
			Message: fmt.Sprintf("%s failed (exit code %d)", cmd.String(), out.ExitCode),
			Output:  combined,
		}, nil
	}
}

func skipped(kind Kind) PublishResult {
	return PublishResult{
		Status:  PublishSkipped,
		Message: fmt.Sprintf("no %s credentials: %s", kind.Registry(), credentialHint(kind)),
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
