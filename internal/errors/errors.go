// Package errors provides structured error types for changelogs.
// It implements error classification, wrapping and secret redaction.
package errors

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindGit indicates a git operation error.
	KindGit
	// KindVersion indicates a versioning error.
	KindVersion
	// KindParse indicates a changelog entry could not be parsed.
	KindParse
	// KindDiscovery indicates a workspace or manifest could not be understood.
	KindDiscovery
	// KindManifest indicates a version target edit failed.
	KindManifest
	// KindProcess indicates an external tool exited unsuccessfully.
	KindProcess
	// KindAuth indicates missing or rejected registry credentials.
	KindAuth
	// KindAI indicates an AI provider error.
	KindAI
	// KindNetwork indicates a network error.
	KindNetwork
	// KindIO indicates a file I/O error.
	KindIO
	// KindValidation indicates a validation error.
	KindValidation
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindState indicates an out-of-order pipeline transition.
	KindState
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindGit:
		return "git"
	case KindVersion:
		return "version"
	case KindParse:
		return "parse"
	case KindDiscovery:
		return "discovery"
	case KindManifest:
		return "manifest"
	case KindProcess:
		return "process"
	case KindAuth:
		return "auth"
	case KindAI:
		return "ai"
	case KindNetwork:
		return "network"
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the standard error type for changelogs.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// A target without Op matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// withDetail adds a single detail to the error and returns it.
func (e *Error) withDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// GetKind returns the Kind of an error, or KindUnknown for foreign errors.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Git creates a git operation error.
func Git(op, message string) *Error {
	return &Error{Kind: KindGit, Op: op, Message: message}
}

// GitWrap wraps an error as a git error.
func GitWrap(err error, op, message string) *Error {
	return Wrap(err, KindGit, op, message)
}

// Version creates a versioning error.
func Version(op, message string) *Error {
	return &Error{Kind: KindVersion, Op: op, Message: message}
}

// VersionWrap wraps an error as a versioning error.
func VersionWrap(err error, op, message string) *Error {
	return Wrap(err, KindVersion, op, message)
}

// Parse creates a changelog entry parse error. The entry id is kept as a detail
// and prefixed to the message so every report names the offending file.
func Parse(op, id, message string) *Error {
	e := &Error{Kind: KindParse, Op: op, Message: fmt.Sprintf("changelog %s: %s", id, message)}
	return e.withDetail("id", id)
}

// ParseWrap wraps an error as a changelog entry parse error.
func ParseWrap(err error, op, id, message string) *Error {
	e := Wrap(err, KindParse, op, fmt.Sprintf("changelog %s: %s", id, message))
	return e.withDetail("id", id)
}

// Discovery creates a workspace discovery error.
func Discovery(op, message string) *Error {
	return &Error{Kind: KindDiscovery, Op: op, Message: message}
}

// DiscoveryWrap wraps an error as a workspace discovery error.
func DiscoveryWrap(err error, op, message string) *Error {
	return Wrap(err, KindDiscovery, op, message)
}

// Manifest creates a version target edit error.
func Manifest(op, message string) *Error {
	return &Error{Kind: KindManifest, Op: op, Message: message}
}

// ManifestWrap wraps an error as a version target edit error.
func ManifestWrap(err error, op, message string) *Error {
	return Wrap(err, KindManifest, op, message)
}

// Process creates an external process error.
func Process(op, message string) *Error {
	return &Error{Kind: KindProcess, Op: op, Message: message}
}

// ProcessOutput returns the redacted tool output recorded by ProcessWrap
// anywhere in err's chain, or "".
func ProcessOutput(err error) string {
	for ; err != nil; err = errors.Unwrap(err) {
		if e, ok := err.(*Error); ok {
			if out, ok := e.Details["output"].(string); ok {
				return out
			}
		}
	}
	return ""
}

// ProcessWrap wraps an error as an external process error with the
// captured output redacted.
func ProcessWrap(err error, op, message, output string) *Error {
	e := wrapSafe(err, KindProcess, op, message)
	if output != "" {
		e.withDetail("output", RedactSensitive(output))
	}
	return e
}

// Auth creates a credential error.
func Auth(op, message string) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message}
}

// AI creates an AI provider error.
func AI(op, message string) *Error {
	return &Error{Kind: KindAI, Op: op, Message: message}
}

// AIWrapSafe wraps an error as an AI provider error with secrets redacted.
func AIWrapSafe(err error, op, message string) *Error {
	return wrapSafe(err, KindAI, op, message)
}

// NetworkWrap wraps an error as a network error.
func NetworkWrap(err error, op, message string) *Error {
	return Wrap(err, KindNetwork, op, message)
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// State creates a pipeline ordering error.
func State(op, message string) *Error {
	return &Error{Kind: KindState, Op: op, Message: message}
}

// InternalWrap wraps an error as an internal error.
func InternalWrap(err error, op, message string) *Error {
	return Wrap(err, KindInternal, op, message)
}

// Patterns for secrets that must never reach logs or terminal output.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI keys
	regexp.MustCompile(`\bsk-(?:proj-|svc-|ant-)?[a-zA-Z0-9_-]{20,}\b`),
	// Gemini keys
	regexp.MustCompile(`\bAIza[a-zA-Z0-9_-]{35,}\b`),
	// GitHub tokens
	regexp.MustCompile(`\bgh[posh]_[a-zA-Z0-9]{36,}\b`),
	// npm tokens
	regexp.MustCompile(`\bnpm_[a-zA-Z0-9]{36,}\b`),
	// PyPI tokens
	regexp.MustCompile(`\bpypi-[a-zA-Z0-9_-]{50,}\b`),
	// crates.io tokens
	regexp.MustCompile(`\bcio[a-zA-Z0-9]{32,}\b`),
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_.-]{20,}\b`),
	// credentials in URLs
	regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`),
}

// RedactSensitive removes API keys and tokens from a string.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// redactError returns an error with secrets redacted from its message.
func redactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}

// wrapSafe wraps an error with sensitive data redacted.
func wrapSafe(err error, kind Kind, op, message string) *Error {
	if err == nil {
		return &Error{Kind: kind, Op: op, Message: message}
	}
	return Wrap(redactError(err), kind, op, message)
}
