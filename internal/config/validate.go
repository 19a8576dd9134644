package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	rperrors "github.com/relicta-tech/changelogs/internal/errors"
)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}
	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration, optionally against the workspace's
// package names.
type Validator struct {
	packages []string
	result   *ValidationError
}

// NewValidator creates a validator. When packages is non-empty, group and
// ignore members are checked against it.
func NewValidator(packages []string) *Validator {
	return &Validator{
		packages: packages,
		result:   &ValidationError{},
	}
}

// Result returns the accumulated errors and warnings.
func (v *Validator) Result() *ValidationError {
	return v.result
}

// Validate checks cfg and returns a validation error when any check failed.
// Warnings never fail validation; read them from Result.
func (v *Validator) Validate(cfg *Config) error {
	v.validateEnums(cfg)
	v.validateGroups("fixed", cfg.Fixed)
	v.validateGroups("linked", cfg.Linked)
	v.validateMembers("ignore", cfg.Ignore)
	v.validateOverlap(cfg)
	v.validateAI(cfg.AI)

	if cfg.Changelog.RepositoryURL != "" {
		if u, err := url.Parse(cfg.Changelog.RepositoryURL); err != nil || u.Scheme == "" || u.Host == "" {
			v.result.Addf("changelog.repository_url: invalid URL: %s", cfg.Changelog.RepositoryURL)
		}
	}

	if v.result.HasErrors() {
		return rperrors.Validation("config.Validate", v.result.Error())
	}
	return nil
}

func (v *Validator) validateEnums(cfg *Config) {
	ecosystems := []string{"", "auto", "cargo", "python", "npm"}
	if !slices.Contains(ecosystems, cfg.Ecosystem) {
		v.result.Addf("ecosystem: must be one of auto, cargo, python, npm; got %q", cfg.Ecosystem)
	}

	bumps := []DependentBump{DependentBumpPatch, DependentBumpMinor, DependentBumpNone}
	if !slices.Contains(bumps, cfg.DependentBump) {
		v.result.Addf("dependent_bump: must be one of patch, minor, none; got %q", cfg.DependentBump)
	}

	formats := []string{"per-package", "per-pkg", "per-crate", "root"}
	if !slices.Contains(formats, strings.ToLower(cfg.Changelog.Format)) {
		v.result.Addf("changelog.format: must be per-package or root, got %q", cfg.Changelog.Format)
	}
}

func (v *Validator) validateGroups(key string, groups [][]string) {
	for i, group := range groups {
		label := fmt.Sprintf("%s group %d", key, i+1)
		if len(group) < 2 {
			v.result.Warnf("%s: has fewer than two members", label)
		}
		v.validateMembers(label, group)
	}
}

func (v *Validator) validateMembers(label string, names []string) {
	if len(v.packages) == 0 {
		return
	}
	var unknown []string
	for _, name := range names {
		if !slices.Contains(v.packages, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		v.result.Addf("%s references unknown packages: %s", label, strings.Join(unknown, ", "))
	}
}

// validateOverlap warns about packages that are both grouped and ignored.
func (v *Validator) validateOverlap(cfg *Config) {
	for _, groups := range [][][]string{cfg.Fixed, cfg.Linked} {
		for _, group := range groups {
			for _, name := range group {
				if cfg.IsIgnored(name) {
					v.result.Warnf("%s is ignored but belongs to a group; it will not be released", name)
				}
			}
		}
	}
}

func (v *Validator) validateAI(cfg AIConfig) {
	if cfg.Provider == "" {
		return
	}
	providers := []string{"openai", "anthropic", "gemini", "command"}
	if !slices.Contains(providers, cfg.Provider) {
		v.result.Addf("ai.provider: must be one of %v, got %q", providers, cfg.Provider)
	}
	if cfg.Provider == "command" && cfg.Command == "" {
		v.result.Addf("ai.command: required when provider is 'command'")
	}
	if cfg.MaxTokens < 0 {
		v.result.Addf("ai.max_tokens: must not be negative")
	}
	if cfg.Timeout < 0 {
		v.result.Addf("ai.timeout: must not be negative")
	}
}
