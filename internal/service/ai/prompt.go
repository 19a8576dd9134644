package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDiffBytes bounds the diff embedded in a prompt.
const MaxDiffBytes = 32000

// DefaultInstructions is the prompt template. {packages} and {diff} are
// replaced before sending.
const DefaultInstructions = `Generate a changelog entry for this git diff.

Available packages: {packages}

Respond with ONLY a markdown file in this exact format (no explanation, no code fences):

---
<package-name>: patch
<another-package>: minor
---

Brief description of changes.

Rules:
- Replace <package-name> with actual package names from the list above
- Include ALL packages that were modified in the frontmatter
- Use "patch" for bug fixes, "minor" for features, "major" for breaking changes
- Keep the summary concise (1-3 sentences)
- Use past tense (e.g. "Added", "Fixed", "Removed")

Git diff:
{diff}`

// TruncateDiff cuts diff to MaxDiffBytes on a UTF-8 boundary and appends a
// note with the original size.
func TruncateDiff(diff string) string {
	if len(diff) <= MaxDiffBytes {
		return diff
	}
	end := MaxDiffBytes
	for end > 0 && !utf8.RuneStart(diff[end]) {
		end--
	}
	return fmt.Sprintf("%s\n\n[diff truncated, showing first %dKB of %dKB]",
		diff[:end], MaxDiffBytes/1000, len(diff)/1000)
}

// BuildPrompt fills template (DefaultInstructions when empty) with the
// package list and the truncated diff.
func BuildPrompt(template string, packages []string, diff string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultInstructions
	}
	return strings.NewReplacer(
		"{packages}", strings.Join(packages, ", "),
		"{diff}", TruncateDiff(diff),
	).Replace(template)
}

// CleanResponse strips surrounding whitespace and a markdown code fence.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```markdown", "```md", "```"} {
		if strings.HasPrefix(s, fence) {
			s = strings.TrimPrefix(s, fence)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
