package config

import (
	"regexp"
	"strings"
)

// DefaultSlug is returned by Slugify when a name normalizes to nothing
// usable (empty, or made up entirely of invalid characters).
const DefaultSlug = "subscription"

var (
	validSlugRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash  = regexp.MustCompile(`^-+`)
	trailingDash = regexp.MustCompile(`-+$`)
)

// Slugify turns a user-provided name (a Subscription's display name,
// say) into a string safe to use as a directory or file path segment:
// lowercase, [a-z0-9_-] only, at most 64 characters, no leading or
// trailing dash.
func Slugify(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultSlug
	}

	lower := strings.ToLower(trimmed)
	if validSlugRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = trailingDash.ReplaceAllString(result[:64], "")
	}

	if result == "" {
		return DefaultSlug
	}
	return result
}
