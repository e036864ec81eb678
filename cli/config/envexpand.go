package config

import (
	"os"
	"regexp"
)

// refPattern matches ${VAR} and ${VAR:-default}.
var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in input.
// An unset or empty variable takes its default, or "" when none is given;
// missing required values are caught by later validation.
func ExpandEnv(input string) string {
	return refPattern.ReplaceAllStringFunc(input, func(ref string) string {
		m := refPattern.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
