package config

import (
	"os"
	"regexp"
	"strings"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR} with the value of VAR and ${VAR:-def}
// with def when VAR is unset or empty. Unset variables without a default are
// left as they are.
func substituteEnvVars(content []byte) []byte {
	return envVarRegex.ReplaceAllFunc(content, func(match []byte) []byte {
		expr := string(envVarRegex.FindSubmatch(match)[1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		if value, exists := os.LookupEnv(name); exists && (value != "" || !hasDefault) {
			return []byte(value)
		}
		if hasDefault {
			return []byte(def)
		}
		return match
	})
}
