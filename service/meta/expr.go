package meta

import (
	"os"
	"strings"

	"github.com/viant/tasker/internal/expand"
)

const envPrefix = "env."

// expandEnvExpr replaces all occurrences of ${env.KEY} in the input with the
// value of the environment variable KEY (or "" if unset). Other
// placeholders are left untouched.
func expandEnvExpr(value string) string {
	return expand.Text(value, func(key string) (string, bool) {
		name, ok := strings.CutPrefix(key, envPrefix)
		if !ok {
			return "", false
		}
		return os.Getenv(name), true
	})
}
