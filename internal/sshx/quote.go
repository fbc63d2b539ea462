package sshx

import "strings"

// Quote single-quote escapes s for use inside a remote shell command line.
// All higher-level callers pass unescaped logical arguments and apply Quote
// exactly once at this boundary.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
