package infrastructure

import (
	"fmt"
	"strings"
)

// ShellEscape quotes s for display in a shell command line. It is used for
// logging only; commands run through exec without a shell.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, isShellSpecialChar) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders binary and args as a copy-pasteable command line
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}

// ExpandCommand splits a command template on whitespace and then replaces
// {name} placeholders inside each word, so substituted values are never
// split even when they contain spaces.
func ExpandCommand(template string, vars map[string]string) (string, []string, error) {
	words := strings.Fields(template)
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command template")
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	replacer := strings.NewReplacer(pairs...)

	for i, w := range words {
		words[i] = replacer.Replace(w)
	}
	return words[0], words[1:], nil
}

func isShellSpecialChar(c rune) bool {
	switch c {
	case ' ', '\t', '\'', '"', '$', '`', '\\', '!', '*', '?', '[', ']',
		'(', ')', '{', '}', '|', ';', '<', '>', '&', '~', '#', '%', '\n', '\r':
		return true
	default:
		return false
	}
}
