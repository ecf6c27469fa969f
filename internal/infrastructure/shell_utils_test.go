package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", "''"},
		{"simple path", "/tmp/app.apk", "/tmp/app.apk"},
		{"spaces", "/tmp/my app.apk", "'/tmp/my app.apk'"},
		{"single quote", "/tmp/it's.apk", `'/tmp/it'"'"'s.apk'`},
		{"dollar", "/tmp/$HOME.apk", "'/tmp/$HOME.apk'"},
		{"backtick", "/tmp/`id`.apk", "'/tmp/`id`.apk'"},
		{"semicolon", "a;rm -rf", "'a;rm -rf'"},
		{"braces", "{path}", "'{path}'"},
		{"newline", "a\nb", "'a\nb'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellEscape(tt.input))
		})
	}
}

func TestShellEscapeCommand(t *testing.T) {
	got := ShellEscapeCommand("adb", "install", "-r", "/tmp/my app.apk")
	assert.Equal(t, "adb install -r '/tmp/my app.apk'", got)
}

func TestExpandCommand(t *testing.T) {
	binary, args, err := ExpandCommand("adb install -r {path}", map[string]string{
		"path": "/tmp/my app.apk",
		"mime": "application/vnd.android.package-archive",
	})
	require.NoError(t, err)
	assert.Equal(t, "adb", binary)
	assert.Equal(t, []string{"install", "-r", "/tmp/my app.apk"}, args)

	binary, args, err = ExpandCommand("open --type={mime} {uri}", map[string]string{
		"uri":  "file:///tmp/a.pdf",
		"mime": "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "open", binary)
	assert.Equal(t, []string{"--type=application/pdf", "file:///tmp/a.pdf"}, args)

	_, _, err = ExpandCommand("   ", nil)
	assert.Error(t, err)
}
