package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "qlc:\n  control_mode: none\n" +
		"database:\n  path: " + filepath.Join(dir, "q.sqlite") + "\n" +
		"log:\n  level: error\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestCommandErrorsArePrinted(t *testing.T) {
	cfg := writeConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing config",
			args: []string{"--config", missing, "settings", "list"},
			want: "failed to load configuration",
		},
		{
			name: "unknown setting",
			args: []string{"--config", cfg, "settings", "get", "bogus"},
			want: `unknown setting "bogus"`,
		},
		{
			name: "bad setting value",
			args: []string{"--config", cfg, "settings", "set", "port", "abc"},
			want: `invalid port "abc"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			root := newRootCmd()
			root.SetOut(&stdout)
			root.SetErr(&stderr)
			root.SetArgs(tt.args)

			if err := root.Execute(); err == nil {
				t.Fatal("Execute succeeded, want error")
			}
			got := stderr.String()
			if !strings.Contains(got, "Error:") || !strings.Contains(got, tt.want) {
				t.Errorf("stderr = %q, want an error mentioning %q", got, tt.want)
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := writeConfig(t)

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--config", cfg}, args...))
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v (%s)", args, err, out.String())
		}
		return strings.TrimSpace(out.String())
	}

	if got := run("settings", "set", "page_size", "48"); got != "page_size = 48" {
		t.Errorf("set output = %q, want %q", got, "page_size = 48")
	}
	if got := run("settings", "get", "page_size"); got != "48" {
		t.Errorf("get output = %q, want 48", got)
	}
}
