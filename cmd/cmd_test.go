package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestExecuteUnknownCommand(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"sprout", "frobnicate"}
	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Execute() = %v, want unknown command error", err)
	}
}

func TestFirstArg(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		fallback string
		want     string
	}{
		{"no args", nil, "data/rag", "data/rag"},
		{"empty arg", []string{""}, "data/rag", "data/rag"},
		{"override", []string{"/tmp/seeds"}, "data/rag", "/tmp/seeds"},
		{"extra args ignored", []string{":9090", "junk"}, "127.0.0.1:8080", ":9090"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstArg(tt.args, tt.fallback); got != tt.want {
				t.Errorf("firstArg(%v, %q) = %q, want %q", tt.args, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestExecuteHelp(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	for _, args := range [][]string{
		{"sprout"},
		{"sprout", "help"},
		{"sprout", "--help"},
		{"sprout", "version"},
	} {
		os.Args = args
		if err := Execute(); err != nil {
			t.Errorf("Execute(%v) = %v, want nil", args, err)
		}
	}
}
