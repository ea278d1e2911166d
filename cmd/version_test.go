package cmd

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = "1.2.3-test"

	tests := []struct {
		name     string
		args     []string
		expected []string
		absent   []string
	}{
		{
			name:     "full",
			args:     nil,
			expected: []string{"shipyard version 1.2.3-test\n", "go: " + runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH},
		},
		{
			name:     "short",
			args:     []string{"--short"},
			expected: []string{"1.2.3-test\n"},
			absent:   []string{"shipyard version", "go:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versionCmd := newVersionCmd()
			var buf bytes.Buffer
			versionCmd.SetOut(&buf)
			versionCmd.SetArgs(tt.args)
			if err := versionCmd.Execute(); err != nil {
				t.Fatalf("version failed: %v", err)
			}

			output := buf.String()
			for _, want := range tt.expected {
				if !strings.Contains(output, want) {
					t.Errorf("Expected output to contain %q, got %q", want, output)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(output, unwanted) {
					t.Errorf("Expected output not to contain %q, got %q", unwanted, output)
				}
			}
		})
	}
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	versionCmd := newVersionCmd()
	versionCmd.SetOut(&bytes.Buffer{})
	versionCmd.SetErr(&bytes.Buffer{})
	versionCmd.SetArgs([]string{"extra"})
	if err := versionCmd.Execute(); err == nil {
		t.Error("Expected an error for unexpected arguments")
	}
}
