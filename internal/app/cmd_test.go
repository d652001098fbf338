package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	for _, name := range []string{CommandServe, CommandMigrate, CommandHealthcheck} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("Find(%q) error = %v", name, err)
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestNewRootCommand_DefaultsToServe(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	// サブコマンド省略時はルート自身がserveとして動く
	if root.RunE == nil {
		t.Fatal("root command should be runnable")
	}
	if root.Flags().Lookup("env-file") == nil && root.PersistentFlags().Lookup("env-file") == nil {
		t.Error("expected --env-file flag")
	}
}

func TestNewRootCommand_UnknownCommand_ReturnsError(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"worker"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	if err := root.Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestNewRootCommand_Version(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), Version) {
		t.Errorf("version output = %q, want to contain %q", out.String(), Version)
	}
}
