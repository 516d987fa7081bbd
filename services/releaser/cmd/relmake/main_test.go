package main

import (
	"bytes"
	"strings"
	"testing"

	"relmake/pkg/buildinfo"
	"relmake/services/releaser"
)

func TestRootCommandRejectsUnknownApp(t *testing.T) {
	cmd := newRootCommand(releaser.DefaultTargets())
	cmd.SetArgs([]string{"--app", "nope"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("Execute() error = nil, want invalid --app error")
	}
	if !strings.Contains(err.Error(), "oneauth-server") {
		t.Fatalf("error %q does not list valid apps", err)
	}
}

func TestRootCommandRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCommand(releaser.DefaultTargets())
	cmd.SetArgs([]string{"oneauth"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute() error = nil, want positional argument error")
	}
}

func TestRootCommandVersion(t *testing.T) {
	cmd := newRootCommand(releaser.DefaultTargets())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), buildinfo.FormattedVersion()) {
		t.Fatalf("version output %q missing %q", out.String(), buildinfo.FormattedVersion())
	}
}

func TestAppFlagDefault(t *testing.T) {
	cmd := newRootCommand(releaser.DefaultTargets())
	flag := cmd.Flags().Lookup("app")
	if flag == nil {
		t.Fatal("--app flag not registered")
	}
	if flag.DefValue != releaser.AllApps {
		t.Fatalf("--app default = %q, want %q", flag.DefValue, releaser.AllApps)
	}
}
