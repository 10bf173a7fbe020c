package cli

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "ranksentinel "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestRunRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "run", "--type", "hourly")
	if err == nil || !strings.Contains(err.Error(), "unknown run type") {
		t.Fatalf("err = %v, want unknown run type", err)
	}
}

func TestRootHelpListsSubcommands(t *testing.T) {
	t.Parallel()

	out, err := execute(t)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	for _, name := range []string{"run", "schedule", "purge", "version"} {
		if !strings.Contains(out, name) {
			t.Errorf("help output missing %q:\n%s", name, out)
		}
	}
}
