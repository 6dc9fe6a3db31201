package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "defi-agent"}
	child := &cobra.Command{Use: "protocols", Short: "protocol data"}
	leaf := &cobra.Command{
		Use:         "top",
		Short:       "rank protocols",
		Example:     "  defi-agent protocols top --limit 5",
		Annotations: map[string]string{ActionAnnotation: "top_protocols"},
	}
	leaf.Flags().Int("limit", 5, "limit results")
	leaf.Flags().String("chain", "", "chain filter")
	_ = leaf.MarkFlagRequired("chain")
	child.AddCommand(leaf)
	root.AddCommand(child)
	return root
}

func TestBuildSchema(t *testing.T) {
	s, err := Build(testTree(), "protocols top")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "defi-agent protocols top" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if s.Action != "top_protocols" {
		t.Fatalf("expected action annotation, got %q", s.Action)
	}
	if s.Example != "defi-agent protocols top --limit 5" {
		t.Fatalf("unexpected example: %q", s.Example)
	}
	if len(s.Flags) != 2 || s.Flags[0].Name != "chain" || !s.Flags[0].Required {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if s.Flags[1].Name != "limit" || s.Flags[1].Required {
		t.Fatalf("unexpected limit flag: %+v", s.Flags[1])
	}
}

func TestBuildSchemaUnknownPath(t *testing.T) {
	if _, err := Build(testTree(), "protocols bottom"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}

func TestActions(t *testing.T) {
	got := Actions(testTree())
	if len(got) != 1 || got["defi-agent protocols top"] != "top_protocols" {
		t.Fatalf("unexpected action map: %+v", got)
	}
}
