package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "preptools"}
	root.PersistentFlags().String("url", "", "node url")
	leaf := &cobra.Command{
		Use:   "getPRep",
		Short: "query one PRep",
		Annotations: map[string]string{
			AnnotationClass: "read",
			AnnotationRPC:   "icx_call",
		},
		Run: func(*cobra.Command, []string) {},
	}
	leaf.Flags().String("address", "", "PRep address")
	_ = leaf.MarkFlagRequired("address")
	root.AddCommand(leaf)
	return root
}

func TestBuildSchema(t *testing.T) {
	s, err := Build(testTree(), "getprep")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "preptools getPRep" || s.Class != "read" {
		t.Fatalf("unexpected schema: %+v", s)
	}
	if len(s.RPCMethods) != 1 || s.RPCMethods[0] != "icx_call" {
		t.Fatalf("unexpected rpc methods: %+v", s.RPCMethods)
	}
	if len(s.Flags) != 2 {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if s.Flags[0].Name != "address" || !s.Flags[0].Required || s.Flags[0].Inherited {
		t.Fatalf("unexpected local flag: %+v", s.Flags[0])
	}
	if s.Flags[1].Name != "url" || !s.Flags[1].Inherited {
		t.Fatalf("unexpected inherited flag: %+v", s.Flags[1])
	}
}

func TestBuildUnknownCommand(t *testing.T) {
	if _, err := Build(testTree(), "getPReps"); err == nil {
		t.Fatal("expected unknown command error")
	}
}
