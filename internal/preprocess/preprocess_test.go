package preprocess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestObjectLikeMacroExpansion(t *testing.T) {
	src := "#define MAX 100\nint x = MAX;\n"
	out, err := Run(src, filepath.Join(t.TempDir(), "a.btrc"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "int x = 100;") {
		t.Fatalf("output = %q, want expansion of MAX", out)
	}
}

func TestFunctionLikeMacroExpansion(t *testing.T) {
	src := "#define ADD(a,b) ((a)+(b))\nint x = ADD(1,2);\n"
	out, err := Run(src, filepath.Join(t.TempDir(), "a.btrc"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "((1)+(2))") {
		t.Fatalf("output = %q, want expanded call", out)
	}
}

func TestMacroNotExpandedInsideStringLiteral(t *testing.T) {
	src := "#define MAX 100\nstring s = \"MAX\";\n"
	out, err := Run(src, filepath.Join(t.TempDir(), "a.btrc"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, `"MAX"`) {
		t.Fatalf("output = %q, want literal MAX preserved inside string", out)
	}
}

func TestIncludeInlinesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.btrc"), []byte("int helper() { return 1; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := "#include \"lib.btrc\"\nint main() { return helper(); }\n"
	out, err := Run(src, filepath.Join(dir, "main.btrc"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "int helper()") {
		t.Fatalf("output = %q, want inlined helper", out)
	}
}

func TestIncludeCycleIsRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.btrc"), []byte("#include \"b.btrc\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.btrc"), []byte("#include \"a.btrc\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := os.ReadFile(filepath.Join(dir, "a.btrc"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(string(src), filepath.Join(dir, "a.btrc"), Options{}); err == nil {
		t.Fatal("expected a circular include error")
	}
}

func TestDiamondIncludeIsProcessedOnce(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "common.btrc"), []byte("int shared;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "left.btrc"), []byte("#include \"common.btrc\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "right.btrc"), []byte("#include \"common.btrc\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := "#include \"left.btrc\"\n#include \"right.btrc\"\n"
	out, err := Run(src, filepath.Join(dir, "main.btrc"), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Count(out, "int shared;") != 1 {
		t.Fatalf("output = %q, want \"int shared;\" exactly once", out)
	}
}
