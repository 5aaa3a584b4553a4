package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDetectBuildSystem(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		want     BuildSystem
		wantTest string
	}{
		{
			name:     "cargo",
			files:    map[string]string{"Cargo.toml": "[package]\nname = \"x\"\n"},
			want:     BuildCargo,
			wantTest: "cargo test",
		},
		{
			name:     "npm with test script",
			files:    map[string]string{"package.json": `{"scripts":{"test":"jest"}}`},
			want:     BuildNPM,
			wantTest: "npm test",
		},
		{
			name:     "npm placeholder test script",
			files:    map[string]string{"package.json": `{"scripts":{"test":"echo \"Error: no test specified\" && exit 1"}}`},
			want:     BuildNPM,
			wantTest: "",
		},
		{
			name:     "go module",
			files:    map[string]string{"go.mod": "module example.com/x\n"},
			want:     BuildGo,
			wantTest: "go test ./...",
		},
		{
			name:     "makefile with test target",
			files:    map[string]string{"Makefile": "build:\n\tgo build\n\ntest:\n\tgo test ./...\n"},
			want:     BuildMake,
			wantTest: "make test",
		},
		{
			name:     "makefile without test target",
			files:    map[string]string{"Makefile": "build:\n\tgo build\n"},
			want:     BuildMake,
			wantTest: "",
		},
		{
			name:     "cargo outranks npm",
			files:    map[string]string{"Cargo.toml": "", "package.json": `{"scripts":{"test":"jest"}}`},
			want:     BuildCargo,
			wantTest: "cargo test",
		},
		{
			name:  "nothing recognized",
			files: map[string]string{"README.md": "hi"},
			want:  BuildUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			system, testCmd := detectBuildSystem(dir)
			if system != tt.want {
				t.Errorf("system = %q, want %q", system, tt.want)
			}
			if testCmd != tt.wantTest {
				t.Errorf("test command = %q, want %q", testCmd, tt.wantTest)
			}
		})
	}
}

func TestScanReadsInstructions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "CLAUDE.md", "always run gofmt")
	writeFile(t, dir, "go.mod", "module example.com/x\n")

	ctx, err := New().Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if ctx.Instructions != "always run gofmt" {
		t.Errorf("Instructions = %q", ctx.Instructions)
	}
	if ctx.BuildSystem != BuildGo {
		t.Errorf("BuildSystem = %q", ctx.BuildSystem)
	}
}

func TestScanInstructionsFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "AGENTS.md", "agents file")

	ctx, err := New().Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if ctx.Instructions != "agents file" {
		t.Errorf("Instructions = %q", ctx.Instructions)
	}
}

func TestScanTreeIgnoresDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "node_modules/pkg/index.js", "x")
	writeFile(t, dir, "src/lib.go", "package lib")

	ctx, err := New().Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, f := range ctx.Tree {
		if strings.HasPrefix(f, "node_modules/") {
			t.Errorf("tree contains ignored path %q", f)
		}
	}
	if !containsPath(ctx.Tree, "main.go") || !containsPath(ctx.Tree, "src/lib.go") {
		t.Errorf("tree missing expected files: %v", ctx.Tree)
	}
}

func TestScanExtraIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", "x")
	writeFile(t, dir, "secret.env", "x")

	ctx, err := New("*.env").Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if containsPath(ctx.Tree, "secret.env") {
		t.Error("extra ignore pattern not applied")
	}
}

func TestScanMissingPath(t *testing.T) {
	if _, err := New().Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestTreeSummary(t *testing.T) {
	ctx := &Context{Tree: []string{"a.go", "b/c.go"}, TreeTruncated: true}
	summary := ctx.TreeSummary()
	if !strings.Contains(summary, "a.go") || !strings.Contains(summary, "b/c.go") {
		t.Errorf("summary missing files: %q", summary)
	}
	if !strings.Contains(summary, "truncated") {
		t.Error("summary missing truncation note")
	}

	empty := &Context{}
	if empty.TreeSummary() != "" {
		t.Error("empty tree should render empty summary")
	}
}

func containsPath(tree []string, path string) bool {
	for _, f := range tree {
		if f == path {
			return true
		}
	}
	return false
}
