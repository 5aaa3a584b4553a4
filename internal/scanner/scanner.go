// Package scanner collects the repository context that planner requests
// and sub-agent prompts are built from: build system, test command,
// project instructions, and a bounded file tree.
package scanner

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// BuildSystem identifies the detected project build tooling.
type BuildSystem string

const (
	BuildCargo   BuildSystem = "cargo"
	BuildNPM     BuildSystem = "npm"
	BuildGo      BuildSystem = "go"
	BuildMake    BuildSystem = "make"
	BuildUnknown BuildSystem = ""
)

// maxTreeFiles caps how many paths the file tree carries into prompts.
const maxTreeFiles = 200

// instructionFiles are project rule files read into prompts, first hit
// wins.
var instructionFiles = []string{"CLAUDE.md", "AGENTS.md"}

// defaultIgnorePatterns are paths excluded from the file tree.
var defaultIgnorePatterns = []string{
	".git/**",
	".overseer/**",
	"node_modules/**",
	"target/**",
	"vendor/**",
	"dist/**",
	"build/**",
}

// Context is the scanned repository summary.
type Context struct {
	RepoPath      string
	BuildSystem   BuildSystem
	TestCommand   string
	Instructions  string
	Tree          []string
	TreeTruncated bool
}

// Scanner walks a repository and produces a Context.
type Scanner struct {
	ignore []glob.Glob
}

// New creates a scanner. Extra ignore patterns are added on top of the
// defaults; invalid patterns are skipped.
func New(extraIgnore ...string) *Scanner {
	patterns := append(append([]string{}, defaultIgnorePatterns...), extraIgnore...)
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		if g, err := glob.Compile(p, '/'); err == nil {
			compiled = append(compiled, g)
		}
	}
	return &Scanner{ignore: compiled}
}

// Scan reads build files, instruction files, and the tracked file tree
// of the repository at repoPath.
func (s *Scanner) Scan(repoPath string) (*Context, error) {
	if _, err := os.Stat(repoPath); err != nil {
		return nil, err
	}

	ctx := &Context{RepoPath: repoPath}
	ctx.BuildSystem, ctx.TestCommand = detectBuildSystem(repoPath)
	ctx.Instructions = readInstructions(repoPath)

	tree, truncated := s.fileTree(repoPath)
	ctx.Tree = tree
	ctx.TreeTruncated = truncated
	return ctx, nil
}

// detectBuildSystem checks for build files in priority order and derives
// the test command for the first match.
func detectBuildSystem(repoPath string) (BuildSystem, string) {
	if fileExists(filepath.Join(repoPath, "Cargo.toml")) {
		return BuildCargo, "cargo test"
	}
	if fileExists(filepath.Join(repoPath, "package.json")) {
		return BuildNPM, npmTestCommand(repoPath)
	}
	if fileExists(filepath.Join(repoPath, "go.mod")) {
		return BuildGo, "go test ./..."
	}
	if mf := makefilePath(repoPath); mf != "" {
		if makefileHasTestTarget(mf) {
			return BuildMake, "make test"
		}
		return BuildMake, ""
	}
	return BuildUnknown, ""
}

// npmTestCommand returns "npm test" only when package.json declares a
// real test script; npm's default test script exits non-zero with an
// error message, which would fail every verification.
func npmTestCommand(repoPath string) string {
	data, err := os.ReadFile(filepath.Join(repoPath, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	script := strings.TrimSpace(pkg.Scripts["test"])
	if script == "" || strings.Contains(script, "no test specified") {
		return ""
	}
	return "npm test"
}

func makefilePath(repoPath string) string {
	for _, name := range []string{"Makefile", "makefile", "GNUmakefile"} {
		p := filepath.Join(repoPath, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

var makeTestTargetRegex = regexp.MustCompile(`(?m)^test\s*:`)

func makefileHasTestTarget(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return makeTestTargetRegex.Match(data)
}

// readInstructions returns the first project instruction file found.
func readInstructions(repoPath string) string {
	for _, name := range instructionFiles {
		data, err := os.ReadFile(filepath.Join(repoPath, name))
		if err == nil {
			return string(data)
		}
	}
	return ""
}

// fileTree lists tracked files via git, falling back to a directory walk
// for non-git paths. Paths matching ignore patterns are dropped and the
// result is capped.
func (s *Scanner) fileTree(repoPath string) ([]string, bool) {
	var files []string
	cmd := exec.Command("git", "ls-files")
	cmd.Dir = repoPath
	if out, err := cmd.Output(); err == nil {
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line != "" {
				files = append(files, line)
			}
		}
	} else {
		files = s.walkTree(repoPath)
	}

	kept := make([]string, 0, len(files))
	truncated := false
	for _, f := range files {
		if s.ignored(f) {
			continue
		}
		if len(kept) >= maxTreeFiles {
			truncated = true
			break
		}
		kept = append(kept, f)
	}
	return kept, truncated
}

func (s *Scanner) walkTree(repoPath string) []string {
	var files []string
	_ = filepath.WalkDir(repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(repoPath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if s.ignored(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files
}

func (s *Scanner) ignored(path string) bool {
	for _, g := range s.ignore {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// TreeSummary renders the file tree for inclusion in a prompt.
func (c *Context) TreeSummary() string {
	if len(c.Tree) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, f := range c.Tree {
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	if c.TreeTruncated {
		sb.WriteString("... (truncated)\n")
	}
	return sb.String()
}
