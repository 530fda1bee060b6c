package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sha1n/mcp-bookworm-server/tests/integration/testkit"
	"github.com/spf13/cobra"
)

func TestExecute_Version(t *testing.T) {
	err := Execute("1.0.0", "abc123", "bookworm-mcp", []string{"--version"})
	if err != nil {
		t.Errorf("Expected no error for --version, got: %v", err)
	}
}

func TestExecute_Help(t *testing.T) {
	err := Execute("1.0.0", "abc123", "bookworm-mcp", []string{"--help"})
	if err != nil {
		t.Errorf("Expected no error for --help, got: %v", err)
	}
}

func TestExecute_InvalidFlag(t *testing.T) {
	err := Execute("1.0.0", "abc123", "bookworm-mcp", []string{"--invalid-flag"})
	if err == nil {
		t.Error("Expected error for invalid flag")
	}
}

func TestExecute_InvalidTransport(t *testing.T) {
	err := Execute("1.0.0", "abc123", "bookworm-mcp", []string{"--transport", "invalid"})
	if err == nil {
		t.Fatal("Expected error for invalid transport")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("Expected error about transport, got: %v", err)
	}
}

func TestRunMain_Success(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	// --help should succeed
	runMain([]string{"bookworm-mcp", "--help"}, mockExit)

	if exitCode != -1 {
		t.Errorf("Expected no exit call for --help, got exit code: %d", exitCode)
	}
}

func TestRunMain_Failure(t *testing.T) {
	exitCode := -1
	mockExit := func(code int) {
		exitCode = code
	}

	runMain([]string{"bookworm-mcp", "--invalid"}, mockExit)

	if exitCode != 1 {
		t.Errorf("Expected exit code 1 for invalid flag, got: %d", exitCode)
	}
}

func TestQueryCommand_Table(t *testing.T) {
	fake := startFake(t)

	out, err := runCommand(t, newQueryCommand(), serviceArgs(t, fake,
		"--group", "author", "--where", "word=liberty")...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header and 3 rows, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "author") || !strings.Contains(lines[0], "TextCount") {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Hamilton") {
		t.Errorf("Expected Hamilton first, got %q", lines[1])
	}

	q := fake.LastQuery()
	limits, _ := q["search_limits"].([]any)
	if len(limits) != 1 {
		t.Errorf("Expected one search limit, got %v", q["search_limits"])
	}
}

func TestQueryCommand_CSVWithLimit(t *testing.T) {
	fake := startFake(t)

	out, err := runCommand(t, newQueryCommand(), serviceArgs(t, fake,
		"-g", "author", "--format", "csv", "--limit", "2", "--counttype", "TextCount")...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := "author,TextCount\nHamilton,51\nMadison,29\n"
	if out != want {
		t.Errorf("Expected %q, got %q", want, out)
	}
}

func TestQueryCommand_File(t *testing.T) {
	fake := startFake(t)
	file := filepath.Join(t.TempDir(), "query.yaml")
	content := `groups: [date_year]
search_limits:
  - date_year:
      - gte: 1787
counttype: [WordCount]
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write query file: %v", err)
	}

	out, err := runCommand(t, newQueryCommand(), serviceArgs(t, fake, "--file", file, "-o", "json")...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, `"date_year":1787`) {
		t.Errorf("Expected JSON rows, got %s", out)
	}

	q := fake.LastQuery()
	if q["database"] != testkit.DefaultDatabase {
		t.Errorf("Expected default database, got %v", q["database"])
	}
	if ct, _ := q["counttype"].([]any); len(ct) != 1 || ct[0] != "WordCount" {
		t.Errorf("Expected counttype from file, got %v", q["counttype"])
	}
}

func TestQueryCommand_DryRun(t *testing.T) {
	fake := startFake(t)

	out, err := runCommand(t, newQueryCommand(), serviceArgs(t, fake,
		"-g", "date_year", "-w", "date_year<1788", "--dry-run")...)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, `"groups":["date_year"]`) || !strings.Contains(out, `"lt":1788`) {
		t.Errorf("Unexpected query %s", out)
	}
	for _, q := range fake.Queries() {
		if q["method"] == "return_json" {
			t.Error("Dry run should not run the query")
		}
	}
}

func TestQueryCommand_Errors(t *testing.T) {
	fake := startFake(t)

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"bad format", serviceArgs(t, fake, "--format", "xml"), "unsupported format"},
		{"file with groups", serviceArgs(t, fake, "--file", "q.yaml", "-g", "author"), "cannot be combined"},
		{"missing endpoint", []string{"--database", "federalist", "--cache-dir", t.TempDir()}, "endpoint is required"},
		{"unknown field", serviceArgs(t, fake, "-g", "shelfmark"), "shelfmark"},
		{"bad condition", serviceArgs(t, fake, "-w", "author"), "author"},
		{"missing file", serviceArgs(t, fake, "--file", filepath.Join(t.TempDir(), "none.yaml")), "query file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, newQueryCommand(), tt.args...)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestFieldsCommands(t *testing.T) {
	fake := startFake(t)

	out, err := runCommand(t, newFieldsCommand(), append([]string{"list"}, serviceArgs(t, fake)...)...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "publication_country") {
		t.Errorf("Unexpected list output:\n%s", out)
	}

	out, err = runCommand(t, newFieldsCommand(), append([]string{"search", "country"}, serviceArgs(t, fake)...)...)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "publication_country (character): Country of publication") {
		t.Errorf("Unexpected search output:\n%s", out)
	}

	out, err = runCommand(t, newFieldsCommand(), append([]string{"search", "zzzz"}, serviceArgs(t, fake)...)...)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "No fields found") {
		t.Errorf("Unexpected search output:\n%s", out)
	}

	out, err = runCommand(t, newFieldsCommand(), append([]string{"values", "author", "-n", "2"}, serviceArgs(t, fake)...)...)
	if err != nil {
		t.Fatalf("values failed: %v", err)
	}
	if out != "Hamilton\nMadison\n" {
		t.Errorf("Unexpected values output %q", out)
	}
}

func TestFieldsValues_Where(t *testing.T) {
	fake := startFake(t)

	_, err := runCommand(t, newFieldsCommand(),
		append([]string{"values", "author", "-w", "word=liberty", "-w", "date_year>1786"}, serviceArgs(t, fake)...)...)
	if err != nil {
		t.Fatalf("values failed: %v", err)
	}

	q := fake.LastQuery()
	limits, _ := q["search_limits"].([]any)
	if len(limits) != 1 {
		t.Fatalf("Expected one search limit, got %v", q["search_limits"])
	}
	limit := limits[0].(map[string]any)
	if _, ok := limit["word"]; ok {
		t.Error("Word limit should be dropped for field values")
	}
	if _, ok := limit["date_year"]; !ok {
		t.Error("Expected date_year limit")
	}
}

func TestStatsCommand(t *testing.T) {
	fake := startFake(t)

	out, err := runCommand(t, newStatsCommand(), serviceArgs(t, fake, "-o", "csv")...)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if out != "TextCount,WordCount\n85,190000\n" {
		t.Errorf("Unexpected stats output %q", out)
	}

	limits, _ := fake.LastQuery()["search_limits"].([]any)
	if len(limits) != 1 {
		t.Errorf("Expected year ceiling limit, got %v", fake.LastQuery()["search_limits"])
	}
}

func startFake(t *testing.T) *testkit.FakeBookworm {
	t.Helper()
	fake := testkit.NewFakeBookworm()
	if _, err := fake.Start(); err != nil {
		t.Fatalf("Failed to start fake: %v", err)
	}
	t.Cleanup(func() { _ = fake.Stop() })
	return fake
}

func serviceArgs(t *testing.T, fake *testkit.FakeBookworm, extra ...string) []string {
	t.Helper()
	args := []string{
		"--endpoint", fake.Endpoint(),
		"--database", testkit.DefaultDatabase,
		"--cache-dir", t.TempDir(),
	}
	return append(args, extra...)
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
