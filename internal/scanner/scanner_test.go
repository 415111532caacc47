package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
	return root
}

func paths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestScannerScan(t *testing.T) {
	root := makeTree(t, map[string]string{
		"main.c":              "int main() { return 0; }",
		"lib/util.c":          "int one() { return 1; }",
		"lib/util.h":          "int one();",
		"README.md":           "# Test",
		"UPPER.C":             "int x;",
		".hidden/secret.c":    "int s;",
		"build/generated.c":   "int g;",
		".git/objects/blob.c": "int b;",
	})

	results, err := New(DefaultOptions()).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"UPPER.C", "lib/util.c", "main.c"}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}

	for _, f := range results {
		if !filepath.IsAbs(f.FullPath) {
			t.Errorf("FullPath %s is not absolute", f.FullPath)
		}
		if f.Size == 0 {
			t.Errorf("%s has zero size", f.Path)
		}
	}
}

func TestScannerWithIgnoreFile(t *testing.T) {
	root := makeTree(t, map[string]string{
		".flowcignore": `
# generated sources
gen/
*_test.c
!keep_test.c
/top.c
`,
		"main.c":           "",
		"top.c":            "",
		"sub/top.c":        "",
		"gen/out.c":        "",
		"sub/gen/deep.c":   "",
		"a_test.c":         "",
		"keep_test.c":      "",
		"sub/other_test.c": "",
	})

	results, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"keep_test.c", "main.c", "sub/top.c"}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestScannerNestedIgnoreFile(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.c":                    "",
		"pkg/.flowcignore":       "skip.c\n",
		"pkg/skip.c":             "",
		"pkg/keep.c":             "",
		"skip.c":                 "",
		"pkg/inner/skip.c":       "",
		"pkg/inner/.flowcignore": "!skip.c\n",
		"other/.flowcignore":     "/local.c\n",
		"other/local.c":          "",
		"other/nested/local.c":   "",
		"other/nested/other.c":   "",
	})

	results, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{
		"a.c",
		"other/nested/local.c",
		"other/nested/other.c",
		"pkg/inner/skip.c",
		"pkg/keep.c",
		"skip.c",
	}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestScannerSingleFile(t *testing.T) {
	root := makeTree(t, map[string]string{"one.c": "int one() { return 1; }", "notes.txt": "x"})

	results, err := Scan(filepath.Join(root, "one.c"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 1 || results[0].Path != "one.c" {
		t.Errorf("Scan(file) = %v, want [one.c]", paths(results))
	}

	_, err = Scan(filepath.Join(root, "notes.txt"))
	if err == nil || !strings.Contains(err.Error(), "not a source file") {
		t.Errorf("Scan(notes.txt) error = %v", err)
	}

	if _, err := Scan(filepath.Join(root, "missing")); err == nil {
		t.Error("Scan(missing) should fail")
	}
}

func TestScannerOptions(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.c":          "",
		"b.h":          "",
		".hidden/c.c":  "",
		"custom/d.c":   "",
		"skip.list":    "a.c\n",
		".flowcignore": "b.h\n",
	})

	opts := Options{
		SkipHidden:      false,
		Extensions:      []string{".c", ".h"},
		DefaultExcludes: []string{"custom"},
		IgnoreFileName:  "skip.list",
	}
	results, err := New(opts).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{".hidden/c.c", "b.h"}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestRuleMatch(t *testing.T) {
	tests := []struct {
		rule  string
		path  string
		isDir bool
		want  bool
	}{
		{"foo.c", "foo.c", false, true},
		{"foo.c", "a/b/foo.c", false, true},
		{"foo.c", "foo.cc", false, false},
		{"*.c", "x/y.c", false, true},
		{"?.c", "ab.c", false, false},
		{"[ab].c", "b.c", false, true},
		{"/foo.c", "a/foo.c", false, false},
		{"/foo.c", "foo.c", false, true},
		{"a/*.c", "a/x.c", false, true},
		{"a/*.c", "b/a/x.c", false, false},
		{"a/**/x.c", "a/x.c", false, true},
		{"a/**/x.c", "a/b/c/x.c", false, true},
		{"**/gen", "deep/er/gen", true, true},
		{"gen/", "gen", true, true},
		{"gen/", "gen", false, false},
		{"gen/", "src/gen", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.rule+" "+tt.path, func(t *testing.T) {
			r, ok := ParseRule(tt.rule)
			if !ok {
				t.Fatalf("ParseRule(%q) rejected the rule", tt.rule)
			}
			if got := r.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestParseRulesSkipsBlankAndComments(t *testing.T) {
	rules, err := ParseRules(strings.NewReader("\n# comment\n  \n*.c\n!main.c\n/\n"))
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if !rules[1].Negated() {
		t.Error("second rule should be a negation")
	}
	if !rules.Ignored("x.c", false) {
		t.Error("x.c should be ignored")
	}
	if rules.Ignored("main.c", false) {
		t.Error("main.c should be re-included")
	}
}
