package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// E2EAsmTestSpec represents a single end-to-end assembly test case
type E2EAsmTestSpec struct {
	Name         string   `yaml:"name"`
	Input        string   `yaml:"input"`
	Args         []string `yaml:"args"`          // Extra command line flags
	Expect       []string `yaml:"expect"`        // Strings that must appear in output
	ExpectOrder  []string `yaml:"expect_order"`  // Strings that must appear in this order
	ExpectUnique []string `yaml:"expect_unique"` // Strings that must appear exactly once
	ExpectNot    []string `yaml:"expect_not"`    // Strings that must NOT appear in output
	ExpectError  []string `yaml:"expect_error"`  // Strings that must appear on stderr; the run must fail
	Skip         string   `yaml:"skip,omitempty"`
}

// E2EAsmTestFile represents the e2e_asm.yaml file structure
type E2EAsmTestFile struct {
	Tests []E2EAsmTestSpec `yaml:"tests"`
}

func TestE2EAsm(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e_asm.yaml")
	if err != nil {
		t.Fatalf("failed to read e2e_asm.yaml: %v", err)
	}
	var testFile E2EAsmTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e_asm.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			input := filepath.Join(t.TempDir(), "unit.yaml")
			if err := os.WriteFile(input, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write unit: %v", err)
			}

			args := append([]string{"-dasm"}, tc.Args...)
			out, errOut, err := execute(t, append(args, input)...)
			if len(tc.ExpectError) > 0 {
				if err == nil {
					t.Fatalf("expected failure, got:\n%s", out)
				}
				for _, exp := range tc.ExpectError {
					if !strings.Contains(errOut, exp) {
						t.Errorf("stderr missing %q:\n%s", exp, errOut)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("ralph816 failed: %v\nStderr: %s", err, errOut)
			}

			for _, exp := range tc.Expect {
				if !strings.Contains(out, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, out)
				}
			}
			pos := 0
			for _, exp := range tc.ExpectOrder {
				idx := strings.Index(out[pos:], exp)
				if idx < 0 {
					t.Errorf("expected %q after position %d\nGot:\n%s", exp, pos, out)
					break
				}
				pos += idx + len(exp)
			}
			for _, exp := range tc.ExpectUnique {
				if n := strings.Count(out, exp); n != 1 {
					t.Errorf("expected %q exactly once, found %d times\nGot:\n%s", exp, n, out)
				}
			}
			for _, exp := range tc.ExpectNot {
				if strings.Contains(out, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, out)
				}
			}
		})
	}
}
