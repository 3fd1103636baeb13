package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const unitSrc = `
functions:
  - name: inc
    params:
      - {name: v, type: u8, reg: a}
    returns:
      - {type: u8, reg: a}
    body:
      - tail: {binary: {op: "+", l: {name: v}, r: {int: 1}}}
`

// resetDebugFlags resets all flag globals to their default values.
func resetDebugFlags() {
	dIR = false
	dAlloc = false
	dAsm = false
	configPath = ""
	outputPath = ""
	jobs = 0
	verbose = false
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetDebugFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	for _, name := range []string{"dir", "dalloc", "dasm", "config", "output", "jobs", "verbose", "scratch"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"-dasm", "u.yaml"}, []string{"--dasm", "u.yaml"}},
		{[]string{"-dir", "-dalloc"}, []string{"--dir", "--dalloc"}},
		{[]string{"--dasm"}, []string{"--dasm"}},
		{[]string{"-o", "out.s"}, []string{"-o", "out.s"}},
		{[]string{"-dfoo"}, []string{"-dfoo"}},
	}
	for _, tt := range tests {
		if got := normalizeFlags(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("normalizeFlags(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScratchFlag(t *testing.T) {
	tests := []struct {
		in         string
		base, size int
		wantErr    bool
	}{
		{"0x10:16", 0x10, 16, false},
		{"32:8", 32, 8, false},
		{"0x20:0x10", 0x20, 16, false},
		{"0x10", 0, 0, true},
		{"x:16", 0, 0, true},
		{"16:y", 0, 0, true},
	}
	for _, tt := range tests {
		var s scratchFlag
		err := s.Set(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Set(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && (s.base != tt.base || s.size != tt.size || !s.set) {
			t.Errorf("Set(%q) = %+v", tt.in, s)
		}
	}
	s := scratchFlag{base: 0x10, size: 16, set: true}
	if got := s.String(); got != "0x10:16" {
		t.Errorf("String() = %q", got)
	}
}

func TestNoArgsShowsHelp(t *testing.T) {
	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "ralph816") {
		t.Errorf("expected usage, got %q", out)
	}
}

func TestCompileWritesAssembly(t *testing.T) {
	input := writeFile(t, "unit.yaml", unitSrc)
	out, errOut, err := execute(t, input)
	if err != nil {
		t.Fatalf("compile failed: %v\n%s", err, errOut)
	}
	if out != "" {
		t.Errorf("expected no stdout, got %q", out)
	}
	data, err := os.ReadFile(strings.TrimSuffix(input, ".yaml") + ".s")
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	if !strings.Contains(string(data), "inc:\n") {
		t.Errorf("output missing inc:\n%s", data)
	}
}

func TestOutputFlag(t *testing.T) {
	input := writeFile(t, "unit.yaml", unitSrc)
	dest := filepath.Join(t.TempDir(), "prog.asm")
	if _, errOut, err := execute(t, "-o", dest, input); err != nil {
		t.Fatalf("compile failed: %v\n%s", err, errOut)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("expected %s: %v", dest, err)
	}
	if _, err := os.Stat(strings.TrimSuffix(input, ".yaml") + ".s"); err == nil {
		t.Error("default output written despite -o")
	}
}

func TestDumps(t *testing.T) {
	input := writeFile(t, "unit.yaml", unitSrc)
	tests := []struct {
		flag string
		want string
	}{
		{"-dir", "inc ("},
		{"-dalloc", "inc: frame 0"},
		{"-dasm", "\tRTS\n"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			out, errOut, err := execute(t, tt.flag, input)
			if err != nil {
				t.Fatalf("compile failed: %v\n%s", err, errOut)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
	if _, err := os.Stat(strings.TrimSuffix(input, ".yaml") + ".s"); err == nil {
		t.Error("dumps should not write the output file")
	}
}

func TestVerbose(t *testing.T) {
	input := writeFile(t, "unit.yaml", unitSrc)
	_, errOut, err := execute(t, "--verbose", "-dasm", input)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !strings.Contains(errOut, "ralph816: functions: 1 compiled, 0 failed") {
		t.Errorf("missing progress log:\n%s", errOut)
	}
}

func TestCompileErrorsReported(t *testing.T) {
	input := writeFile(t, "unit.yaml", `
functions:
  - name: bad
    body:
      - break: {}
  - name: good
    body: []
`)
	out, errOut, err := execute(t, "-dasm", input)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(errOut, "ralph816: label error L0002 in bad:") {
		t.Errorf("unexpected stderr %q", errOut)
	}
	if !strings.Contains(out, "good:") {
		t.Errorf("functions that compiled should still be dumped:\n%s", out)
	}
}

func TestConfigErrors(t *testing.T) {
	input := writeFile(t, "unit.yaml", unitSrc)
	badConfig := writeFile(t, "target.yaml", "scratch_base: 0xF8\nscratch_size: 16\n")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad config file", []string{"--config", badConfig, input}, "scratch pool"},
		{"missing config file", []string{"--config", badConfig + ".none", input}, "reading config"},
		{"scratch over temps", []string{"--scratch", "0x04:8", input}, "overlaps"},
		{"negative jobs", []string{"--jobs", "-1", input}, "jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(errOut, tt.want) {
				t.Errorf("stderr %q does not mention %q", errOut, tt.want)
			}
		})
	}
}

func TestMissingInput(t *testing.T) {
	_, errOut, err := execute(t, filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.HasPrefix(errOut, "ralph816: ") {
		t.Errorf("unexpected stderr %q", errOut)
	}
}

func TestAsmOutputFilename(t *testing.T) {
	tests := map[string]string{
		"unit.yaml":     "unit.s",
		"dir/game.yml":  "dir/game.s",
		"noext":         "noext.s",
		"a.b/prog.yaml": "a.b/prog.s",
	}
	for in, want := range tests {
		if got := asmOutputFilename(in); got != want {
			t.Errorf("asmOutputFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
