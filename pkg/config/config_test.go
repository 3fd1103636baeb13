package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestTemps(t *testing.T) {
	c := Default()
	if c.OperandTemp() != 0x08 || c.PointerTemp() != 0x0A || c.SaveTemp() != 0x0D {
		t.Errorf("temps = %#x %#x %#x", c.OperandTemp(), c.PointerTemp(), c.SaveTemp())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(*Config) bool
		wantErr string
	}{
		{
			name:  "empty keeps defaults",
			input: "",
			check: func(c *Config) bool { return *c == *Default() },
		},
		{
			name:  "overrides",
			input: "scratch_base: 0x40\nscratch_size: 32\njobs: 4\n",
			check: func(c *Config) bool {
				return c.ScratchBase == 0x40 && c.ScratchSize == 32 && c.Jobs == 4 && c.TempBase == 0x08
			},
		},
		{
			name:  "thresholds",
			input: "dense_ratio: 0.75\nmin_table_values: 4\nmax_table_span: 64\nmax_type_tags: 8\n",
			check: func(c *Config) bool {
				return c.DenseRatio == 0.75 && c.MinTableValues == 4 && c.MaxTableSpan == 64 && c.MaxTypeTags == 8
			},
		},
		{name: "pool past direct page", input: "scratch_base: 0xF8\n", wantErr: "scratch pool"},
		{name: "temps past direct page", input: "temp_base: 0xFC\n", wantErr: "temp area"},
		{name: "overlap", input: "temp_base: 0x14\n", wantErr: "overlaps"},
		{name: "ratio", input: "dense_ratio: 0\n", wantErr: "dense_ratio"},
		{name: "min values", input: "min_table_values: 0\n", wantErr: "min_table_values"},
		{name: "span", input: "max_table_span: 300\n", wantErr: "max_table_span"},
		{name: "tags", input: "max_type_tags: 256\n", wantErr: "max_type_tags"},
		{name: "jobs", input: "jobs: -2\n", wantErr: "jobs"},
		{name: "bad yaml", input: "jobs: [1\n", wantErr: "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !tt.check(c) {
				t.Errorf("config = %+v", c)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := os.WriteFile(path, []byte("temp_base: 0x30\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.TempBase != 0x30 || c.OperandTemp() != 0x30 {
		t.Errorf("TempBase = %#x", c.TempBase)
	}
	if _, err := Load(path + ".missing"); err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Errorf("missing file: err = %v", err)
	}
}
