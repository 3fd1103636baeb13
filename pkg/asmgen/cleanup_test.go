package asmgen

import (
	"slices"
	"testing"

	"github.com/raymyers/ralph816/pkg/asm"
)

func TestCleanupLabels(t *testing.T) {
	fn := &asm.Function{Name: "f", Code: []asm.Instr{
		asm.Lbl("f_L0"),
		asm.Br(asm.BNE, "f_L1"),
		asm.Lbl("f_L1"),
		asm.Instr{Op: asm.PER, Mode: asm.RelLong, Sym: "f_r1-1"},
		asm.Lbl("f_r1"),
		asm.Lbl("f_L2"),
		asm.Lbl("f_L3"),
		asm.I(asm.RTS),
	}}
	tables := []asm.DataTable{{Name: "f_jt0", Kind: asm.AddrTable, Width: 2, Targets: []string{"f_L2"}}}
	CleanupLabels(fn, tables)

	want := []string{"BNE f_L1", "f_L1:", "PER f_r1-1", "f_r1:", "f_L2:", "RTS"}
	if got := listing(fn.Code); !slices.Equal(got, want) {
		t.Errorf("code = %q, want %q", got, want)
	}
}

func TestSymbolBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"f_L1", "f_L1"},
		{"f_r1-1", "f_r1"},
		{"^table", "table"},
		{"buf+2", "buf"},
	}
	for _, tt := range tests {
		if got := symbolBase(tt.in); got != tt.want {
			t.Errorf("symbolBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
