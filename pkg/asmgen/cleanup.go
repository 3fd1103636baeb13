package asmgen

import (
	"strings"

	"github.com/raymyers/ralph816/pkg/asm"
)

// CleanupLabels removes labels nothing refers to. A label is referenced by
// a symbolic operand of any instruction, including expressions such as
// "ret-1", or by a code address in one of tables.
func CleanupLabels(fn *asm.Function, tables []asm.DataTable) {
	used := collectUsedLabels(fn, tables)
	code := make([]asm.Instr, 0, len(fn.Code))
	for _, in := range fn.Code {
		if in.Op == asm.Label && !used[in.Sym] {
			continue
		}
		code = append(code, in)
	}
	fn.Code = code
}

func collectUsedLabels(fn *asm.Function, tables []asm.DataTable) map[string]bool {
	used := make(map[string]bool)
	for _, in := range fn.Code {
		if in.Op != asm.Label && in.Sym != "" {
			used[symbolBase(in.Sym)] = true
		}
	}
	for _, t := range tables {
		for _, s := range t.Targets {
			used[s] = true
		}
	}
	return used
}

// symbolBase strips a bank operator and an offset from a symbol expression.
func symbolBase(s string) string {
	s = strings.TrimPrefix(s, "^")
	if i := strings.IndexAny(s, "+-"); i > 0 {
		return s[:i]
	}
	return s
}
