package linearize

import (
	"testing"

	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/target"
)

// chain builds
//
//	b0: if v == 0 goto b1 else b3
//	b1: jump b2
//	b2: jump b3
//	b3: return
//	b4: return          (unreachable)
func chain() (*ir.Function, ir.VReg) {
	fn := ir.NewFunction("chain", target.Narrow)
	v := fn.NewVReg(ir.VRegInfo{Width: target.W8})
	for _, name := range []string{"entry", "a", "b", "end", "dead"} {
		fn.NewBlock(name)
	}
	fn.Blocks[0].Append(ir.Const{Dst: v, Value: 0})
	fn.Blocks[0].Term = ir.Branch{Cond: ir.EQ, L: v, R: ir.Imm(0), Then: 1, Else: 3}
	fn.Blocks[1].Term = ir.Jump{Target: 2}
	fn.Blocks[2].Term = ir.Jump{Target: 3}
	fn.Blocks[3].Term = ir.Return{}
	fn.Blocks[4].Term = ir.Return{}
	return fn, v
}

func TestTunnelSimpleChain(t *testing.T) {
	fn, _ := chain()
	Tunnel(fn)
	br := fn.Blocks[0].Term.(ir.Branch)
	if br.Then != 3 || br.Else != 3 {
		t.Errorf("branch targets = %d/%d, want 3/3", br.Then, br.Else)
	}
	if j := fn.Blocks[1].Term.(ir.Jump); j.Target != 3 {
		t.Errorf("b1 jumps to %d, want 3", j.Target)
	}
}

func TestTunnelCycle(t *testing.T) {
	fn := ir.NewFunction("spin", target.Narrow)
	fn.NewBlock("entry").Term = ir.Jump{Target: 1}
	fn.NewBlock("a").Term = ir.Jump{Target: 2}
	fn.NewBlock("b").Term = ir.Jump{Target: 1}
	Tunnel(fn)
	// Terminates; every block still jumps somewhere inside the cycle.
	for _, b := range fn.Blocks {
		j := b.Term.(ir.Jump)
		if j.Target != 1 && j.Target != 2 {
			t.Errorf("b%d jumps to %d, want 1 or 2", b.ID, j.Target)
		}
	}
}

func TestLinearizeDropsDeadBlocks(t *testing.T) {
	fn, v := chain()
	out := Linearize(fn)

	if len(out.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(out.Blocks))
	}
	if out.Blocks[1].Name != "end" || out.Blocks[1].ID != 1 {
		t.Errorf("second block = b%d.%s, want b1.end", out.Blocks[1].ID, out.Blocks[1].Name)
	}
	// Both arms reach the same block, so the branch becomes a jump
	// to the next block.
	j, ok := out.Blocks[0].Term.(ir.Jump)
	if !ok || j.Target != 1 {
		t.Errorf("entry terminator = %#v, want jump to b1", out.Blocks[0].Term)
	}
	if Next(out, 0) != 1 || Next(out, 1) != -1 {
		t.Error("Next does not follow layout order")
	}
	if out.Info(v).Width != target.W8 {
		t.Error("register table not carried over")
	}

	// The input is unchanged.
	if br := fn.Blocks[0].Term.(ir.Branch); br.Then != 1 {
		t.Errorf("input branch retargeted to %d", br.Then)
	}
	if len(fn.Blocks) != 5 {
		t.Errorf("input has %d blocks, want 5", len(fn.Blocks))
	}
}

func TestLinearizeTunnelsEntry(t *testing.T) {
	fn := ir.NewFunction("f", target.Narrow)
	fn.NewBlock("entry").Term = ir.Jump{Target: 1}
	fn.NewBlock("body").Term = ir.Return{}
	out := Linearize(fn)
	if len(out.Blocks) != 1 || out.Blocks[0].Name != "body" || out.Entry != 0 {
		t.Errorf("got %d blocks starting at %q, want only body", len(out.Blocks), out.Blocks[0].Name)
	}
}

func TestLinearizeKeepsJumpTableTargets(t *testing.T) {
	fn := ir.NewFunction("jt", target.Narrow)
	v := fn.NewVReg(ir.VRegInfo{Width: target.W8})
	fn.NewBlock("entry").Term = ir.JumpTable{Index: v, Targets: []ir.BlockID{2, 3, 2}}
	fn.NewBlock("dead").Term = ir.Return{}
	fn.NewBlock("x").Term = ir.Return{}
	fn.NewBlock("y").Term = ir.Return{}
	out := Linearize(fn)

	jt := out.Blocks[0].Term.(ir.JumpTable)
	want := []ir.BlockID{1, 2, 1}
	for i := range want {
		if jt.Targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", jt.Targets, want)
		}
	}
}
