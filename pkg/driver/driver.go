// Package driver runs a compilation unit through the backend.
//
// Dispatch tables are built first, since tag assignment depends on the
// declaration order of the whole unit. Every function and impl method is
// then compiled independently: call checks, lowering, block layout,
// allocation, instruction selection, branch fixup and the mode-symmetry
// check. An error stops only the function it belongs to; unit-global
// errors stop the run.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph816/pkg/abi"
	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/asmgen"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/dispatch"
	"github.com/raymyers/ralph816/pkg/fixup"
	"github.com/raymyers/ralph816/pkg/ir"
	"github.com/raymyers/ralph816/pkg/linearize"
	"github.com/raymyers/ralph816/pkg/lower"
	"github.com/raymyers/ralph816/pkg/regalloc"
)

// Options configures a compilation.
type Options struct {
	Config *config.Config
	// Log receives one line per pipeline stage when set.
	Log io.Writer
}

// Function is the output of every stage for one function.
type Function struct {
	Name  string
	Sig   *abi.Signature
	IR    *ir.Function // in layout order
	Alloc *regalloc.Allocation
	Asm   *asm.Function
	// Tables are the function's lookup and jump tables.
	Tables []asm.DataTable
}

// Output is the result of compiling a unit. Functions that failed to
// compile are missing from it.
type Output struct {
	Functions []*Function
	Dispatch  *dispatch.Result
	Program   *asm.Program
}

type job struct {
	symbol string
	fn     *ast.Function
	sig    *abi.Signature
}

type compiler struct {
	u    *ast.Unit
	cfg  *config.Config
	log  io.Writer
	mu   sync.Mutex
	lctx *lower.Context
}

// logf writes a progress line. Functions compile concurrently, so lines
// are serialized.
func (c *compiler) logf(format string, args ...any) {
	if c.log == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.log, "ralph816: "+format+"\n", args...)
}

// Compile compiles u. The returned error is a diag.List of every
// per-function error, or a single unit-global error; the output holds
// whatever compiled.
func Compile(ctx context.Context, u *ast.Unit, opts Options) (*Output, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	c := &compiler{u: u, cfg: cfg, log: opts.Log}
	var errs diag.List

	tags := dispatch.NewContext(cfg.MaxTypeTags)
	res, err := dispatch.Build(u, tags)
	if err != nil {
		if isGlobal(err) {
			return nil, err
		}
		errs.Add(err)
	}
	c.logf("dispatch: %d tagged types, %d tables", tags.Len(), len(res.Tables))

	jobs, sigs, err := c.signatures()
	errs.Add(err)
	c.logf("abi: %d signatures", len(sigs))
	c.lctx = &lower.Context{Unit: u, Sigs: sigs, Dispatch: res, Tags: tags, Config: cfg}

	outs := make([]*Function, len(jobs))
	fnErrs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Jobs, 1))
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outs[i], fnErrs[i] = c.compileFunction(j)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Output{Dispatch: res, Program: &asm.Program{}}
	for i, f := range outs {
		if fnErrs[i] != nil {
			errs.Add(fnErrs[i])
			continue
		}
		out.Functions = append(out.Functions, f)
		out.Program.Functions = append(out.Program.Functions, f.Asm)
		out.Program.Tables = append(out.Program.Tables, f.Tables...)
	}
	c.logf("functions: %d compiled, %d failed", len(out.Functions), len(jobs)-len(out.Functions))

	if len(res.Tables) > 0 {
		trap, err := fixup.Resolve(Trap())
		if err != nil {
			return nil, err
		}
		out.Program.Functions = append(out.Program.Functions, trap)
		for _, t := range res.Tables {
			out.Program.Tables = append(out.Program.Tables, t.Data())
		}
	}
	vectors, err := bindVectors(jobs)
	errs.Add(err)
	out.Program.Vectors = vectors

	errs.Sort()
	return out, errs.Err()
}

func isGlobal(err error) bool {
	var de *diag.Error
	return errors.As(err, &de) && de.Global
}

// signatures resolves the convention of every function and impl method.
// Declarations that fail are left out of the job list.
func (c *compiler) signatures() ([]job, map[string]*abi.Signature, error) {
	var errs diag.List
	var jobs []job
	sigs := make(map[string]*abi.Signature)
	add := func(symbol string, fn *ast.Function) {
		if _, dup := sigs[symbol]; dup {
			errs.Add(diag.Errorf(diag.KindInput, diag.ErrDuplicateSymbol, symbol, "%s is defined twice", symbol))
			return
		}
		sig, err := abi.ResolveAs(symbol, fn, c.u)
		if err != nil {
			errs.Add(err)
			return
		}
		sigs[symbol] = sig
		jobs = append(jobs, job{symbol: symbol, fn: fn, sig: sig})
	}
	for _, fn := range c.u.Functions {
		add(fn.Name, fn)
	}
	for _, impl := range c.u.Impls {
		for _, fn := range impl.Methods {
			add(ast.MethodSymbol(impl.Type, impl.Trait, fn.Name), fn)
		}
	}
	return jobs, sigs, errs.Err()
}

// compileFunction runs one function through every per-function stage.
func (c *compiler) compileFunction(j job) (*Function, error) {
	if err := abi.CheckCalls(j.fn, j.sig, c.lctx.Sigs); err != nil {
		return nil, err
	}
	graph, err := lower.Function(c.lctx, j.fn, j.sig)
	if err != nil {
		return nil, err
	}
	graph = linearize.Linearize(graph)
	alloc := regalloc.AllocateFunction(graph, regalloc.OptionsFor(c.cfg, j.sig))

	gen, err := asmgen.TransformFunction(graph, alloc, j.sig, c.cfg)
	if err != nil {
		return nil, codegenError(j.symbol, err)
	}
	code, err := fixup.Resolve(gen.Func)
	if err != nil {
		return nil, codegenError(j.symbol, err)
	}
	if err := abi.VerifyModeSymmetry(code, gen.Tables); err != nil {
		return nil, codegenError(j.symbol, err)
	}
	c.logf("%s: %d blocks, frame %d, scratch %d", j.symbol, len(graph.Blocks), alloc.FrameSize, alloc.ScratchUsed)
	return &Function{
		Name:   j.symbol,
		Sig:    j.sig,
		IR:     graph,
		Alloc:  alloc,
		Asm:    code,
		Tables: gen.Tables,
	}, nil
}

func codegenError(symbol string, err error) error {
	return diag.Errorf(diag.KindInternal, diag.ErrCodegen, symbol, "%v", err)
}

// Trap returns the destination of dispatch-table entries of types that do
// not implement the method: a BRK followed by a tight loop, in case the
// BRK handler returns.
func Trap() *asm.Function {
	hang := dispatch.Trap + "_hang"
	return &asm.Function{
		Name: dispatch.Trap,
		Code: []asm.Instr{
			asm.Imm(asm.BRK, 0, 1),
			asm.Lbl(hang),
			asm.Br(asm.BRA, hang),
		},
	}
}

// bindVectors binds each declared interrupt vector to its handler. A vector
// may have only one handler.
func bindVectors(jobs []job) ([]asm.Vector, error) {
	var errs diag.List
	var out []asm.Vector
	owner := make(map[string]string)
	for _, j := range jobs {
		kind := j.sig.Interrupt
		if kind == "" {
			continue
		}
		if prev, ok := owner[kind]; ok {
			errs.Add(diag.Errorf(diag.KindABI, diag.ErrDuplicateVector, j.symbol,
				"%s vector already handled by %s", kind, prev))
			continue
		}
		owner[kind] = j.symbol
		out = append(out, asm.Vector{Kind: kind, Handler: j.symbol})
	}
	return out, errs.Err()
}
