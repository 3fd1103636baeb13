// ralph816 compiles a unit description into banked 65816 assembly.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/raymyers/ralph816/pkg/asm"
	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
	"github.com/raymyers/ralph816/pkg/diag"
	"github.com/raymyers/ralph816/pkg/driver"
	"github.com/raymyers/ralph816/pkg/ir"
)

var version = "0.1.0"

// Debug flags
var (
	dIR    bool
	dAlloc bool
	dAsm   bool
)

var (
	configPath string
	outputPath string
	jobs       int
	verbose    bool
)

// debugFlagNames lists flags that support single-dash form (e.g., -dasm)
var debugFlagNames = []string{"dir", "dalloc", "dasm"}

// normalizeFlags converts single-dash debug flags to double-dash for pflag compatibility
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

// scratchFlag overrides the scratch pool as base:size. Both numbers accept
// Go literal prefixes, so 0x10:16 and 16:16 are the same pool.
type scratchFlag struct {
	base, size int
	set        bool
}

var _ pflag.Value = (*scratchFlag)(nil)

func (s *scratchFlag) String() string {
	if !s.set {
		return ""
	}
	return fmt.Sprintf("%#x:%d", s.base, s.size)
}

func (s *scratchFlag) Set(v string) error {
	b, n, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("want base:size, got %q", v)
	}
	base, err := strconv.ParseInt(b, 0, 32)
	if err != nil {
		return fmt.Errorf("bad scratch base %q", b)
	}
	size, err := strconv.ParseInt(n, 0, 32)
	if err != nil {
		return fmt.Errorf("bad scratch size %q", n)
	}
	s.base, s.size, s.set = int(base), int(size), true
	return nil
}

func (s *scratchFlag) Type() string { return "base:size" }

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	scratch := &scratchFlag{}
	rootCmd := &cobra.Command{
		Use:           "ralph816 [unit.yaml]",
		Short:         "A backend for a banked 65816 target",
		Long:          `ralph816 compiles a unit description through lowering, allocation and instruction selection into 65816 assembly.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, err := loadConfig(cmd, scratch)
			if err != nil {
				fmt.Fprintf(errOut, "ralph816: %v\n", err)
				return err
			}
			return compileUnit(cmd.Context(), args[0], cfg, out, errOut)
		},
	}

	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump the block graph after layout")
	rootCmd.Flags().BoolVar(&dAlloc, "dalloc", false, "Dump register and slot placement")
	rootCmd.Flags().BoolVar(&dAsm, "dasm", false, "Dump the assembly listing to stdout")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Target configuration file (YAML)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Assembly output file (default: input with .s extension)")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Functions compiled concurrently (overrides the config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each pipeline stage to stderr")
	rootCmd.Flags().Var(scratch, "scratch", "Scratch pool as base:size (overrides the config)")

	return rootCmd
}

func loadConfig(cmd *cobra.Command, scratch *scratchFlag) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("jobs") {
		cfg.Jobs = jobs
	}
	if scratch.set {
		cfg.ScratchBase, cfg.ScratchSize = scratch.base, scratch.size
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compileUnit(ctx context.Context, filename string, cfg *config.Config, out, errOut io.Writer) error {
	u, err := ast.LoadUnit(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph816: %v\n", err)
		return err
	}

	opts := driver.Options{Config: cfg}
	if verbose {
		opts.Log = errOut
	}
	res, err := driver.Compile(ctx, u, opts)
	if err != nil {
		reportErrors(errOut, err)
		if res == nil {
			return err
		}
	}

	if dIR {
		p := ir.NewPrinter(out)
		for _, f := range res.Functions {
			p.PrintFunction(f.IR)
		}
	}
	if dAlloc {
		for _, f := range res.Functions {
			f.Alloc.Print(out, f.IR)
		}
	}
	if dAsm {
		asm.NewPrinter(out).PrintProgram(res.Program)
	}
	if err != nil {
		return err
	}

	// Dumps replace the output file unless one is named.
	if outputPath == "" && (dIR || dAlloc || dAsm) {
		return nil
	}
	dest := outputPath
	if dest == "" {
		dest = asmOutputFilename(filename)
	}
	f, err := os.Create(dest)
	if err != nil {
		fmt.Fprintf(errOut, "ralph816: %v\n", err)
		return err
	}
	defer f.Close()
	asm.NewPrinter(f).PrintProgram(res.Program)
	return nil
}

// reportErrors prints one line per diagnostic.
func reportErrors(errOut io.Writer, err error) {
	var list diag.List
	if errors.As(err, &list) {
		for _, e := range list {
			fmt.Fprintf(errOut, "ralph816: %s\n", e)
		}
		return
	}
	fmt.Fprintf(errOut, "ralph816: %v\n", err)
}

// asmOutputFilename returns unit.s for unit.yaml.
func asmOutputFilename(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".s"
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
