package match

import (
	"fmt"

	"github.com/raymyers/ralph816/pkg/ast"
	"github.com/raymyers/ralph816/pkg/config"
)

// Strategy is a dispatch strategy.
type Strategy int

const (
	BranchChain Strategy = iota
	JumpTable
	LookupTable
)

func (s Strategy) String() string {
	switch s {
	case JumpTable:
		return "jump-table"
	case LookupTable:
		return "lookup-table"
	}
	return "branch-chain"
}

// Options are the density thresholds.
type Options struct {
	DenseRatio float64
	MinValues  int
	MaxSpan    int
}

// OptionsFrom reads the thresholds from the configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{DenseRatio: cfg.DenseRatio, MinValues: cfg.MinTableValues, MaxSpan: cfg.MaxTableSpan}
}

// Plan is the selected dispatch for a match.
type Plan struct {
	Strategy Strategy
	// Min is the value of table slot 0.
	Min int
	// Owners maps each table slot to the arm that handles it (first match).
	Owners []int
	// Default is the first catch-all arm, or -1.
	Default int
	// RangeCheck is set when values outside [Min, Min+len(Owners)) can occur.
	RangeCheck bool
	// Values holds the per-slot constants of a lookup table.
	Values []int
}

func (p *Plan) String() string {
	if p.Strategy == BranchChain {
		return p.Strategy.String()
	}
	return fmt.Sprintf("%s[%d..%d] default=%d", p.Strategy, p.Min, p.Min+len(p.Owners)-1, p.Default)
}

// Select chooses the dispatch strategy. The descriptor must have passed
// Check.
func Select(d *Desc, opts Options) *Plan {
	plan := &Plan{Strategy: BranchChain, Default: -1}
	for _, arm := range d.Arms {
		if _, or := arm.Pattern.(*ast.OrPat); or {
			// Or-patterns keep the simple first-match chain.
			return plan
		}
	}
	for i, arm := range d.Arms {
		if isCatchAll(arm.Pattern) {
			plan.Default = i
			break
		}
	}

	// Expand value patterns up to the first catch-all, first owner wins.
	owner := make(map[int]int)
	lo, hi := 0, -1
	for i, arm := range d.Arms {
		if plan.Default >= 0 && i >= plan.Default {
			break
		}
		a, b, err := d.valueRange(arm.Pattern)
		if err != nil || b-a+1 > opts.MaxSpan {
			return plan
		}
		for v := a; v <= b; v++ {
			if _, taken := owner[v]; taken {
				continue
			}
			owner[v] = i
			if hi < lo {
				lo, hi = v, v
			}
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	count := len(owner)
	if count == 0 {
		return plan
	}
	span := hi - lo + 1
	if count < opts.MinValues || span > opts.MaxSpan || float64(count)/float64(span) < opts.DenseRatio {
		return plan
	}

	dmin, dmax := d.Domain()
	plan.Min = lo
	plan.RangeCheck = lo > dmin || hi < dmax
	plan.Owners = make([]int, span)
	reachable := make(map[int]bool)
	for s := range plan.Owners {
		arm, ok := owner[lo+s]
		if !ok {
			arm = plan.Default
		}
		plan.Owners[s] = arm
		reachable[arm] = true
	}
	if plan.RangeCheck {
		reachable[plan.Default] = true
	}

	// A table of constants only when every reachable outcome is constant;
	// one non-constant outcome makes the whole match a jump table.
	allConst := true
	for arm := range reachable {
		if !d.Arms[arm].Const {
			allConst = false
		}
	}
	if !allConst {
		plan.Strategy = JumpTable
		return plan
	}
	plan.Strategy = LookupTable
	plan.Values = make([]int, span)
	for s, arm := range plan.Owners {
		plan.Values[s] = d.Arms[arm].Value
	}
	return plan
}
