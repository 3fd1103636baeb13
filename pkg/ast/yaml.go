package ast

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Compilation units arrive as YAML documents. Declarations decode directly;
// statement, expression and pattern trees are single-key mappings whose key
// names the node kind, e.g. {binary: {op: "+", l: {name: x}, r: {int: 1}}}.

type unitDoc struct {
	Name      string        `yaml:"name"`
	Enums     []*Enum       `yaml:"enums"`
	Structs   []*Struct     `yaml:"structs"`
	Traits    []traitDoc    `yaml:"traits"`
	Impls     []implDoc     `yaml:"impls"`
	Globals   []globalDoc   `yaml:"globals"`
	Functions []functionDoc `yaml:"functions"`
}

type traitDoc struct {
	Name    string      `yaml:"name"`
	Methods []methodDoc `yaml:"methods"`
}

type methodDoc struct {
	Name    string       `yaml:"name"`
	Far     bool         `yaml:"far"`
	Params  []bindingDoc `yaml:"params"`
	Returns []bindingDoc `yaml:"returns"`
}

type implDoc struct {
	Trait   string        `yaml:"trait"`
	Type    string        `yaml:"type"`
	Methods []functionDoc `yaml:"methods"`
}

type globalDoc struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Address *int   `yaml:"address"`
	Bank    int    `yaml:"bank"`
}

type functionDoc struct {
	Name      string       `yaml:"name"`
	Bank      int          `yaml:"bank"`
	Far       bool         `yaml:"far"`
	NoReturn  bool         `yaml:"noreturn"`
	Params    []bindingDoc `yaml:"params"`
	Returns   []bindingDoc `yaml:"returns"`
	Preserve  []string     `yaml:"preserve"`
	DataBank  string       `yaml:"databank"`
	Interrupt string       `yaml:"interrupt"`
	Body      yaml.Node    `yaml:"body"`
}

type bindingDoc struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Reg   string `yaml:"reg"`
	Var   string `yaml:"var"`
	Stack bool   `yaml:"stack"`
}

func (b bindingDoc) binding() Binding {
	switch {
	case b.Reg != "":
		return Binding{Mechanism: ByRegister, Reg: b.Reg}
	case b.Var != "":
		return Binding{Mechanism: ByVariable, Var: b.Var}
	}
	return Binding{Mechanism: ByStack}
}

// LoadUnit reads a compilation unit from a YAML file.
func LoadUnit(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseUnit(data)
}

// ParseUnit decodes a compilation unit from YAML.
func ParseUnit(data []byte) (*Unit, error) {
	var doc unitDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding unit: %w", err)
	}
	u := &Unit{Name: doc.Name, Enums: doc.Enums, Structs: doc.Structs}
	for _, td := range doc.Traits {
		t := &Trait{Name: td.Name}
		for _, md := range td.Methods {
			t.Methods = append(t.Methods, &Method{
				Name:    md.Name,
				Far:     md.Far,
				Params:  params(md.Params),
				Returns: returns(md.Returns),
			})
		}
		u.Traits = append(u.Traits, t)
	}
	for _, id := range doc.Impls {
		impl := &Impl{Trait: id.Trait, Type: id.Type}
		for i := range id.Methods {
			fn, err := decodeFunction(&id.Methods[i])
			if err != nil {
				return nil, fmt.Errorf("impl %s for %s: %w", id.Trait, id.Type, err)
			}
			impl.Methods = append(impl.Methods, fn)
		}
		u.Impls = append(u.Impls, impl)
	}
	for _, gd := range doc.Globals {
		u.Globals = append(u.Globals, &Global{Name: gd.Name, Type: Type(gd.Type), Address: gd.Address, Bank: gd.Bank})
	}
	for i := range doc.Functions {
		fn, err := decodeFunction(&doc.Functions[i])
		if err != nil {
			return nil, err
		}
		u.Functions = append(u.Functions, fn)
	}
	return u, nil
}

func params(docs []bindingDoc) []*Param {
	var ps []*Param
	for _, d := range docs {
		ps = append(ps, &Param{Name: d.Name, Type: Type(d.Type), Binding: d.binding()})
	}
	return ps
}

func returns(docs []bindingDoc) []*Return {
	var rs []*Return
	for _, d := range docs {
		rs = append(rs, &Return{Type: Type(d.Type), Binding: d.binding()})
	}
	return rs
}

func decodeFunction(fd *functionDoc) (*Function, error) {
	fn := &Function{
		Name:     fd.Name,
		Bank:     fd.Bank,
		Far:      fd.Far,
		NoReturn: fd.NoReturn,
		Params:   params(fd.Params),
		Returns:  returns(fd.Returns),
		Attrs: Attrs{
			Preserve:  fd.Preserve,
			DataBank:  fd.DataBank,
			Interrupt: fd.Interrupt,
		},
	}
	body, err := decodeBlock(&fd.Body)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fd.Name, err)
	}
	fn.Body = body
	return fn, nil
}

func nodeErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

// single returns the key and value of a single-key mapping node.
func single(n *yaml.Node) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, nodeErr(n, "expected a single-key mapping")
	}
	return n.Content[0].Value, n.Content[1], nil
}

// fields returns the values of a mapping node keyed by name.
func fields(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nodeErr(n, "expected a mapping")
	}
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		m[n.Content[i].Value] = n.Content[i+1]
	}
	return m, nil
}

func scalar(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	return n.Value
}

func decodeInt(n *yaml.Node, v *int) error {
	if n == nil {
		return fmt.Errorf("missing value")
	}
	return n.Decode(v)
}

func decodeBlock(n *yaml.Node) (*Block, error) {
	b := &Block{}
	if n == nil || n.Kind == 0 || n.Tag == "!!null" {
		return b, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, nodeErr(n, "expected a statement list")
	}
	for i, item := range n.Content {
		key, val, err := single(item)
		if err != nil {
			return nil, err
		}
		if key == "tail" {
			if i != len(n.Content)-1 {
				return nil, nodeErr(item, "tail must be the last element of a block")
			}
			tail, err := decodeExpr(val)
			if err != nil {
				return nil, err
			}
			b.Tail = tail
			continue
		}
		s, err := decodeStmt(key, val)
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, s)
	}
	return b, nil
}

func optExpr(n *yaml.Node) (Expr, error) {
	if n == nil || n.Tag == "!!null" {
		return nil, nil
	}
	return decodeExpr(n)
}

func decodeStmt(key string, val *yaml.Node) (Stmt, error) {
	switch key {
	case "let":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		s := &Let{Type: Type(scalar(f["type"]))}
		if names := f["names"]; names != nil {
			for _, nm := range names.Content {
				s.Names = append(s.Names, nm.Value)
			}
		} else {
			s.Names = []string{scalar(f["name"])}
		}
		if addr := f["address"]; addr != nil {
			var a int
			if err := addr.Decode(&a); err != nil {
				return nil, nodeErr(addr, "bad address: %v", err)
			}
			s.Address = &a
		}
		if s.Init, err = optExpr(f["init"]); err != nil {
			return nil, err
		}
		return s, nil
	case "assign":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		target, err := decodeExpr(f["target"])
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(f["value"])
		if err != nil {
			return nil, err
		}
		return &Assign{Target: target, Value: value}, nil
	case "expr":
		x, err := decodeExpr(val)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x}, nil
	case "if":
		return decodeIf(val)
	case "loop":
		return decodeLoop(val)
	case "while":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(f["cond"])
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(f["body"])
		if err != nil {
			return nil, err
		}
		return &While{Label: scalar(f["label"]), Cond: cond, Body: body}, nil
	case "for":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		from, err := decodeExpr(f["from"])
		if err != nil {
			return nil, err
		}
		to, err := decodeExpr(f["to"])
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(f["body"])
		if err != nil {
			return nil, err
		}
		typ := Type(scalar(f["type"]))
		if typ == "" {
			typ = U8
		}
		return &For{
			Label:     scalar(f["label"]),
			Var:       scalar(f["var"]),
			Type:      typ,
			From:      from,
			To:        to,
			Inclusive: scalar(f["inclusive"]) == "true",
			Body:      body,
		}, nil
	case "break":
		s := &Break{}
		if val.Kind == yaml.MappingNode {
			f, _ := fields(val)
			s.Label = scalar(f["label"])
			v, err := optExpr(f["value"])
			if err != nil {
				return nil, err
			}
			s.Value = v
		}
		return s, nil
	case "continue":
		s := &Continue{}
		if val.Kind == yaml.MappingNode {
			f, _ := fields(val)
			s.Label = scalar(f["label"])
		}
		return s, nil
	case "return":
		s := &ReturnStmt{}
		switch val.Kind {
		case yaml.SequenceNode:
			for _, item := range val.Content {
				x, err := decodeExpr(item)
				if err != nil {
					return nil, err
				}
				s.Values = append(s.Values, x)
			}
		case yaml.MappingNode:
			x, err := decodeExpr(val)
			if err != nil {
				return nil, err
			}
			s.Values = []Expr{x}
		}
		return s, nil
	case "block":
		return decodeBlock(val)
	}
	return nil, nodeErr(val, "unknown statement %q", key)
}

func decodeIf(val *yaml.Node) (*If, error) {
	f, err := fields(val)
	if err != nil {
		return nil, err
	}
	cond, err := decodeExpr(f["cond"])
	if err != nil {
		return nil, err
	}
	then, err := decodeBlock(f["then"])
	if err != nil {
		return nil, err
	}
	s := &If{Cond: cond, Then: then}
	if els := f["else"]; els != nil {
		if els.Kind == yaml.MappingNode {
			key, inner, err := single(els)
			if err != nil {
				return nil, err
			}
			if key != "if" {
				return nil, nodeErr(els, "else must be a block or an if")
			}
			if s.Else, err = decodeIf(inner); err != nil {
				return nil, err
			}
		} else {
			if s.Else, err = decodeBlock(els); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func decodeLoop(val *yaml.Node) (*Loop, error) {
	if val.Kind == yaml.SequenceNode {
		body, err := decodeBlock(val)
		if err != nil {
			return nil, err
		}
		return &Loop{Body: body}, nil
	}
	f, err := fields(val)
	if err != nil {
		return nil, err
	}
	body, err := decodeBlock(f["body"])
	if err != nil {
		return nil, err
	}
	return &Loop{Label: scalar(f["label"]), Body: body}, nil
}

func decodeExprs(n *yaml.Node) ([]Expr, error) {
	if n == nil {
		return nil, nil
	}
	var xs []Expr
	for _, item := range n.Content {
		x, err := decodeExpr(item)
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
	}
	return xs, nil
}

func decodeExpr(n *yaml.Node) (Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("missing expression")
	}
	key, val, err := single(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "int":
		lit := &IntLit{Type: U8}
		if val.Kind == yaml.MappingNode {
			f, _ := fields(val)
			if err := decodeInt(f["value"], &lit.Value); err != nil {
				return nil, nodeErr(val, "bad integer: %v", err)
			}
			if t := scalar(f["type"]); t != "" {
				lit.Type = Type(t)
			}
		} else if err := val.Decode(&lit.Value); err != nil {
			return nil, nodeErr(val, "bad integer: %v", err)
		}
		return lit, nil
	case "bool":
		var b bool
		if err := val.Decode(&b); err != nil {
			return nil, nodeErr(val, "bad bool: %v", err)
		}
		return &BoolLit{Value: b}, nil
	case "name":
		return &Name{Name: val.Value}, nil
	case "variant":
		enum, variant, ok := strings.Cut(val.Value, ".")
		if !ok {
			return nil, nodeErr(val, "variant must be Enum.Variant")
		}
		return &Variant{Enum: enum, Variant: variant}, nil
	case "binary":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		l, err := decodeExpr(f["l"])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(f["r"])
		if err != nil {
			return nil, err
		}
		return &Binary{Op: scalar(f["op"]), L: l, R: r}, nil
	case "unary":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		x, err := decodeExpr(f["x"])
		if err != nil {
			return nil, err
		}
		return &Unary{Op: scalar(f["op"]), X: x}, nil
	case "call":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(f["args"])
		if err != nil {
			return nil, err
		}
		return &Call{Func: scalar(f["func"]), Args: args}, nil
	case "method":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		recv, err := decodeExpr(f["recv"])
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(f["args"])
		if err != nil {
			return nil, err
		}
		return &MethodCall{Recv: recv, Trait: scalar(f["trait"]), Method: scalar(f["method"]), Args: args}, nil
	case "field":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		x, err := decodeExpr(f["x"])
		if err != nil {
			return nil, err
		}
		return &FieldExpr{X: x, Field: scalar(f["field"])}, nil
	case "if":
		return decodeIfExpr(val)
	case "block":
		b, err := decodeBlock(val)
		if err != nil {
			return nil, err
		}
		return &BlockExpr{Block: b}, nil
	case "loop":
		l, err := decodeLoop(val)
		if err != nil {
			return nil, err
		}
		return &LoopExpr{Loop: l}, nil
	case "match":
		return decodeMatch(val)
	case "cast":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		x, err := decodeExpr(f["x"])
		if err != nil {
			return nil, err
		}
		return &Cast{X: x, Type: Type(scalar(f["type"]))}, nil
	case "is":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		x, err := decodeExpr(f["x"])
		if err != nil {
			return nil, err
		}
		return &Is{X: x, Type: scalar(f["type"])}, nil
	case "tagof":
		x, err := decodeExpr(val)
		if err != nil {
			return nil, err
		}
		return &TagOf{X: x}, nil
	}
	return nil, nodeErr(n, "unknown expression %q", key)
}

func decodeIfExpr(val *yaml.Node) (*IfExpr, error) {
	f, err := fields(val)
	if err != nil {
		return nil, err
	}
	cond, err := decodeExpr(f["cond"])
	if err != nil {
		return nil, err
	}
	then, err := decodeBlock(f["then"])
	if err != nil {
		return nil, err
	}
	x := &IfExpr{Cond: cond, Then: then}
	els := f["else"]
	if els == nil {
		return x, nil
	}
	if els.Kind == yaml.SequenceNode {
		b, err := decodeBlock(els)
		if err != nil {
			return nil, err
		}
		x.Else = &BlockExpr{Block: b}
		return x, nil
	}
	key, inner, err := single(els)
	if err != nil {
		return nil, err
	}
	if key != "if" {
		return nil, nodeErr(els, "else must be a block or an if")
	}
	if x.Else, err = decodeIfExpr(inner); err != nil {
		return nil, err
	}
	return x, nil
}

func decodeMatch(val *yaml.Node) (*Match, error) {
	f, err := fields(val)
	if err != nil {
		return nil, err
	}
	scrut, err := decodeExpr(f["scrutinee"])
	if err != nil {
		return nil, err
	}
	m := &Match{Scrutinee: scrut}
	if arms := f["arms"]; arms != nil {
		for _, an := range arms.Content {
			af, err := fields(an)
			if err != nil {
				return nil, err
			}
			pat, err := decodePattern(af["pattern"])
			if err != nil {
				return nil, err
			}
			body, err := decodeExpr(af["body"])
			if err != nil {
				return nil, err
			}
			m.Arms = append(m.Arms, &Arm{Pattern: pat, Body: body})
		}
	}
	return m, nil
}

func decodePattern(n *yaml.Node) (Pattern, error) {
	if n == nil {
		return nil, fmt.Errorf("missing pattern")
	}
	if n.Kind == yaml.ScalarNode {
		if n.Value == "_" {
			return &WildPat{}, nil
		}
		var v int
		if err := n.Decode(&v); err != nil {
			return nil, nodeErr(n, "bad literal pattern %q", n.Value)
		}
		return &LitPat{Value: v}, nil
	}
	key, val, err := single(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "int":
		var v int
		if err := val.Decode(&v); err != nil {
			return nil, nodeErr(val, "bad literal pattern: %v", err)
		}
		return &LitPat{Value: v}, nil
	case "bool":
		var b bool
		if err := val.Decode(&b); err != nil {
			return nil, nodeErr(val, "bad bool pattern: %v", err)
		}
		if b {
			return &LitPat{Value: 1}, nil
		}
		return &LitPat{Value: 0}, nil
	case "variant":
		enum, variant, ok := strings.Cut(val.Value, ".")
		if !ok {
			return nil, nodeErr(val, "variant must be Enum.Variant")
		}
		return &VariantPat{Enum: enum, Variant: variant}, nil
	case "range":
		f, err := fields(val)
		if err != nil {
			return nil, err
		}
		p := &RangePat{Inclusive: scalar(f["inclusive"]) == "true"}
		if err := decodeInt(f["lo"], &p.Lo); err != nil {
			return nil, nodeErr(val, "bad range: %v", err)
		}
		if err := decodeInt(f["hi"], &p.Hi); err != nil {
			return nil, nodeErr(val, "bad range: %v", err)
		}
		return p, nil
	case "or":
		p := &OrPat{}
		for _, alt := range val.Content {
			a, err := decodePattern(alt)
			if err != nil {
				return nil, err
			}
			p.Alts = append(p.Alts, a)
		}
		return p, nil
	case "wild":
		return &WildPat{}, nil
	case "bind":
		return &BindPat{Name: val.Value}, nil
	}
	return nil, nodeErr(n, "unknown pattern %q", key)
}
