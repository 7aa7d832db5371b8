package calculator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Op is the arithmetic a rule applies to its source values.
type Op uint8

const (
	// OpSum is a + b.
	OpSum Op = iota
	// OpDifference is a - b.
	OpDifference
	// OpRemainder is a - (b + c).
	OpRemainder
)

var opNames = map[Op]string{
	OpSum:        "sum",
	OpDifference: "difference",
	OpRemainder:  "remainder",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Arity is the number of source rows the op reads.
func (o Op) Arity() int {
	if o == OpRemainder {
		return 3
	}
	return 2
}

// ParseOp maps a name ("sum", "difference", "remainder") to an Op.
func ParseOp(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op, n := range opNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

func (o Op) apply(v []float64) float64 {
	switch o {
	case OpSum:
		return v[0] + v[1]
	case OpDifference:
		return v[0] - v[1]
	case OpRemainder:
		return v[0] - (v[1] + v[2])
	default:
		panic(fmt.Sprintf("calculator: unsupported op %d", uint8(o)))
	}
}

// MarshalYAML writes the op by name.
func (o Op) MarshalYAML() (any, error) { return o.String(), nil }

// UnmarshalYAML reads the op by name.
func (o *Op) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	op, err := ParseOp(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*o = op
	return nil
}

// Rule derives one target row from source rows of the same column. Row
// indices are zero-based data-row indices.
type Rule struct {
	Target  int   `yaml:"target"`
	Sources []int `yaml:"sources"`
	Op      Op    `yaml:"op"`
}

func (r Rule) String() string {
	return fmt.Sprintf("row %d = %s%v", r.Target, r.Op, r.Sources)
}

// Rules is an ordered rule table. Rules run in slice order, so a rule may
// read a target written by an earlier rule in the same column.
type Rules []Rule

// DefaultRules returns the built-in report derivations.
//
// Row 37 reads row 31, which row 31's own rule computes earlier in the same
// pass. That chaining depends on table order and is kept as-is.
func DefaultRules() Rules {
	return Rules{
		{Target: 9, Sources: []int{6, 7, 8}, Op: OpRemainder},
		{Target: 30, Sources: []int{26, 28}, Op: OpSum},
		{Target: 31, Sources: []int{27, 29}, Op: OpSum},
		{Target: 36, Sources: []int{34, 35}, Op: OpSum},
		{Target: 37, Sources: []int{31, 36}, Op: OpDifference},
		{Target: 41, Sources: []int{39, 40}, Op: OpSum},
	}
}

// Validate reports structural problems: negative rows, an op that does not
// match the number of sources, and unknown ops.
func (rs Rules) Validate() error {
	var errs []error
	for i, r := range rs {
		if _, ok := opNames[r.Op]; !ok {
			errs = append(errs, fmt.Errorf("rules[%d]: unknown op %d", i, uint8(r.Op)))
			continue
		}
		if r.Target < 0 {
			errs = append(errs, fmt.Errorf("rules[%d]: target %d must not be negative", i, r.Target))
		}
		if len(r.Sources) != r.Op.Arity() {
			errs = append(errs, fmt.Errorf("rules[%d]: %s needs %d sources, got %d", i, r.Op, r.Op.Arity(), len(r.Sources)))
		}
		for _, s := range r.Sources {
			if s < 0 {
				errs = append(errs, fmt.Errorf("rules[%d]: source %d must not be negative", i, s))
			}
		}
	}
	return errors.Join(errs...)
}

// Chain records that rule Reader consumes the target written by rule Writer.
type Chain struct {
	Writer, Reader int
	Row            int
}

// Chains lists every place where a rule reads a row that an earlier rule in
// the table writes.
func (rs Rules) Chains() []Chain {
	var out []Chain
	written := map[int]int{}
	for i, r := range rs {
		for _, s := range r.Sources {
			if w, ok := written[s]; ok {
				out = append(out, Chain{Writer: w, Reader: i, Row: s})
			}
		}
		written[r.Target] = i
	}
	return out
}

type ruleFile struct {
	Rules Rules `yaml:"rules"`
}

// LoadRules decodes a YAML rule table of the form
//
//	rules:
//	  - {target: 9, op: remainder, sources: [6, 7, 8]}
//	  - {target: 30, op: sum, sources: [26, 28]}
//
// and validates it.
func LoadRules(r io.Reader) (Rules, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("calculator: rules file is empty")
		}
		return nil, fmt.Errorf("calculator: decode rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("calculator: rules file defines no rules")
	}
	if err := f.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("calculator: invalid rules: %w", err)
	}
	return f.Rules, nil
}

// WriteRules encodes rs in the format LoadRules reads.
func WriteRules(w io.Writer, rs Rules) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ruleFile{Rules: rs}); err != nil {
		return fmt.Errorf("calculator: encode rules: %w", err)
	}
	return enc.Close()
}

// LoadRulesFile reads a rule table from path.
func LoadRulesFile(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calculator: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
