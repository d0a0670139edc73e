package acquisition

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultHedgeMembers is the member set used by a bare "hedge".
var DefaultHedgeMembers = []string{"ei", "lcb", "poi", "expreturn", "optimistic"}

var atomic = map[string]bool{
	"ei": true, "lcb": true, "lcba": true, "poi": true, "expreturn": true,
	"aopt": true, "thompson": true, "thompsonsampling": true,
	"optimistic": true, "optimisticsampling": true,
}

var combined = map[string]bool{
	"sum": true, "prod": true, "hedge": true, "hedgerandom": true, "alternate": true,
}

// Parse builds a criterion from an expression such as "ei",
// "hedge(ei,lcb,poi)" or "cSum(cEI,cLCB)". Names are case-insensitive and the
// BayesOpt "c" prefix is optional.
func Parse(expr string, params Params) (Criterion, error) {
	p := &parser{src: expr, params: params}
	c, err := p.criterion()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("criterion %q: unexpected %q at offset %d", expr, p.src[p.pos:], p.pos)
	}
	return c, nil
}

type parser struct {
	src    string
	pos    int
	params Params
	// seq gives each sampling criterion its own seed stream.
	seq uint64
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func canonical(name string) string {
	n := strings.ReplaceAll(strings.ToLower(name), "_", "")
	if atomic[n] || combined[n] {
		return n
	}
	if strings.HasPrefix(n, "c") && (atomic[n[1:]] || combined[n[1:]]) {
		return n[1:]
	}
	return n
}

func (p *parser) criterion() (Criterion, error) {
	raw := p.ident()
	if raw == "" {
		return nil, fmt.Errorf("criterion %q: expected a name at offset %d", p.src, p.pos)
	}
	name := canonical(raw)

	p.skipSpace()
	var args []Criterion
	hasArgs := p.pos < len(p.src) && p.src[p.pos] == '('
	if hasArgs {
		p.pos++
		for {
			c, err := p.criterion()
			if err != nil {
				return nil, err
			}
			args = append(args, c)
			p.skipSpace()
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("criterion %q: missing ')'", p.src)
			}
			if p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.src[p.pos] == ')' {
				p.pos++
				break
			}
			return nil, fmt.Errorf("criterion %q: unexpected %q at offset %d", p.src, p.src[p.pos], p.pos)
		}
	}

	if atomic[name] {
		if hasArgs {
			return nil, fmt.Errorf("criterion %q takes no sub-criteria", raw)
		}
		return p.atomic(name), nil
	}
	if !combined[name] {
		return nil, fmt.Errorf("unknown criterion %q", raw)
	}

	if len(args) == 0 {
		if name != "hedge" && name != "hedgerandom" {
			return nil, fmt.Errorf("criterion %q needs at least one sub-criterion", raw)
		}
		for _, n := range DefaultHedgeMembers {
			args = append(args, p.atomic(n))
		}
	}

	switch name {
	case "sum":
		return &Sum{Members: args, Weights: p.params.Weights}, nil
	case "prod":
		return &Prod{Members: args}, nil
	case "alternate":
		return &Alternate{Members: args}, nil
	case "hedge":
		return NewHedge(args, false, p.nextSeed()), nil
	default:
		return NewHedge(args, true, p.nextSeed()), nil
	}
}

func (p *parser) nextSeed() uint64 {
	p.seq++
	return p.params.Seed + p.seq
}

func (p *parser) atomic(name string) Criterion {
	switch name {
	case "ei":
		return &ExpectedImprovement{Exponent: max(p.params.Exponent, 1)}
	case "lcb":
		return &LowerConfidenceBound{Kappa: p.params.Kappa}
	case "lcba":
		c := &AnnealedLCB{Coef: p.params.AnnealCoef, Dim: p.params.Dim}
		c.Anneal(1)
		return c
	case "poi":
		return &ProbabilityOfImprovement{Epsilon: p.params.Epsilon}
	case "expreturn":
		return ExpectedReturn{}
	case "aopt":
		return GreedyAOptimality{}
	case "thompson", "thompsonsampling":
		return NewThompsonSampling(p.nextSeed())
	default:
		return NewOptimisticSampling(p.nextSeed())
	}
}
