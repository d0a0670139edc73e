package acquisition

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/cwbudde/bayesopt/internal/surrogate"
)

var (
	_ Criterion = (*Sum)(nil)
	_ Criterion = (*Prod)(nil)
	_ Annealer  = (*Alternate)(nil)
	_ Portfolio = (*Hedge)(nil)
)

func memberNames(members []Criterion) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name()
	}
	return strings.Join(names, ",")
}

func annealAll(members []Criterion, iteration int) {
	for _, m := range members {
		if a, ok := m.(Annealer); ok {
			a.Anneal(iteration)
		}
	}
}

// Sum is a weighted linear combination of member scores.
type Sum struct {
	Members []Criterion
	Weights []float64
}

func (c *Sum) Name() string { return "sum(" + memberNames(c.Members) + ")" }

func (c *Sum) Score(p surrogate.Prediction, best float64) float64 {
	var total float64
	for i, m := range c.Members {
		w := 1.0
		if i < len(c.Weights) {
			w = c.Weights[i]
		}
		total += w * m.Score(p, best)
	}
	return total
}

// Anneal forwards to annealing members.
func (c *Sum) Anneal(iteration int) { annealAll(c.Members, iteration) }

// Prod multiplies member scores, typically with one member held constant.
type Prod struct {
	Members []Criterion
}

func (c *Prod) Name() string { return "prod(" + memberNames(c.Members) + ")" }

func (c *Prod) Score(p surrogate.Prediction, best float64) float64 {
	total := 1.0
	for _, m := range c.Members {
		total *= m.Score(p, best)
	}
	return total
}

// Anneal forwards to annealing members.
func (c *Prod) Anneal(iteration int) { annealAll(c.Members, iteration) }

// Alternate cycles through its members, one per iteration.
type Alternate struct {
	Members []Criterion
	current int
}

func (c *Alternate) Name() string { return "alternate(" + memberNames(c.Members) + ")" }

// Anneal selects the member for the given 1-based iteration.
func (c *Alternate) Anneal(iteration int) {
	c.current = (max(iteration, 1) - 1) % len(c.Members)
	annealAll(c.Members, iteration)
}

// Current returns the member scoring this iteration.
func (c *Alternate) Current() Criterion { return c.Members[c.current] }

func (c *Alternate) Score(p surrogate.Prediction, best float64) float64 {
	return c.Members[c.current].Score(p, best)
}

// Hedge is the GP-Hedge portfolio of Hoffman et al. It keeps a cumulative
// gain per member, draws one member per iteration from the softmax of the
// gains, and charges every member the surrogate's value at its own proposal.
type Hedge struct {
	members []Criterion
	gains   []float64
	probs   []float64
	current int
	random  bool
	rng     *rand.Rand
}

// NewHedge builds a GP-Hedge portfolio. With random set, losses are
// predictive samples instead of predictive means (the HedgeRandom variant).
func NewHedge(members []Criterion, random bool, seed uint64) *Hedge {
	return &Hedge{
		members: members,
		gains:   make([]float64, len(members)),
		probs:   make([]float64, len(members)),
		random:  random,
		rng:     newRand(seed, 0x6864),
	}
}

func (h *Hedge) Name() string {
	if h.random {
		return "hedgerandom(" + memberNames(h.members) + ")"
	}
	return "hedge(" + memberNames(h.members) + ")"
}

// Members returns the portfolio members in selection order.
func (h *Hedge) Members() []Criterion { return h.members }

// Score delegates to the most recently selected member.
func (h *Hedge) Score(p surrogate.Prediction, best float64) float64 {
	return h.members[h.current].Score(p, best)
}

// Anneal forwards to annealing members.
func (h *Hedge) Anneal(iteration int) { annealAll(h.members, iteration) }

// Loss is the value charged to a member for proposing a point with
// predictive marginal p. Lower is better.
func (h *Hedge) Loss(p surrogate.Prediction) float64 {
	if h.random {
		return sample(p, h.rng)
	}
	return p.Mean
}

// Gains returns a copy of the cumulative gains.
func (h *Hedge) Gains() []float64 { return append([]float64(nil), h.gains...) }

// Probabilities returns the selection distribution used by the last Select.
func (h *Hedge) Probabilities() []float64 { return append([]float64(nil), h.probs...) }

// Select draws a member index given each member's loss and updates the gains.
func (h *Hedge) Select(losses []float64) int {
	n := len(h.members)
	if len(losses) != n {
		panic("acquisition: hedge losses do not match members")
	}

	maxG, minG := h.gains[0], h.gains[0]
	for _, g := range h.gains[1:] {
		maxG = math.Max(maxG, g)
		minG = math.Min(minG, g)
	}
	shift := minG
	if math.Abs(maxG) > math.Abs(minG) {
		shift = maxG
	}
	for i := range h.gains {
		h.gains[i] -= shift
	}
	maxG -= shift

	eta := 10.0
	if maxG > 0 {
		eta = math.Min(10, math.Sqrt(2*math.Log(3)/maxG))
	}

	// Softmax relative to the largest gain so exp never overflows.
	var total float64
	for i, g := range h.gains {
		h.probs[i] = math.Exp(eta * (g - maxG))
		total += h.probs[i]
	}
	for i := range h.probs {
		h.probs[i] /= total
	}

	for i := range h.gains {
		h.gains[i] -= losses[i]
	}

	u := h.rng.Float64()
	h.current = n - 1
	var cum float64
	for i, p := range h.probs {
		cum += p
		if u < cum {
			h.current = i
			break
		}
	}

	slog.Debug("Hedge selected criterion",
		"criterion", h.members[h.current].Name(),
		"probabilities", h.probs,
		"eta", eta,
	)
	return h.current
}
