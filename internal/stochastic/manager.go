// Package stochastic supplies the controlled-randomness policy for agent
// decisions: every flagged choice point asks Decide whether to override
// the deterministic outcome, and the manager keeps the realized override
// fraction converging on a configured target (default 10%), budgeted per
// decision category.
//
// Draws are derived from (run seed, category, step, household), never
// from call order, so trajectories are bit-identical for a fixed seed
// and input data no matter how evaluation is interleaved.
package stochastic

import (
	"math"
	"math/rand"
	"sort"

	"github.com/umutlagap/DRT-PRR/internal/config"
)

// Category identifies a decision choice point.
type Category uint8

const (
	CategoryInitialMove Category = iota
	CategoryJobMarket
	CategoryReturnTiming
	CategoryLeaveCity

	numCategories
)

var categoryNames = [numCategories]string{
	"initial_move",
	"job_market",
	"return_timing",
	"leave_city",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// CategoryStats tracks realized stochasticity for one category.
type CategoryStats struct {
	Opportunities int     `json:"opportunities"`
	Overrides     int     `json:"overrides"`
	Rate          float64 `json:"rate"`
}

// Stats is a point-in-time stochasticity report.
type Stats struct {
	Target     float64                  `json:"target"`
	Rate       float64                  `json:"rate"`
	Total      int                      `json:"total_decisions"`
	Overridden int                      `json:"overridden_decisions"`
	ByCategory map[string]CategoryStats `json:"by_category"`
}

// Manager is the seeded override budget. Not safe for concurrent use;
// the orchestrator's single step loop is the only caller by design.
type Manager struct {
	seed      int64
	target    float64
	tolerance float64
	weights   [numCategories]float64

	total     int
	overrides int
	perCat    [numCategories]struct {
		opportunities int
		overrides     int
	}
}

// NewManager draws per-category weights from the configured ranges with
// the run seed and scales them so they sum to the target rate.
func NewManager(seed int64, cfg config.Config) *Manager {
	m := &Manager{
		seed:      seed,
		target:    cfg.TargetStochasticity,
		tolerance: cfg.StochasticTolerance,
	}

	// Draw in sorted name order so the weight vector is seed-stable
	// regardless of map iteration.
	names := make([]string, 0, len(cfg.DecisionWeightRanges))
	for name := range cfg.DecisionWeightRanges {
		names = append(names, name)
	}
	sort.Strings(names)

	rng := rand.New(rand.NewSource(seed))
	raw := make(map[string]float64, len(names))
	sum := 0.0
	for _, name := range names {
		r := cfg.DecisionWeightRanges[name]
		w := r[0] + rng.Float64()*(r[1]-r[0])
		raw[name] = w
		sum += w
	}

	for c := Category(0); c < numCategories; c++ {
		w, ok := raw[c.String()]
		if !ok || sum == 0 {
			continue
		}
		m.weights[c] = w / sum * m.target
	}
	return m
}

// Decide returns the outcome for one flagged choice point. The
// deterministic outcome is returned unchanged unless an override fits
// within both the global budget and the category's tolerance band.
func (m *Manager) Decide(cat Category, step, hID int, deterministic bool) bool {
	if cat >= numCategories {
		return deterministic
	}

	m.total++
	s := &m.perCat[cat]
	s.opportunities++

	rate := float64(m.overrides) / float64(m.total)
	prob := 0.0
	if rate < m.target {
		// Declining probability: spend faster while under budget, shut
		// off as the realized rate approaches the target.
		remaining := m.target - rate
		prob = math.Min(m.weights[cat], remaining*3)
	}

	// An override must not push the category outside its tolerance band.
	projected := float64(s.overrides+1) / float64(s.opportunities)
	if projected > m.target+m.tolerance {
		prob = 0
	}

	if m.draw(cat, step, hID) < prob {
		m.overrides++
		s.overrides++
		return !deterministic
	}
	return deterministic
}

// draw produces the uniform variate for one choice point from the run
// seed and the decision's identity.
func (m *Manager) draw(cat Category, step, hID int) float64 {
	h := uint64(m.seed)
	h ^= uint64(step) * 0x9e3779b97f4a7c15
	h ^= uint64(hID) * 0xbf58476d1ce4e5b9
	h ^= (uint64(cat) + 1) * 0x94d049bb133111eb
	h ^= h >> 31
	return rand.New(rand.NewSource(int64(h & math.MaxInt64))).Float64()
}

// Snapshot reports realized stochasticity so far.
func (m *Manager) Snapshot() Stats {
	st := Stats{
		Target:     m.target,
		Total:      m.total,
		Overridden: m.overrides,
		ByCategory: make(map[string]CategoryStats, numCategories),
	}
	if m.total > 0 {
		st.Rate = float64(m.overrides) / float64(m.total)
	}
	for c := Category(0); c < numCategories; c++ {
		s := m.perCat[c]
		if s.opportunities == 0 {
			continue
		}
		st.ByCategory[c.String()] = CategoryStats{
			Opportunities: s.opportunities,
			Overrides:     s.overrides,
			Rate:          float64(s.overrides) / float64(s.opportunities),
		}
	}
	return st
}

// Divergent returns the categories whose realized rate has drifted
// outside the tolerance band. Non-fatal: the budget self-corrects, but
// the orchestrator logs a warning when this is non-empty.
func (m *Manager) Divergent() []string {
	var out []string
	for c := Category(0); c < numCategories; c++ {
		s := m.perCat[c]
		if s.opportunities < 50 {
			continue // too few decisions to call it drift
		}
		rate := float64(s.overrides) / float64(s.opportunities)
		if rate > m.target+m.tolerance {
			out = append(out, c.String())
		}
	}
	return out
}
