// Package social builds the static per-household peer graph and spreads
// opportunity knowledge across it. Three fixed-size layers per household
// — spatial, workplace, economic-similarity — are chosen once at
// initialization; only the information flowing over the edges changes
// during a run.
package social

import (
	"math"
	"sort"

	"github.com/umutlagap/DRT-PRR/internal/config"
	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// EventKind classifies a diffusible information event.
type EventKind uint8

const (
	EventRental EventKind = iota
	EventJob
	EventBuilding
)

// Event identifies one opportunity: a rental vacancy (building ID), a
// job posting, or a newly activated building.
type Event struct {
	Kind EventKind
	ID   int
}

// Network owns the edge lists; households hold only identifiers.
type Network struct {
	spatial   map[int][]int
	workplace map[int][]int
	economic  map[int][]int
	peers     map[int][]int // union of the three layers, sorted, no dupes

	known map[int]map[Event]struct{}
}

// Build constructs the three peer layers from the household table.
// Each layer holds up to the configured count; fewer only when the
// population is too small. No self-edges.
func Build(households []scenario.HouseholdRecord, cfg config.Config) *Network {
	n := &Network{
		spatial:   make(map[int][]int, len(households)),
		workplace: make(map[int][]int, len(households)),
		economic:  make(map[int][]int, len(households)),
		peers:     make(map[int][]int, len(households)),
		known:     make(map[int]map[Event]struct{}, len(households)),
	}

	byBuilding := make(map[int][]int)
	byJob := make(map[int][]int)
	for _, h := range households {
		byBuilding[h.BID] = append(byBuilding[h.BID], h.HID)
		byJob[h.JobID] = append(byJob[h.JobID], h.HID)
	}
	for _, ids := range byBuilding {
		sort.Ints(ids)
	}
	for _, ids := range byJob {
		sort.Ints(ids)
	}

	index := make(map[int]scenario.HouseholdRecord, len(households))
	for _, h := range households {
		index[h.HID] = h
	}

	for _, h := range households {
		n.spatial[h.HID] = spatialPeers(h, households, byBuilding, cfg.SpatialPeers)
		n.workplace[h.HID] = takePeers(byJob[h.JobID], h.HID, cfg.WorkplacePeers)
		n.economic[h.HID] = economicPeers(h, households, cfg.EconomicPeers)

		union := map[int]struct{}{}
		for _, layer := range [][]int{n.spatial[h.HID], n.workplace[h.HID], n.economic[h.HID]} {
			for _, id := range layer {
				union[id] = struct{}{}
			}
		}
		all := make([]int, 0, len(union))
		for id := range union {
			all = append(all, id)
		}
		sort.Ints(all)
		n.peers[h.HID] = all
		n.known[h.HID] = make(map[Event]struct{})
	}
	return n
}

// spatialPeers walks the household's own building then its precomputed
// nearest-building list, falling back to a full distance scan only when
// the walk comes up short.
func spatialPeers(h scenario.HouseholdRecord, all []scenario.HouseholdRecord, byBuilding map[int][]int, want int) []int {
	var out []int
	add := func(id int) bool {
		if id == h.HID {
			return false
		}
		for _, got := range out {
			if got == id {
				return false
			}
		}
		out = append(out, id)
		return len(out) >= want
	}

	for _, id := range byBuilding[h.BID] {
		if add(id) {
			return out
		}
	}
	for _, bID := range h.ClosestBuildings {
		for _, id := range byBuilding[bID] {
			if add(id) {
				return out
			}
		}
	}

	// Sparse neighborhood: rank the remaining population by distance.
	type cand struct {
		id   int
		dist float64
	}
	cands := make([]cand, 0, len(all))
	for _, other := range all {
		if other.HID == h.HID {
			continue
		}
		dx, dy := h.X-other.X, h.Y-other.Y
		cands = append(cands, cand{other.HID, math.Hypot(dx, dy)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	for _, c := range cands {
		if add(c.id) {
			break
		}
	}
	return out
}

// economicPeers ranks households by a normalized composite distance over
// income and liquidity. Ties resolve by ascending household ID.
func economicPeers(h scenario.HouseholdRecord, all []scenario.HouseholdRecord, want int) []int {
	var incMin, incMax, liqMin, liqMax float64
	incMin, liqMin = math.Inf(1), math.Inf(1)
	for _, other := range all {
		incMin = math.Min(incMin, other.Income)
		incMax = math.Max(incMax, other.Income)
		liqMin = math.Min(liqMin, other.Liquidity)
		liqMax = math.Max(liqMax, other.Liquidity)
	}
	incRange := incMax - incMin
	liqRange := liqMax - liqMin

	type cand struct {
		id   int
		dist float64
	}
	cands := make([]cand, 0, len(all)-1)
	for _, other := range all {
		if other.HID == h.HID {
			continue
		}
		d := 0.0
		if incRange > 0 {
			d += math.Abs(h.Income-other.Income) / incRange
		}
		if liqRange > 0 {
			d += math.Abs(h.Liquidity-other.Liquidity) / liqRange
		}
		cands = append(cands, cand{other.HID, d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})

	if want > len(cands) {
		want = len(cands)
	}
	out := make([]int, want)
	for i := 0; i < want; i++ {
		out[i] = cands[i].id
	}
	return out
}

func takePeers(sorted []int, self, want int) []int {
	out := make([]int, 0, want)
	for _, id := range sorted {
		if id == self {
			continue
		}
		out = append(out, id)
		if len(out) >= want {
			break
		}
	}
	return out
}

// Peers returns the union of a household's three layers (sorted).
func (n *Network) Peers(hID int) []int {
	return n.peers[hID]
}

// SpatialPeers returns the spatial layer for a household.
func (n *Network) SpatialPeers(hID int) []int { return n.spatial[hID] }

// WorkplacePeers returns the workplace layer for a household.
func (n *Network) WorkplacePeers(hID int) []int { return n.workplace[hID] }

// EconomicPeers returns the economic-similarity layer for a household.
func (n *Network) EconomicPeers(hID int) []int { return n.economic[hID] }

// Seed marks an event as directly known to a set of households (its
// precomputed proximity list), effective this step.
func (n *Network) Seed(e Event, hIDs []int) {
	for _, id := range hIDs {
		if set, ok := n.known[id]; ok {
			set[e] = struct{}{}
		}
	}
}

// Propagate spreads knowledge one hop: a household learns every event
// any peer knew as of the previous step. Knowledge is monotonic — once
// known, never forgotten. Call once per step, before seeding the step's
// new events.
func (n *Network) Propagate() {
	type addition struct {
		hID int
		e   Event
	}
	var adds []addition
	for hID, peerIDs := range n.peers {
		mine := n.known[hID]
		for _, p := range peerIDs {
			for e := range n.known[p] {
				if _, ok := mine[e]; !ok {
					adds = append(adds, addition{hID, e})
				}
			}
		}
	}
	for _, a := range adds {
		n.known[a.hID][a.e] = struct{}{}
	}
}

// Knows reports whether a household has heard of an event.
func (n *Network) Knows(hID int, e Event) bool {
	set, ok := n.known[hID]
	if !ok {
		return false
	}
	_, ok = set[e]
	return ok
}

// KnownJobs returns the job postings a household has heard of, sorted by
// posting ID for deterministic scan order.
func (n *Network) KnownJobs(hID int) []int {
	var jobs []int
	for e := range n.known[hID] {
		if e.Kind == EventJob {
			jobs = append(jobs, e.ID)
		}
	}
	sort.Ints(jobs)
	return jobs
}

// KnownBuildings returns the new buildings a household has heard of,
// sorted by building ID.
func (n *Network) KnownBuildings(hID int) []int {
	var ids []int
	for e := range n.known[hID] {
		if e.Kind == EventBuilding {
			ids = append(ids, e.ID)
		}
	}
	sort.Ints(ids)
	return ids
}
