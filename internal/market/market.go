// Package market arbitrates claims against finite capacity: vacated
// rental units, emergency shelter beds, and new job postings. Pools are
// mutated only by the orchestrator's single step loop.
package market

import (
	"math"
	"sort"

	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// Claim is a household's one-step request for a slot, carrying its
// economic score as competition priority. Never persisted past the step.
type Claim struct {
	HID  int
	FC   float64 // employment x income x liquidity
	X, Y float64
}

// ── Rental market ─────────────────────────────────────────────────────

// RentalUnit is a potential rental: every household's pre-disaster unit
// becomes lettable once its occupant moves out and the building stands.
type RentalUnit struct {
	ID               string // "<building>_<original household>"
	BuildingID       int
	X, Y             float64
	OriginalTenure   string
	OriginalOccupant int
}

// RentalMarket resolves competing rental claims by descending economic
// score; equal scores break by lowest household ID.
type RentalMarket struct {
	units     map[string]*RentalUnit
	available map[string]bool
	occupant  map[int]string // hID -> unit currently occupied (own home or rented)
	occupied  map[string]bool
}

// NewRental builds the pool. Every unit starts occupied by its original
// household; a unit enters the market only after that household (or a
// later renter) moves away.
func NewRental(units []RentalUnit) *RentalMarket {
	m := &RentalMarket{
		units:     make(map[string]*RentalUnit, len(units)),
		available: make(map[string]bool),
		occupant:  make(map[int]string),
		occupied:  make(map[string]bool, len(units)),
	}
	for i := range units {
		u := units[i]
		m.units[u.ID] = &u
		m.occupied[u.ID] = true
		m.occupant[u.OriginalOccupant] = u.ID
	}
	return m
}

// Refresh recomputes availability from building functionality: a unit is
// lettable when unoccupied and its building is functional. Returns the
// building IDs of units that just became available (for vacancy events).
func (m *RentalMarket) Refresh(functional func(bID int) bool) []int {
	var opened []int
	for id, u := range m.units {
		if m.occupied[id] {
			m.available[id] = false
			continue
		}
		now := functional(u.BuildingID)
		if now && !m.available[id] {
			opened = append(opened, u.BuildingID)
		}
		m.available[id] = now
	}
	sort.Ints(opened)
	return opened
}

// HasAvailable reports whether any unit is currently lettable.
func (m *RentalMarket) HasAvailable() bool {
	for _, ok := range m.available {
		if ok {
			return true
		}
	}
	return false
}

// Resolve arbitrates all of a step's claims in one pass. Winners take
// their nearest available unit. Claims from households already renting
// are dropped (idempotent claim filtering); with no available units every
// claim is rejected without side effects.
func (m *RentalMarket) Resolve(claims []Claim) map[int]*RentalUnit {
	won := make(map[int]*RentalUnit)
	if len(claims) == 0 || !m.HasAvailable() {
		return won
	}

	ordered := make([]Claim, 0, len(claims))
	seen := make(map[int]bool, len(claims))
	for _, c := range claims {
		if seen[c.HID] {
			continue
		}
		seen[c.HID] = true
		if m.IsRenting(c.HID) {
			continue
		}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].FC != ordered[j].FC {
			return ordered[i].FC > ordered[j].FC
		}
		return ordered[i].HID < ordered[j].HID
	})

	for _, c := range ordered {
		unit := m.nearestAvailable(c.X, c.Y)
		if unit == nil {
			break
		}
		m.Occupy(c.HID, unit.ID)
		won[c.HID] = unit
	}
	return won
}

// Occupy moves a household into a unit, freeing whatever unit it held.
func (m *RentalMarket) Occupy(hID int, unitID string) {
	m.Vacate(hID)
	m.available[unitID] = false
	m.occupied[unitID] = true
	m.occupant[hID] = unitID
}

// ReturnToOwn re-occupies a household's own unit, unless a renter moved
// in while the household was away.
func (m *RentalMarket) ReturnToOwn(hID int, unitID string) {
	if _, ok := m.units[unitID]; !ok {
		return
	}
	if m.occupied[unitID] {
		return
	}
	m.Occupy(hID, unitID)
}

// IsRenting reports whether a household occupies a unit other than its
// own pre-disaster home.
func (m *RentalMarket) IsRenting(hID int) bool {
	id, ok := m.occupant[hID]
	if !ok {
		return false
	}
	return m.units[id].OriginalOccupant != hID
}

func (m *RentalMarket) nearestAvailable(x, y float64) *RentalUnit {
	var best *RentalUnit
	bestDist := math.Inf(1)
	for id, ok := range m.available {
		if !ok {
			continue
		}
		u := m.units[id]
		d := math.Hypot(u.X-x, u.Y-y)
		if d < bestDist || (d == bestDist && best != nil && u.ID < best.ID) {
			bestDist = d
			best = u
		}
	}
	return best
}

// Vacate releases whatever unit a household occupies. The unit re-enters
// the pool at the next Refresh (its building may have failed since).
func (m *RentalMarket) Vacate(hID int) {
	id, ok := m.occupant[hID]
	if !ok {
		return
	}
	delete(m.occupant, hID)
	m.occupied[id] = false
}

// UnitOf returns the unit a household currently occupies, if any.
func (m *RentalMarket) UnitOf(hID int) (*RentalUnit, bool) {
	id, ok := m.occupant[hID]
	if !ok {
		return nil, false
	}
	return m.units[id], true
}

// ── Shelter system ────────────────────────────────────────────────────

// ShelterSystem allocates beds first-come-first-served in claim arrival
// order, nearest shelter first, under a phased activation schedule.
// Overflow joins a waiting list consumed in later steps before new
// claims.
type ShelterSystem struct {
	shelters  []scenario.Facility
	capacity  map[int]int
	occupancy map[int]int
	occupant  map[int]int // hID -> shelter ID

	totalCapacity  int
	activeCapacity int
	totalOccupancy int

	waiting   []int
	inWaiting map[int]bool
}

// NewShelter builds the system; facilities without a capacity use the
// configured default.
func NewShelter(shelters []scenario.Facility, defaultCapacity int) *ShelterSystem {
	s := &ShelterSystem{
		shelters:  append([]scenario.Facility(nil), shelters...),
		capacity:  make(map[int]int, len(shelters)),
		occupancy: make(map[int]int, len(shelters)),
		occupant:  make(map[int]int),
		inWaiting: make(map[int]bool),
	}
	for _, sh := range s.shelters {
		cap := sh.Capacity
		if cap <= 0 {
			cap = defaultCapacity
		}
		s.capacity[sh.ID] = cap
		s.totalCapacity += cap
	}
	return s
}

// BeginStep applies the activation fraction for a step and returns the
// waiting list to drain (cleared; unplaced households re-enqueue through
// Claim).
func (s *ShelterSystem) BeginStep(activation float64) []int {
	s.activeCapacity = int(float64(s.totalCapacity) * activation)
	waiting := s.waiting
	s.waiting = nil
	s.inWaiting = make(map[int]bool)
	return waiting
}

// Claim requests a bed. Duplicate claims from a sheltered household are
// rejected without side effects. On failure the household joins the
// waiting list.
func (s *ShelterSystem) Claim(hID int, x, y float64) (shelterID int, ok bool) {
	if _, sheltered := s.occupant[hID]; sheltered {
		return 0, false
	}
	if s.activeCapacity <= 0 || s.totalOccupancy >= s.activeCapacity {
		s.enqueue(hID)
		return 0, false
	}

	best := -1
	bestDist := math.Inf(1)
	for _, sh := range s.shelters {
		if s.occupancy[sh.ID] >= s.capacity[sh.ID] {
			continue
		}
		d := math.Hypot(sh.X-x, sh.Y-y)
		if d < bestDist || (d == bestDist && (best == -1 || sh.ID < best)) {
			bestDist = d
			best = sh.ID
		}
	}
	if best == -1 {
		s.enqueue(hID)
		return 0, false
	}

	s.occupancy[best]++
	s.totalOccupancy++
	s.occupant[hID] = best
	return best, true
}

func (s *ShelterSystem) enqueue(hID int) {
	if s.inWaiting[hID] {
		return
	}
	s.inWaiting[hID] = true
	s.waiting = append(s.waiting, hID)
}

// Leave releases a household's bed.
func (s *ShelterSystem) Leave(hID int) {
	shID, ok := s.occupant[hID]
	if !ok {
		return
	}
	delete(s.occupant, hID)
	s.occupancy[shID]--
	s.totalOccupancy--
}

// ShelterOf returns the shelter a household occupies, if any.
func (s *ShelterSystem) ShelterOf(hID int) (scenario.Facility, bool) {
	shID, ok := s.occupant[hID]
	if !ok {
		return scenario.Facility{}, false
	}
	for _, sh := range s.shelters {
		if sh.ID == shID {
			return sh, true
		}
	}
	return scenario.Facility{}, false
}

// Occupancy returns current total occupancy.
func (s *ShelterSystem) Occupancy() int { return s.totalOccupancy }

// ActiveCapacity returns the capacity active this step.
func (s *ShelterSystem) ActiveCapacity() int { return s.activeCapacity }

// TotalCapacity returns the full configured capacity.
func (s *ShelterSystem) TotalCapacity() int { return s.totalCapacity }

// ── Job market ────────────────────────────────────────────────────────

// JobMarket tracks new postings. Acceptance is exclusive per posting:
// the first accepting eligible household closes it.
type JobMarket struct {
	postings map[int]scenario.NewJob
	filledBy map[int]int
}

// NewJobs builds the market from the posting feed.
func NewJobs(jobs []scenario.NewJob) *JobMarket {
	m := &JobMarket{
		postings: make(map[int]scenario.NewJob, len(jobs)),
		filledBy: make(map[int]int),
	}
	for _, j := range jobs {
		m.postings[j.ID] = j
	}
	return m
}

// IsOpen reports whether a posting exists and is unfilled.
func (m *JobMarket) IsOpen(jobID int) bool {
	if _, ok := m.postings[jobID]; !ok {
		return false
	}
	_, filled := m.filledBy[jobID]
	return !filled
}

// Accept closes a posting for a household. Returns false if the posting
// is unknown or already filled.
func (m *JobMarket) Accept(jobID, hID int) bool {
	if !m.IsOpen(jobID) {
		return false
	}
	m.filledBy[jobID] = hID
	return true
}

// Posting returns a posting's feed entry.
func (m *JobMarket) Posting(jobID int) (scenario.NewJob, bool) {
	j, ok := m.postings[jobID]
	return j, ok
}

// Filled returns how many postings have been taken.
func (m *JobMarket) Filled() int { return len(m.filledBy) }
