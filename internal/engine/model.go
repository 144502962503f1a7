// Package engine owns the simulation loop. A single Model instance holds
// every household, the social network, the resource markets, and the
// per-month functionality caches; all mutation happens inside Advance,
// one goroutine, fixed agent order.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/umutlagap/DRT-PRR/internal/config"
	"github.com/umutlagap/DRT-PRR/internal/household"
	"github.com/umutlagap/DRT-PRR/internal/market"
	"github.com/umutlagap/DRT-PRR/internal/scenario"
	"github.com/umutlagap/DRT-PRR/internal/social"
	"github.com/umutlagap/DRT-PRR/internal/stochastic"
)

// ConfigError reports a misuse of the model API, such as advancing to a
// month outside the recovery timeline. The model state is untouched.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "model: " + e.Msg }

type runState uint8

const (
	stateInitialized runState = iota
	stateStepping
	stateCompleted
)

// Model is the recovery simulation orchestrator.
type Model struct {
	cfg  config.Config
	seed int64
	scen *scenario.Scenario

	sm      *stochastic.Manager
	net     *social.Network
	rental  *market.RentalMarket
	shelter *market.ShelterSystem
	jobs    *market.JobMarket

	households []*household.Household // ascending ID, fixed for the run
	byID       map[int]*household.Household

	state     runState
	step      int    // completed steps
	month     string // current month label, "" before the first step
	prevMonth string

	// Facility geometry for post-move distance refreshes.
	schoolXY   map[int][2]float64
	hospitalXY map[int][2]float64
	distScale  float64

	// New construction bookkeeping.
	newBuildings  map[int]scenario.NewBuilding
	newJobs       map[int]scenario.NewJob
	nbOccupant    map[int]int
	published     map[social.Event]bool
	watchers      map[int][]int // building ID -> households with it on their closest list
	newJobIncomes func(jID int) (float64, bool)

	// Per-step environment caches, rebuilt at the top of Advance.
	serviceFunc map[serviceKey]float64

	evacuationsThisStep int
	departures          int
	returns             int

	records     []Record
	statusCount map[string]map[string]int // month -> status -> count
}

type serviceKey struct {
	kind household.ServiceKind
	id   int
}

// New validates the scenario and builds a ready model. The run seed
// drives the stochastic manager; everything else is deterministic in the
// input data.
func New(scen *scenario.Scenario, cfg config.Config, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := scen.Validate(); err != nil {
		return nil, fmt.Errorf("scenario rejected: %w", err)
	}

	m := &Model{
		cfg:  cfg,
		seed: seed,
		scen: scen,

		sm:      stochastic.NewManager(seed, cfg),
		net:     social.Build(scen.Households, cfg),
		shelter: market.NewShelter(scen.Shelters, cfg.DefaultShelterCapacity),
		jobs:    market.NewJobs(scen.NewJobs),

		byID:         make(map[int]*household.Household, len(scen.Households)),
		schoolXY:     make(map[int][2]float64, len(scen.Schools)),
		hospitalXY:   make(map[int][2]float64, len(scen.Hospitals)),
		newBuildings: make(map[int]scenario.NewBuilding, len(scen.NewBuildings)),
		newJobs:      make(map[int]scenario.NewJob, len(scen.NewJobs)),
		nbOccupant:   make(map[int]int),
		published:    make(map[social.Event]bool),
		watchers:     make(map[int][]int),
		serviceFunc:  make(map[serviceKey]float64),
		statusCount:  make(map[string]map[string]int),
	}

	for _, rec := range scen.Households {
		h := household.New(rec)
		m.households = append(m.households, h)
		m.byID[h.ID] = h
		for _, bID := range rec.ClosestBuildings {
			m.watchers[bID] = append(m.watchers[bID], h.ID)
		}
	}
	sort.Slice(m.households, func(i, j int) bool {
		return m.households[i].ID < m.households[j].ID
	})
	for _, ids := range m.watchers {
		sort.Ints(ids)
	}

	for _, f := range scen.Schools {
		m.schoolXY[f.ID] = [2]float64{f.X, f.Y}
	}
	for _, f := range scen.Hospitals {
		m.hospitalXY[f.ID] = [2]float64{f.X, f.Y}
	}
	for _, nb := range scen.NewBuildings {
		m.newBuildings[nb.ID] = nb
	}
	for _, nj := range scen.NewJobs {
		m.newJobs[nj.ID] = nj
	}
	m.distScale = m.cityExtent()
	// Every feed posting is high-income by contract.
	m.newJobIncomes = func(jID int) (float64, bool) {
		if _, ok := m.newJobs[jID]; ok {
			return cfg.IncomeHigh, true
		}
		return 0, false
	}

	m.rental = market.NewRental(rentalUnits(scen.Households))

	// Pre-disaster baseline: everything functional (month == "").
	for _, h := range m.households {
		s := household.Satisfaction(m, h, false, cfg)
		h.Satisfaction = s.Composite
		h.OriginalSatisfaction = s.Composite
		if s.Composite < cfg.SatisfactionThreshold {
			h.Status = household.StatusSeeking
		}
	}
	return m, nil
}

// rentalUnits derives the rental pool from the household table: every
// household's pre-disaster unit is a potential rental once vacated.
func rentalUnits(households []scenario.HouseholdRecord) []market.RentalUnit {
	units := make([]market.RentalUnit, 0, len(households))
	for _, h := range households {
		bID := h.OriginalBID
		if bID == 0 {
			bID = h.BID
		}
		units = append(units, market.RentalUnit{
			ID:               fmt.Sprintf("%d_%d", bID, h.HID),
			BuildingID:       bID,
			X:                h.X,
			Y:                h.Y,
			OriginalTenure:   h.Tenure,
			OriginalOccupant: h.HID,
		})
	}
	return units
}

// cityExtent is the bounding-box diagonal over every known coordinate,
// used to normalize post-move service distances onto [0,1].
func (m *Model) cityExtent() float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	grow := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	for _, h := range m.scen.Households {
		grow(h.X, h.Y)
	}
	for _, fs := range [][]scenario.Facility{m.scen.Shelters, m.scen.Schools, m.scen.Hospitals} {
		for _, f := range fs {
			grow(f.X, f.Y)
		}
	}
	d := math.Hypot(maxX-minX, maxY-minY)
	if d <= 0 {
		return 1
	}
	return d
}

// Households returns the agent population in ascending ID order. Callers
// must not mutate.
func (m *Model) Households() []*household.Household { return m.households }

// Household looks one agent up by ID.
func (m *Model) Household(hID int) (*household.Household, bool) {
	h, ok := m.byID[hID]
	return h, ok
}

// Network exposes the social graph, read-only.
func (m *Model) Network() *social.Network { return m.net }

// Stochasticity reports the realized override rates so far.
func (m *Model) Stochasticity() stochastic.Stats { return m.sm.Snapshot() }

// Step returns the number of completed steps.
func (m *Model) Step() int { return m.step }

// Completed reports whether the full recovery timeline has run.
func (m *Model) Completed() bool { return m.state == stateCompleted }

// ── household.Environment ─────────────────────────────────────────────

// BuildingFunctional reports a pre-disaster building's functionality for
// the current month. Before the first step everything is functional;
// buildings absent from the recovery table are assumed undamaged.
func (m *Model) BuildingFunctional(bID int) bool {
	if m.month == "" {
		return true
	}
	return m.scen.Recovery.Functionality(bID, m.month, 1) == 1
}

// NewBuildingFunctional reports whether a new construction stands this
// month. Absent from the activation timeline means not yet built.
func (m *Model) NewBuildingFunctional(bID int) bool {
	if m.month == "" || m.scen.NewRecovery == nil {
		return false
	}
	return m.scen.NewRecovery.Functionality(bID, m.month, 0) == 1
}

// JobFunctional reports whether a workplace stands: new postings follow
// the activation timeline, pre-disaster jobs the recovery table.
func (m *Model) JobFunctional(jID int) bool {
	if _, isNew := m.newJobs[jID]; isNew {
		return m.NewBuildingFunctional(jID)
	}
	return m.BuildingFunctional(jID)
}

// ServiceFunctionality returns 1.0 for a functional school/hospital and
// the configured degraded floor otherwise.
func (m *Model) ServiceFunctionality(kind household.ServiceKind, id int) float64 {
	if m.month == "" {
		return 1.0
	}
	if v, ok := m.serviceFunc[serviceKey{kind, id}]; ok {
		return v
	}
	v := m.cfg.MinServiceFunctionality
	if m.BuildingFunctional(id) {
		v = 1.0
	}
	m.serviceFunc[serviceKey{kind, id}] = v
	return v
}

// ── household.World ───────────────────────────────────────────────────

// Month returns the current calendar month label.
func (m *Model) Month() string { return m.month }

// Gate consults the stochastic manager for one flagged choice point.
func (m *Model) Gate(cat stochastic.Category, hID int, deterministic bool) bool {
	return m.sm.Decide(cat, m.step, hID, deterministic)
}

// OriginalRecovered reports a 0 -> 1 functionality flip this month.
// The first month never flips: its baseline is the pre-disaster state.
func (m *Model) OriginalRecovered(bID int) bool {
	if m.month == "" || m.prevMonth == "" {
		return false
	}
	return m.scen.Recovery.Functionality(bID, m.prevMonth, 1) == 0 &&
		m.scen.Recovery.Functionality(bID, m.month, 1) == 1
}

// RelativeHome returns a relative's current location when its building
// is functional. A relative who left the city cannot host.
func (m *Model) RelativeHome(rID int) (household.Location, bool) {
	rel, ok := m.byID[rID]
	if !ok || rel.Status == household.StatusLeftCity || !m.BuildingFunctional(rel.BID) {
		return household.Location{}, false
	}
	return household.Location{
		BID:          rel.BID,
		X:            rel.X,
		Y:            rel.Y,
		SchoolID:     rel.SchoolID,
		HospitalID:   rel.HospitalID,
		DistSchool:   rel.DistSchool,
		DistHospital: rel.DistHospital,
	}, true
}

// RentalAvailable reports whether any rental unit is lettable this month.
func (m *Model) RentalAvailable() bool { return m.rental.HasAvailable() }

// ClaimShelter requests a bed; a sheltered household keeps its building
// linkage and only its coordinates change.
func (m *Model) ClaimShelter(h *household.Household) (household.Location, bool) {
	if _, ok := m.shelter.Claim(h.ID, h.X, h.Y); !ok {
		return household.Location{}, false
	}
	sh, _ := m.shelter.ShelterOf(h.ID)
	return household.Location{
		BID:          h.BID,
		X:            sh.X,
		Y:            sh.Y,
		SchoolID:     h.SchoolID,
		HospitalID:   h.HospitalID,
		DistSchool:   h.DistSchool,
		DistHospital: h.DistHospital,
	}, true
}

// KnownNewBuildings lists activated constructions the household has
// heard of, ascending ID.
func (m *Model) KnownNewBuildings(hID int) []int { return m.net.KnownBuildings(hID) }

// OpenNewBuilding returns a construction's location when it stands and
// its single slot is free.
func (m *Model) OpenNewBuilding(bID int) (household.Location, bool) {
	nb, ok := m.newBuildings[bID]
	if !ok || !m.NewBuildingFunctional(bID) {
		return household.Location{}, false
	}
	if _, taken := m.nbOccupant[bID]; taken {
		return household.Location{}, false
	}
	return household.Location{
		BID:          nb.ID,
		X:            nb.X,
		Y:            nb.Y,
		SchoolID:     nb.ClosestSchoolID,
		HospitalID:   nb.ClosestHospitalID,
		DistSchool:   nb.DistSchool,
		DistHospital: nb.DistHospital,
	}, true
}

// OccupyNewBuilding takes a construction's slot.
func (m *Model) OccupyNewBuilding(bID, hID int) { m.nbOccupant[bID] = hID }

// KnownOpenJobs lists postings the household has heard of that are still
// open and whose site stands, ascending posting ID.
func (m *Model) KnownOpenJobs(hID int) []int {
	var out []int
	for _, jID := range m.net.KnownJobs(hID) {
		if m.jobs.IsOpen(jID) && m.NewBuildingFunctional(jID) {
			out = append(out, jID)
		}
	}
	return out
}

// AcceptJob closes a posting for a household.
func (m *Model) AcceptJob(jobID, hID int) bool { return m.jobs.Accept(jobID, hID) }

// ReleaseResources frees whatever slot the household holds.
func (m *Model) ReleaseResources(h *household.Household) {
	m.shelter.Leave(h.ID)
	m.rental.Vacate(h.ID)
	for bID, occ := range m.nbOccupant {
		if occ == h.ID {
			delete(m.nbOccupant, bID)
		}
	}
}

// ReoccupyOriginal re-occupies the household's own pre-disaster unit so
// it is no longer lettable.
func (m *Model) ReoccupyOriginal(h *household.Household) {
	m.rental.ReturnToOwn(h.ID, fmt.Sprintf("%d_%d", h.OriginalBID, h.ID))
}

// RefreshServiceDistances re-derives normalized school and hospital
// distances from the household's current coordinates. Service linkage
// (which school, which hospital) is kept from the previous location.
func (m *Model) RefreshServiceDistances(h *household.Household) {
	if xy, ok := m.schoolXY[h.SchoolID]; ok {
		h.DistSchool = m.normDist(h.X, h.Y, xy[0], xy[1])
	}
	if xy, ok := m.hospitalXY[h.HospitalID]; ok {
		h.DistHospital = m.normDist(h.X, h.Y, xy[0], xy[1])
	}
}

func (m *Model) normDist(x1, y1, x2, y2 float64) float64 {
	return math.Min(1, math.Hypot(x2-x1, y2-y1)/m.distScale)
}

// CanEvacuate reports whether this step's departure cap has room.
func (m *Model) CanEvacuate() bool {
	return m.evacuationsThisStep < m.cfg.EvacuationLimit(m.step)
}

// RecordEvacuation counts a departure against the step cap.
func (m *Model) RecordEvacuation() {
	m.evacuationsThisStep++
	m.departures++
}

// RecordReturn counts a return from outside the city.
func (m *Model) RecordReturn() { m.returns++ }
