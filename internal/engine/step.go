package engine

import (
	"fmt"
	"log/slog"

	"github.com/umutlagap/DRT-PRR/internal/household"
	"github.com/umutlagap/DRT-PRR/internal/market"
	"github.com/umutlagap/DRT-PRR/internal/social"
	"github.com/umutlagap/DRT-PRR/internal/stochastic"
)

// Record is one household's longitudinal snapshot, taken at the end of
// every step for every agent.
type Record struct {
	HID           int     `db:"h_id"`
	Step          int     `db:"step"`
	Month         string  `db:"month"`
	Status        string  `db:"status"`
	Satisfaction  float64 `db:"satisfaction"`
	BID           int     `db:"b_id"`
	Employment    int     `db:"employment"`
	Income        float64 `db:"income"`
	EconomicScore float64 `db:"economic_score"`
	X             float64 `db:"x"`
	Y             float64 `db:"y"`
}

// Summary aggregates a finished (or in-progress) run.
type Summary struct {
	Agents     int
	Steps      int
	FinalMonth string

	StatusDistribution map[string]int
	Departures         int
	Returns            int
	ShelterOccupancy   int
	ShelterCapacity    int

	Stochasticity stochastic.Stats
}

// Advance runs one simulation step for a calendar month. Months must be
// fed in the recovery timeline's order; an unknown or out-of-order month
// returns a ConfigError without mutating any state.
func (m *Model) Advance(month string) error {
	if m.state == stateCompleted {
		return &ConfigError{Msg: fmt.Sprintf("advance to %s after timeline completed", month)}
	}
	months := m.scen.Recovery.Months
	if !m.scen.Recovery.HasMonth(month) {
		return &ConfigError{Msg: fmt.Sprintf("month %s not in recovery timeline", month)}
	}
	if months[m.step] != month {
		return &ConfigError{Msg: fmt.Sprintf("month %s out of order, expected %s", month, months[m.step])}
	}

	m.prevMonth = m.month
	m.month = month
	m.step++
	m.state = stateStepping
	m.evacuationsThisStep = 0
	m.serviceFunc = make(map[serviceKey]float64)

	// Knowledge spreads one hop from last step's state, then this month's
	// fresh events are seeded to their direct observers.
	m.net.Propagate()
	m.publishEvents()

	// Shelter phase-in and waiting list, ahead of the decision pass.
	waiting := m.shelter.BeginStep(m.cfg.ShelterActivation(m.step))
	m.drainShelterWaitlist(waiting)

	// Decision pass: collect rental claims, resolve the market once, then
	// re-enter the losers at the shelter branch in the same step.
	var claimants []*household.Household
	for _, h := range m.households {
		h.UpdateEconomicStatus(m, m.newJobIncomes, m.cfg)
		if out := household.Step(h, m, m.cfg); out.WantsRental {
			claimants = append(claimants, h)
		}
	}
	m.resolveRentals(claimants)

	// Job change runs after relocation settles, independent of it.
	for _, h := range m.households {
		household.TryJobChange(h, m, m.cfg)
	}

	m.snapshot()
	m.report()

	if m.step == len(months) {
		m.state = stateCompleted
	}
	return nil
}

// Run advances through the whole recovery timeline.
func (m *Model) Run() error {
	for _, month := range m.scen.Recovery.Months {
		if err := m.Advance(month); err != nil {
			return err
		}
	}
	return nil
}

// publishEvents seeds this month's new information to direct observers:
// rental vacancies to households watching the building, activated
// constructions and postings to their precomputed discovery lists.
func (m *Model) publishEvents() {
	for _, bID := range m.rental.Refresh(m.BuildingFunctional) {
		e := social.Event{Kind: social.EventRental, ID: bID}
		m.net.Seed(e, m.watchers[bID])
	}
	for id, nb := range m.newBuildings {
		e := social.Event{Kind: social.EventBuilding, ID: id}
		if m.published[e] || !m.NewBuildingFunctional(id) {
			continue
		}
		m.published[e] = true
		m.net.Seed(e, nb.DiscoverableAgents)
	}
	for id, nj := range m.newJobs {
		e := social.Event{Kind: social.EventJob, ID: id}
		if m.published[e] || !m.NewBuildingFunctional(id) {
			continue
		}
		m.published[e] = true
		m.net.Seed(e, nj.ClosestAgents)
	}
}

// drainShelterWaitlist places last step's unserved claimants before any
// new claims, preserving arrival order. Households that found another
// arrangement in the meantime are skipped.
func (m *Model) drainShelterWaitlist(waiting []int) {
	for _, hID := range waiting {
		h, ok := m.byID[hID]
		if !ok || h.Status != household.StatusSeeking {
			continue
		}
		loc, ok := m.ClaimShelter(h)
		if !ok {
			continue
		}
		household.Relocate(h, m, loc, household.StatusShelter)
	}
}

// resolveRentals arbitrates the step's collected claims in one pass and
// sends losers down the remainder of the ladder.
func (m *Model) resolveRentals(claimants []*household.Household) {
	if len(claimants) == 0 {
		return
	}
	claims := make([]market.Claim, len(claimants))
	for i, h := range claimants {
		claims[i] = market.Claim{HID: h.ID, FC: h.EconomicScore(), X: h.X, Y: h.Y}
	}
	won := m.rental.Resolve(claims)

	for _, h := range claimants {
		unit, ok := won[h.ID]
		if !ok {
			household.EvaluateFrom(h, m, m.cfg, household.BranchShelter)
			continue
		}
		// Release the previous slot by hand: the full release would vacate
		// the unit the market just assigned.
		m.shelter.Leave(h.ID)
		for bID, occ := range m.nbOccupant {
			if occ == h.ID {
				delete(m.nbOccupant, bID)
			}
		}
		h.MoveTo(household.Location{
			BID:          unit.BuildingID,
			X:            unit.X,
			Y:            unit.Y,
			SchoolID:     h.SchoolID,
			HospitalID:   h.HospitalID,
			DistSchool:   h.DistSchool,
			DistHospital: h.DistHospital,
		})
		m.RefreshServiceDistances(h)
		h.SetStatus(household.StatusRental, m.month)
		h.Satisfaction = household.Satisfaction(m, h, false, m.cfg).Composite
	}
}

// snapshot appends one longitudinal record per household and tallies the
// month's status distribution.
func (m *Model) snapshot() {
	counts := make(map[string]int)
	for _, h := range m.households {
		counts[h.Status.String()]++
		m.records = append(m.records, Record{
			HID:           h.ID,
			Step:          m.step,
			Month:         m.month,
			Status:        h.Status.String(),
			Satisfaction:  h.Satisfaction,
			BID:           h.BID,
			Employment:    h.Employment,
			Income:        h.Income,
			EconomicScore: h.EconomicScore(),
			X:             h.X,
			Y:             h.Y,
		})
	}
	m.statusCount[m.month] = counts
}

// report logs the step the way operators read it: who is where, how the
// override budget is tracking.
func (m *Model) report() {
	counts := m.statusCount[m.month]
	stats := m.sm.Snapshot()
	slog.Info("step complete",
		"step", m.step,
		"month", m.month,
		"stable", counts[household.StatusStable.String()],
		"seeking", counts[household.StatusSeeking.String()],
		"sheltered", counts[household.StatusShelter.String()],
		"left_city", counts[household.StatusLeftCity.String()],
		"returned", counts[household.StatusReturned.String()],
		"shelter_occupancy", m.shelter.Occupancy(),
		"shelter_active_capacity", m.shelter.ActiveCapacity(),
		"override_rate", fmt.Sprintf("%.3f", stats.Rate),
	)
	for _, cat := range m.sm.Divergent() {
		slog.Warn("stochasticity drifted past tolerance", "category", cat, "step", m.step)
	}
}

// Records returns every longitudinal snapshot taken so far.
func (m *Model) Records() []Record { return m.records }

// StatusCounts returns the status distribution recorded for a month.
func (m *Model) StatusCounts(month string) map[string]int { return m.statusCount[month] }

// Summarize aggregates the run so far.
func (m *Model) Summarize() Summary {
	dist := make(map[string]int)
	for _, h := range m.households {
		dist[h.Status.String()]++
	}
	return Summary{
		Agents:             len(m.households),
		Steps:              m.step,
		FinalMonth:         m.month,
		StatusDistribution: dist,
		Departures:         m.departures,
		Returns:            m.returns,
		ShelterOccupancy:   m.shelter.Occupancy(),
		ShelterCapacity:    m.shelter.TotalCapacity(),
		Stochasticity:      m.sm.Snapshot(),
	}
}
