package household

import (
	"github.com/umutlagap/DRT-PRR/internal/config"
	"github.com/umutlagap/DRT-PRR/internal/stochastic"
)

// World is everything a household consults while deciding: the
// environment snapshot, the social network, the resource markets, and
// the stochastic gate. Implemented by the orchestrator.
type World interface {
	Environment

	// Month returns the current calendar month label.
	Month() string

	// Gate passes a deterministically eligible choice through the
	// stochastic manager; an override rejects the choice this step.
	Gate(cat stochastic.Category, hID int, deterministic bool) bool

	// OriginalRecovered reports a 0 -> 1 functionality flip of a
	// building in the current month.
	OriginalRecovered(bID int) bool

	// RelativeHome returns a relative household's current location when
	// its building is functional.
	RelativeHome(rID int) (Location, bool)

	// RentalAvailable reports whether any rental unit is lettable.
	RentalAvailable() bool

	// ClaimShelter requests a bed first-come-first-served; overflow
	// joins the market's waiting list.
	ClaimShelter(h *Household) (Location, bool)

	// KnownNewBuildings lists new buildings the household has heard of,
	// ascending ID.
	KnownNewBuildings(hID int) []int

	// OpenNewBuilding returns a new building's location when it is
	// activated, functional, and unoccupied.
	OpenNewBuilding(bID int) (Location, bool)

	// OccupyNewBuilding takes the building's single slot.
	OccupyNewBuilding(bID, hID int)

	// KnownOpenJobs lists known postings that are open and functional,
	// ascending posting ID.
	KnownOpenJobs(hID int) []int

	// AcceptJob closes a posting for this household; false when another
	// household got there first.
	AcceptJob(jobID, hID int) bool

	// ReleaseResources frees whatever scarce slot the household holds
	// (shelter bed, rental unit, new-building slot).
	ReleaseResources(h *Household)

	// ReoccupyOriginal marks the household's own unit occupied again
	// after a return home.
	ReoccupyOriginal(h *Household)

	// RefreshServiceDistances re-derives normalized school/hospital
	// distances from the household's current coordinates.
	RefreshServiceDistances(h *Household)

	// CanEvacuate reports whether the step's departure cap has room.
	CanEvacuate() bool
	// RecordEvacuation counts a departure against the cap.
	RecordEvacuation()
	// RecordReturn counts a return from outside the city.
	RecordReturn()
}

// Branch identifies a rung of the fixed relocation priority ladder.
type Branch uint8

const (
	BranchRelative Branch = iota
	BranchRental
	BranchShelter
	BranchNewBuilding
	BranchLeave
)

// Outcome tells the orchestrator whether the household paused at the
// rental branch awaiting market resolution.
type Outcome struct {
	WantsRental bool
}

// Step runs one month of the relocation decision procedure. The
// orchestrator refreshes economic status before calling. When the
// outcome requests a rental, the orchestrator resolves the market after
// collecting every claim and re-enters losers at BranchShelter.
func Step(h *Household, w World, cfg config.Config) Outcome {
	// Return-home rule: a relocated or departed household goes back the
	// month its original building comes back up.
	if h.Status.Relocated() && w.OriginalRecovered(h.OriginalBID) {
		if w.Gate(stochastic.CategoryReturnTiming, h.ID, true) {
			if h.Status == StatusLeftCity {
				w.RecordReturn()
			}
			ReturnHome(h, w)
			h.Satisfaction = Satisfaction(w, h, false, cfg).Composite
			return Outcome{}
		}
	}

	h.Satisfaction = Satisfaction(w, h, false, cfg).Composite

	if h.Status == StatusLeftCity {
		return evaluateReturnFromOutside(h, w, cfg)
	}

	if h.Satisfaction >= cfg.SatisfactionThreshold {
		h.MonthsLowSatisfaction = 0
		switch {
		case h.Status.Temporary():
			// Settled for now — go home once home also clears the bar.
			if w.BuildingFunctional(h.OriginalBID) &&
				Satisfaction(w, h, true, cfg).Composite >= cfg.SatisfactionThreshold &&
				w.Gate(stochastic.CategoryReturnTiming, h.ID, true) {
				ReturnHome(h, w)
			}
		case h.Status == StatusSeeking || h.Status == StatusReturned:
			h.SetStatus(StatusStable, w.Month())
		}
		return Outcome{}
	}

	h.MonthsLowSatisfaction++
	if !h.Status.Relocated() && h.Status != StatusSeeking {
		h.SetStatus(StatusSeeking, w.Month())
	}
	return EvaluateFrom(h, w, cfg, BranchRelative)
}

// EvaluateFrom walks the priority ladder from a given branch: relatives,
// rental, shelter, new building, leave city. First eligible option wins;
// ties between branches never arise because the order is fixed. Each
// eligibility is passed through the stochastic gate before being taken.
func EvaluateFrom(h *Household, w World, cfg config.Config, from Branch) Outcome {
	// Prolonged dissatisfaction forces departure regardless of options.
	if from == BranchRelative && h.MonthsLowSatisfaction >= cfg.MonthsBeforeLeaveCity {
		if w.Gate(stochastic.CategoryLeaveCity, h.ID, true) {
			leaveCity(h, w)
			return Outcome{}
		}
	}

	// A relocated household first re-checks home: going back beats any
	// further move once the original situation clears the bar.
	if from == BranchRelative && h.Status.Relocated() &&
		w.BuildingFunctional(h.OriginalBID) &&
		Satisfaction(w, h, true, cfg).Composite >= cfg.SatisfactionThreshold {
		if w.Gate(stochastic.CategoryReturnTiming, h.ID, true) {
			ReturnHome(h, w)
			h.Satisfaction = Satisfaction(w, h, false, cfg).Composite
			return Outcome{}
		}
	}

	for b := from; b <= BranchLeave; b++ {
		switch b {
		case BranchRelative:
			if h.RelativeID == nil {
				continue
			}
			loc, ok := w.RelativeHome(*h.RelativeID)
			if !ok || !w.Gate(stochastic.CategoryInitialMove, h.ID, true) {
				continue
			}
			Relocate(h, w, loc, StatusRelative)
			return Outcome{}

		case BranchRental:
			if h.EconomicScore() < cfg.RentalEconomicThreshold {
				continue
			}
			if !w.RentalAvailable() || !w.Gate(stochastic.CategoryInitialMove, h.ID, true) {
				continue
			}
			return Outcome{WantsRental: true}

		case BranchShelter:
			if h.Status == StatusShelter {
				continue
			}
			if !w.Gate(stochastic.CategoryInitialMove, h.ID, true) {
				continue
			}
			loc, ok := w.ClaimShelter(h)
			if !ok {
				continue
			}
			Relocate(h, w, loc, StatusShelter)
			return Outcome{}

		case BranchNewBuilding:
			for _, bID := range w.KnownNewBuildings(h.ID) {
				loc, ok := w.OpenNewBuilding(bID)
				if !ok {
					continue
				}
				if !w.Gate(stochastic.CategoryInitialMove, h.ID, true) {
					break
				}
				w.OccupyNewBuilding(bID, h.ID)
				Relocate(h, w, loc, StatusNewBuilding)
				return Outcome{}
			}

		case BranchLeave:
			// Only a household with no arrangement at all leaves here; one
			// already housed somewhere, however unhappily, stays and
			// re-evaluates next month.
			if h.Status == StatusSeeking {
				leaveCity(h, w)
			}
		}
	}
	return Outcome{}
}

// Relocate moves the household into a new arrangement, releasing
// whatever slot it held before.
func Relocate(h *Household, w World, loc Location, st Status) {
	w.ReleaseResources(h)
	h.MoveTo(loc)
	w.RefreshServiceDistances(h)
	h.SetStatus(st, w.Month())
}

// ReturnHome restores the pre-disaster location and releases held
// resources. The low-satisfaction counter resets.
func ReturnHome(h *Household, w World) {
	w.ReleaseResources(h)
	h.ResetToOriginal()
	w.ReoccupyOriginal(h)
	h.SetStatus(StatusReturned, w.Month())
}

// leaveCity departs subject to the step's evacuation cap. A blocked
// household stays Seeking, waiting for capacity (it is already on the
// shelter waiting list if it passed through that branch).
func leaveCity(h *Household, w World) {
	if h.Status == StatusLeftCity || !w.CanEvacuate() {
		return
	}
	w.RecordEvacuation()
	w.ReleaseResources(h)
	h.LeftCityMonth = w.Month()
	h.X, h.Y = 0, 0
	h.SetStatus(StatusLeftCity, w.Month())
}

// evaluateReturnFromOutside re-evaluates a departed household: come back
// when the original home is livable again, or when a known open posting
// pulls an eligible worker back in.
func evaluateReturnFromOutside(h *Household, w World, cfg config.Config) Outcome {
	if w.BuildingFunctional(h.OriginalBID) &&
		Satisfaction(w, h, true, cfg).Composite >= cfg.SatisfactionThreshold {
		if w.Gate(stochastic.CategoryReturnTiming, h.ID, true) {
			w.RecordReturn()
			ReturnHome(h, w)
			h.Satisfaction = Satisfaction(w, h, false, cfg).Composite
		}
		return Outcome{}
	}

	if h.EligibleForHighIncomeJobs(cfg.IncomeHigh) && len(w.KnownOpenJobs(h.ID)) > 0 {
		if w.Gate(stochastic.CategoryReturnTiming, h.ID, true) {
			w.RecordReturn()
			if w.BuildingFunctional(h.OriginalBID) {
				ReturnHome(h, w)
				h.Satisfaction = Satisfaction(w, h, false, cfg).Composite
				return Outcome{}
			}
			// Home is still down: re-enter the city and restart the
			// relocation ladder from scratch.
			h.ResetToOriginal()
			h.SetStatus(StatusSeeking, w.Month())
			return EvaluateFrom(h, w, cfg, BranchRelative)
		}
	}
	return Outcome{}
}

// TryJobChange runs the job-change sub-process, independent of location
// relocation: only pre-disaster high-income households may take new
// high-income postings, and a posting closes with its first taker.
// Acceptance updates employment and workplace, never residence.
func TryJobChange(h *Household, w World, cfg config.Config) bool {
	if h.Status == StatusLeftCity {
		return false
	}
	if !h.EligibleForHighIncomeJobs(cfg.IncomeHigh) {
		return false
	}
	// Nothing to gain for a household already employed at the high tier.
	if h.Employment == 1 && h.Income >= cfg.IncomeHigh {
		return false
	}
	for _, jobID := range w.KnownOpenJobs(h.ID) {
		if !w.Gate(stochastic.CategoryJobMarket, h.ID, true) {
			return false
		}
		if w.AcceptJob(jobID, h.ID) {
			h.JobID = jobID
			h.Employment = 1
			h.Income = cfg.IncomeHigh
			return true
		}
	}
	return false
}
