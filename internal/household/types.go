// Package household provides the household agent data model, the
// satisfaction engine, and the relocation decision procedure. A
// household is one entity composed of independent behavior facets
// (satisfaction, relocation, job change) invoked by the orchestrator —
// there is no agent hierarchy.
package household

import (
	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// Status is a household's relocation state.
type Status uint8

const (
	StatusStable Status = iota
	StatusSeeking
	StatusRelative
	StatusRental
	StatusShelter
	StatusNewBuilding
	StatusLeftCity
	StatusReturned
)

var statusNames = [...]string{
	"stable",
	"seeking",
	"relative",
	"rental",
	"shelter",
	"new_building",
	"left_city",
	"returned",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Temporary reports whether the state is a temporary arrangement the
// household will abandon when home becomes livable again.
func (s Status) Temporary() bool {
	return s == StatusRelative || s == StatusRental || s == StatusShelter
}

// Relocated reports whether the household is away from its original
// building (including outside the city).
func (s Status) Relocated() bool {
	switch s {
	case StatusRelative, StatusRental, StatusShelter, StatusNewBuilding, StatusLeftCity:
		return true
	}
	return false
}

// Transition is one entry of a household's relocation history.
type Transition struct {
	Status Status
	Month  string
}

// Location bundles the attributes that change when a household moves.
type Location struct {
	BID          int
	X, Y         float64
	SchoolID     int
	HospitalID   int
	DistSchool   float64
	DistHospital float64
}

// Household is the core agent. Created once at initialization, mutated
// every step by the decision procedure, never destroyed.
type Household struct {
	ID int

	// Current location and service linkage.
	BID                  int
	X, Y                 float64
	SchoolID, HospitalID int
	DistWork             float64
	DistSchool           float64
	DistHospital         float64

	// Pre-disaster baseline, used for satisfaction-at-home checks and
	// for the return transition.
	OriginalBID                          int
	OriginalX, OriginalY                 float64
	OriginalSchoolID, OriginalHospitalID int
	OriginalDistWork                     float64
	OriginalDistSchool                   float64
	OriginalDistHospital                 float64

	// Economics.
	Employment         int
	Income             float64
	Liquidity          float64
	OriginalEmployment int
	OriginalIncome     float64
	OriginalLiquidity  float64
	Tenure             string

	JobID         int
	OriginalJobID int

	RelativeID       *int
	ClosestBuildings []int

	// Decision state.
	Status                Status
	Satisfaction          float64
	OriginalSatisfaction  float64
	MonthsLowSatisfaction int
	LeftCityMonth         string
	History               []Transition
}

// New creates a household from its input record.
func New(rec scenario.HouseholdRecord) *Household {
	originalBID := rec.OriginalBID
	if originalBID == 0 {
		originalBID = rec.BID
	}
	return &Household{
		ID: rec.HID,

		BID:          rec.BID,
		X:            rec.X,
		Y:            rec.Y,
		SchoolID:     rec.ClosestSchoolID,
		HospitalID:   rec.ClosestHospitalID,
		DistWork:     rec.DistWork,
		DistSchool:   rec.DistSchool,
		DistHospital: rec.DistHospital,

		OriginalBID:          originalBID,
		OriginalX:            rec.X,
		OriginalY:            rec.Y,
		OriginalSchoolID:     rec.ClosestSchoolID,
		OriginalHospitalID:   rec.ClosestHospitalID,
		OriginalDistWork:     rec.DistWork,
		OriginalDistSchool:   rec.DistSchool,
		OriginalDistHospital: rec.DistHospital,

		Employment:         rec.Employment,
		Income:             rec.Income,
		Liquidity:          rec.Liquidity,
		OriginalEmployment: rec.Employment,
		OriginalIncome:     rec.Income,
		OriginalLiquidity:  rec.Liquidity,
		Tenure:             rec.Tenure,

		JobID:         rec.JobID,
		OriginalJobID: rec.JobID,

		RelativeID:       rec.RelativeID,
		ClosestBuildings: rec.ClosestBuildings,

		Status: StatusStable,
	}
}

// EconomicScore is the competition priority FC:
// employment x income x liquidity.
func (h *Household) EconomicScore() float64 {
	return float64(h.Employment) * h.Income * h.Liquidity
}

// EligibleForHighIncomeJobs: only households whose pre-disaster income
// was high may take new high-income postings.
func (h *Household) EligibleForHighIncomeJobs(incomeHigh float64) bool {
	return h.OriginalIncome == incomeHigh
}

// SetStatus transitions the household and records the step.
func (h *Household) SetStatus(s Status, month string) {
	h.Status = s
	h.History = append(h.History, Transition{Status: s, Month: month})
}

// MoveTo relocates the household within the city.
func (h *Household) MoveTo(loc Location) {
	h.BID = loc.BID
	h.X = loc.X
	h.Y = loc.Y
	h.SchoolID = loc.SchoolID
	h.HospitalID = loc.HospitalID
	h.DistSchool = loc.DistSchool
	h.DistHospital = loc.DistHospital
}

// ResetToOriginal restores the pre-disaster location and service
// linkage. The low-satisfaction counter resets with it.
func (h *Household) ResetToOriginal() {
	h.BID = h.OriginalBID
	h.X = h.OriginalX
	h.Y = h.OriginalY
	h.SchoolID = h.OriginalSchoolID
	h.HospitalID = h.OriginalHospitalID
	h.DistWork = h.OriginalDistWork
	h.DistSchool = h.OriginalDistSchool
	h.DistHospital = h.OriginalDistHospital
	h.MonthsLowSatisfaction = 0
}
