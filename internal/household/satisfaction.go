package household

import "github.com/umutlagap/DRT-PRR/internal/config"

// ServiceKind selects a service functionality lookup.
type ServiceKind uint8

const (
	ServiceSchool ServiceKind = iota
	ServiceHospital
)

// Environment is the monthly functionality snapshot the satisfaction
// engine reads. Implemented by the orchestrator's per-step caches.
type Environment interface {
	// BuildingFunctional reports a pre-disaster building's binary
	// functionality this month.
	BuildingFunctional(bID int) bool
	// NewBuildingFunctional reports whether a new construction has been
	// activated and stands this month.
	NewBuildingFunctional(bID int) bool
	// JobFunctional reports whether a workplace building stands.
	JobFunctional(jID int) bool
	// ServiceFunctionality returns 1.0 for a functional school/hospital
	// and the configured degraded floor otherwise.
	ServiceFunctionality(kind ServiceKind, id int) float64
}

// Scores holds the four sub-scores and their product.
type Scores struct {
	Housing   float64 // HF, binary
	Work      float64 // WC = (1 - D_work) * employment
	Hospital  float64 // HC = (1 - D_hospital) * functionality
	School    float64 // SC = (1 - D_school) * functionality
	Composite float64 // S = HF * WC * HC * SC, clamped to [0,1]
}

// Satisfaction computes the composite score for the household's current
// location, or its pre-disaster location when atOriginal is set. Pure
// function of the environment snapshot and agent attributes.
//
// Distances are pre-normalized inputs in [0,1]; a record that arrived
// without one was loaded as 1.0, the maximal penalty.
func Satisfaction(env Environment, h *Household, atOriginal bool, cfg config.Config) Scores {
	bID := h.BID
	distWork := h.DistWork
	distSchool := h.DistSchool
	distHospital := h.DistHospital
	schoolID := h.SchoolID
	hospitalID := h.HospitalID
	if atOriginal {
		bID = h.OriginalBID
		distWork = h.OriginalDistWork
		distSchool = h.OriginalDistSchool
		distHospital = h.OriginalDistHospital
		schoolID = h.OriginalSchoolID
		hospitalID = h.OriginalHospitalID
	}

	var s Scores

	housingOK := env.BuildingFunctional(bID)
	if h.Status == StatusNewBuilding && !atOriginal {
		housingOK = env.NewBuildingFunctional(bID)
	}
	if housingOK {
		s.Housing = 1
	}

	employment := float64(h.Employment)
	if !env.JobFunctional(h.JobID) {
		employment = 0
	}
	s.Work = (1 - distWork) * employment
	s.Hospital = (1 - distHospital) * env.ServiceFunctionality(ServiceHospital, hospitalID)
	s.School = (1 - distSchool) * env.ServiceFunctionality(ServiceSchool, schoolID)

	s.Composite = s.Housing * s.Work * s.Hospital * s.School
	if s.Composite < 0 {
		s.Composite = 0
	}
	if s.Composite > 1 {
		s.Composite = 1
	}
	return s
}

// UpdateEconomicStatus refreshes employment and income from workplace
// functionality: a household is out of work (low income tier) while its
// job building is down, restored from original values when it recovers.
// Income after a job change follows the new posting's level.
func (h *Household) UpdateEconomicStatus(env Environment, newJobIncome func(jID int) (float64, bool), cfg config.Config) {
	if !env.JobFunctional(h.JobID) {
		h.Employment = 0
		h.Income = cfg.IncomeLow
		return
	}
	h.Employment = h.OriginalEmployment
	if h.JobID == h.OriginalJobID {
		h.Income = h.OriginalIncome
	} else if income, ok := newJobIncome(h.JobID); ok {
		h.Income = income
	} else {
		h.Income = cfg.IncomeLow
	}
	h.Liquidity = h.OriginalLiquidity
}
