// Package scenario holds the input data contracts the simulation core
// consumes: household records, monthly building functionality tables,
// facility tables, and new-building/new-job feeds. The ingestion layer
// that produces these files (spreadsheet parsing, coordinate
// precomputation) lives outside this repository; the loader here reads
// the agreed CSV bundle and enforces the contract before the model runs.
package scenario

import "fmt"

// ContractError reports malformed or missing required input. It is fatal
// and surfaced before the simulation starts.
type ContractError struct {
	File string
	Row  int // 1-based data row, 0 when the problem is file-level
	Msg  string
}

func (e *ContractError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("data contract violation in %s row %d: %s", e.File, e.Row, e.Msg)
	}
	return fmt.Sprintf("data contract violation in %s: %s", e.File, e.Msg)
}

// Tenure types as they appear in the household table.
const (
	TenureOwnership = "Ownership"
	TenureRental    = "Rental"
)

// HouseholdRecord is one row of the household table. Optional fields
// default to employed / high income / high liquidity / ownership.
type HouseholdRecord struct {
	HID int
	BID int
	// OriginalBID is the pre-disaster home; 0 (or an absent column) means
	// the household starts at home and BID is the original.
	OriginalBID int
	X, Y        float64
	JobID       int
	RelativeID  *int // optional: another household's HID

	ClosestHospitalID int
	ClosestSchoolID   int

	// Normalized distances in [0,1]; missing values load as 1.0
	// (maximal penalty, see household.Satisfaction).
	DistWork     float64
	DistSchool   float64
	DistHospital float64

	Employment int
	Income     float64
	Liquidity  float64
	Tenure     string

	// Nearest pre-disaster buildings, closest first.
	ClosestBuildings []int
}

// Facility is a shelter, school, or hospital location.
type Facility struct {
	ID       int
	X, Y     float64
	Capacity int // shelters only; 0 means "use the configured default"
}

// NewBuilding is a post-disaster construction feed entry.
type NewBuilding struct {
	ID                int
	X, Y              float64
	LandUse           string
	ClosestSchoolID   int
	ClosestHospitalID int
	DistSchool        float64
	DistHospital      float64

	// Households that discover the building directly at activation.
	DiscoverableAgents []int
}

// NewJob is a post-disaster job posting feed entry. All feed postings are
// high-income; acceptance is exclusive per posting.
type NewJob struct {
	ID            int
	X, Y          float64
	LandUse       string
	ClosestAgents []int // closest 10 households, direct discovery
}

// RecoveryTable maps building ID -> ordered per-month binary
// functionality. Months are calendar labels of the form YYYY_MM.
type RecoveryTable struct {
	Months  []string
	LandUse map[int]string

	monthIndex map[string]int
	functional map[int][]uint8
}

// NewRecoveryTable builds an empty table over an ordered month sequence.
func NewRecoveryTable(months []string) *RecoveryTable {
	idx := make(map[string]int, len(months))
	for i, m := range months {
		idx[m] = i
	}
	return &RecoveryTable{
		Months:     months,
		LandUse:    make(map[int]string),
		monthIndex: idx,
		functional: make(map[int][]uint8),
	}
}

// Set records a building's functionality for one month.
func (t *RecoveryTable) Set(bID int, month string, functional bool) {
	i, ok := t.monthIndex[month]
	if !ok {
		return
	}
	row, ok := t.functional[bID]
	if !ok {
		row = make([]uint8, len(t.Months))
		t.functional[bID] = row
	}
	if functional {
		row[i] = 1
	}
}

// Functionality returns a building's binary functionality for a month.
// Buildings absent from the table report the fallback value: the main
// recovery table assumes undamaged (1), the new-construction table
// assumes not yet built (0) — callers pass the fallback accordingly.
func (t *RecoveryTable) Functionality(bID int, month string, fallback int) int {
	i, ok := t.monthIndex[month]
	if !ok {
		return fallback
	}
	row, ok := t.functional[bID]
	if !ok {
		return fallback
	}
	return int(row[i])
}

// HasMonth reports whether the table carries data for a month label.
func (t *RecoveryTable) HasMonth(month string) bool {
	_, ok := t.monthIndex[month]
	return ok
}

// HasBuilding reports whether the table carries a row for a building.
func (t *RecoveryTable) HasBuilding(bID int) bool {
	_, ok := t.functional[bID]
	return ok
}

// Buildings returns the IDs present in the table (unordered).
func (t *RecoveryTable) Buildings() []int {
	ids := make([]int, 0, len(t.functional))
	for id := range t.functional {
		ids = append(ids, id)
	}
	return ids
}

// Scenario is a complete validated input bundle.
type Scenario struct {
	Households []HouseholdRecord
	Recovery   *RecoveryTable

	Shelters  []Facility
	Schools   []Facility
	Hospitals []Facility

	NewBuildings []NewBuilding
	NewJobs      []NewJob
	// NewRecovery carries activation timelines for new buildings and new
	// job sites, keyed by their IDs over the same month sequence.
	NewRecovery *RecoveryTable
}

// Validate enforces the cross-table contract. Returns the first
// violation found; the model refuses to construct on error.
func (s *Scenario) Validate() error {
	if len(s.Households) == 0 {
		return &ContractError{File: "households", Msg: "no household records"}
	}
	if s.Recovery == nil || len(s.Recovery.Months) == 0 {
		return &ContractError{File: "recovery", Msg: "no monthly functionality data"}
	}

	seen := make(map[int]bool, len(s.Households))
	for i, h := range s.Households {
		row := i + 1
		if seen[h.HID] {
			return &ContractError{File: "households", Row: row, Msg: fmt.Sprintf("duplicate household id %d", h.HID)}
		}
		seen[h.HID] = true
		for _, d := range []float64{h.DistWork, h.DistSchool, h.DistHospital} {
			if d < 0 || d > 1 {
				return &ContractError{File: "households", Row: row,
					Msg: fmt.Sprintf("household %d: normalized distance %.3f outside [0,1]", h.HID, d)}
			}
		}
		if h.Tenure != TenureOwnership && h.Tenure != TenureRental {
			return &ContractError{File: "households", Row: row,
				Msg: fmt.Sprintf("household %d: unknown tenure %q", h.HID, h.Tenure)}
		}
	}
	for i, h := range s.Households {
		if h.RelativeID != nil && !seen[*h.RelativeID] {
			return &ContractError{File: "households", Row: i + 1,
				Msg: fmt.Sprintf("household %d: relative %d not in table", h.HID, *h.RelativeID)}
		}
	}

	if len(s.NewBuildings)+len(s.NewJobs) > 0 && (s.NewRecovery == nil || len(s.NewRecovery.Months) == 0) {
		return &ContractError{File: "new_buildings_recovery",
			Msg: "new construction feeds present but no activation timeline"}
	}
	return nil
}
