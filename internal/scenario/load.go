package scenario

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Bundle file names inside a scenario directory. The first five are
// required; the new-construction feeds are optional.
const (
	FileHouseholds   = "households.csv"
	FileRecovery     = "recovery.csv"
	FileShelters     = "shelters.csv"
	FileSchools      = "schools.csv"
	FileHospitals    = "hospitals.csv"
	FileNewBuildings = "new_buildings.csv"
	FileNewJobs      = "new_jobs.csv"
	FileNewRecovery  = "new_buildings_recovery.csv"
)

var monthLabel = regexp.MustCompile(`^\d{4}_\d{2}$`)

// Load reads and validates a scenario bundle from a directory.
func Load(dir string) (*Scenario, error) {
	rec, err := loadRecovery(filepath.Join(dir, FileRecovery))
	if err != nil {
		return nil, err
	}

	households, err := loadHouseholds(filepath.Join(dir, FileHouseholds))
	if err != nil {
		return nil, err
	}

	shelters, err := loadFacilities(filepath.Join(dir, FileShelters), true)
	if err != nil {
		return nil, err
	}
	schools, err := loadFacilities(filepath.Join(dir, FileSchools), false)
	if err != nil {
		return nil, err
	}
	hospitals, err := loadFacilities(filepath.Join(dir, FileHospitals), false)
	if err != nil {
		return nil, err
	}

	s := &Scenario{
		Households: households,
		Recovery:   rec,
		Shelters:   shelters,
		Schools:    schools,
		Hospitals:  hospitals,
	}

	// New-construction feeds are optional.
	if nb, err := loadNewBuildings(filepath.Join(dir, FileNewBuildings)); err == nil {
		s.NewBuildings = nb
	} else if !os.IsNotExist(unwrapPathError(err)) {
		return nil, err
	}
	if nj, err := loadNewJobs(filepath.Join(dir, FileNewJobs)); err == nil {
		s.NewJobs = nj
	} else if !os.IsNotExist(unwrapPathError(err)) {
		return nil, err
	}
	if nr, err := loadRecovery(filepath.Join(dir, FileNewRecovery)); err == nil {
		s.NewRecovery = nr
	} else if !os.IsNotExist(unwrapPathError(err)) {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	slog.Info("scenario loaded",
		"dir", dir,
		"households", len(s.Households),
		"months", len(s.Recovery.Months),
		"shelters", len(s.Shelters),
		"new_buildings", len(s.NewBuildings),
		"new_jobs", len(s.NewJobs),
	)
	return s, nil
}

func unwrapPathError(err error) error {
	for {
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		inner := u.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// table is a header-indexed CSV file.
type table struct {
	file    string
	header  map[string]int
	columns []string
	rows    [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, &ContractError{File: filepath.Base(path), Msg: err.Error()}
	}
	if len(all) < 1 {
		return nil, &ContractError{File: filepath.Base(path), Msg: "empty file"}
	}

	header := make(map[string]int, len(all[0]))
	for i, name := range all[0] {
		header[strings.TrimSpace(name)] = i
	}
	return &table{file: filepath.Base(path), header: header, columns: all[0], rows: all[1:]}, nil
}

// cell returns a field by column name, "" when the column is absent or
// the value is blank.
func (t *table) cell(row []string, col string) string {
	i, ok := t.header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) intCell(row []string, rowNum int, col string) (int, error) {
	raw := t.cell(row, col)
	if raw == "" {
		return 0, &ContractError{File: t.file, Row: rowNum, Msg: fmt.Sprintf("missing required field %q", col)}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ContractError{File: t.file, Row: rowNum, Msg: fmt.Sprintf("field %q: %q is not an integer", col, raw)}
	}
	return v, nil
}

func (t *table) floatCell(row []string, rowNum int, col string) (float64, error) {
	raw := t.cell(row, col)
	if raw == "" {
		return 0, &ContractError{File: t.file, Row: rowNum, Msg: fmt.Sprintf("missing required field %q", col)}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ContractError{File: t.file, Row: rowNum, Msg: fmt.Sprintf("field %q: %q is not a number", col, raw)}
	}
	return v, nil
}

// optFloat returns def for absent/blank cells (documented optional-field
// defaulting; anything present but malformed is still a contract error).
func (t *table) optFloat(row []string, rowNum int, col string, def float64) (float64, error) {
	raw := t.cell(row, col)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ContractError{File: t.file, Row: rowNum, Msg: fmt.Sprintf("field %q: %q is not a number", col, raw)}
	}
	return v, nil
}

func loadHouseholds(path string) ([]HouseholdRecord, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	out := make([]HouseholdRecord, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		h := HouseholdRecord{}

		if h.HID, err = t.intCell(row, n, "h_id"); err != nil {
			return nil, err
		}
		if h.BID, err = t.intCell(row, n, "b_id"); err != nil {
			return nil, err
		}
		h.OriginalBID = h.BID
		if raw := t.cell(row, "original_b_id"); raw != "" {
			if h.OriginalBID, err = t.intCell(row, n, "original_b_id"); err != nil {
				return nil, err
			}
		}
		if h.X, err = t.floatCell(row, n, "x"); err != nil {
			return nil, err
		}
		if h.Y, err = t.floatCell(row, n, "y"); err != nil {
			return nil, err
		}
		if h.JobID, err = t.intCell(row, n, "j_id"); err != nil {
			return nil, err
		}
		if h.ClosestHospitalID, err = t.intCell(row, n, "closest_hospital_id"); err != nil {
			return nil, err
		}
		if h.ClosestSchoolID, err = t.intCell(row, n, "closest_school_id"); err != nil {
			return nil, err
		}

		if raw := t.cell(row, "r_id"); raw != "" {
			rid, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &ContractError{File: t.file, Row: n, Msg: fmt.Sprintf("field \"r_id\": %q is not an integer", raw)}
			}
			h.RelativeID = &rid
		}

		// Missing distance inputs default to 1.0 — maximal penalty.
		if h.DistWork, err = t.optFloat(row, n, "dist_work_norm", 1.0); err != nil {
			return nil, err
		}
		if h.DistSchool, err = t.optFloat(row, n, "dist_school_norm", 1.0); err != nil {
			return nil, err
		}
		if h.DistHospital, err = t.optFloat(row, n, "dist_hospital_norm", 1.0); err != nil {
			return nil, err
		}

		// Optional socio-economic fields default to the best tier.
		if raw := t.cell(row, "employment"); raw == "" {
			h.Employment = 1
		} else if h.Employment, err = t.intCell(row, n, "employment"); err != nil {
			return nil, err
		}
		if h.Income, err = t.optFloat(row, n, "income", 1.0); err != nil {
			return nil, err
		}
		if h.Liquidity, err = t.optFloat(row, n, "liquid", 1.0); err != nil {
			return nil, err
		}
		if h.Tenure = t.cell(row, "tenure"); h.Tenure == "" {
			h.Tenure = TenureOwnership
		}

		for k := 1; ; k++ {
			raw := t.cell(row, fmt.Sprintf("closest_%d", k))
			if raw == "" {
				break
			}
			b, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &ContractError{File: t.file, Row: n, Msg: fmt.Sprintf("field \"closest_%d\": %q is not an integer", k, raw)}
			}
			h.ClosestBuildings = append(h.ClosestBuildings, b)
		}

		out = append(out, h)
	}
	return out, nil
}

// loadRecovery reads a wide-format table: id, optional land_use, then one
// binary column per YYYY_MM month label in chronological order.
func loadRecovery(path string) (*RecoveryTable, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	var months []string
	for _, col := range t.columns {
		if monthLabel.MatchString(strings.TrimSpace(col)) {
			months = append(months, strings.TrimSpace(col))
		}
	}
	if len(months) == 0 {
		return nil, &ContractError{File: t.file, Msg: "no YYYY_MM month columns"}
	}

	rec := NewRecoveryTable(months)
	for i, row := range t.rows {
		n := i + 1
		bID, err := t.intCell(row, n, "id")
		if err != nil {
			return nil, err
		}
		if lu := t.cell(row, "land_use"); lu != "" {
			rec.LandUse[bID] = lu
		}
		for _, m := range months {
			v, err := t.intCell(row, n, m)
			if err != nil {
				return nil, err
			}
			if v != 0 && v != 1 {
				return nil, &ContractError{File: t.file, Row: n, Msg: fmt.Sprintf("building %d month %s: functionality %d is not binary", bID, m, v)}
			}
			rec.Set(bID, m, v == 1)
		}
	}
	return rec, nil
}

func loadFacilities(path string, withCapacity bool) ([]Facility, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	out := make([]Facility, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		f := Facility{}
		if f.ID, err = t.intCell(row, n, "id"); err != nil {
			return nil, err
		}
		if f.X, err = t.floatCell(row, n, "x"); err != nil {
			return nil, err
		}
		if f.Y, err = t.floatCell(row, n, "y"); err != nil {
			return nil, err
		}
		if withCapacity {
			if raw := t.cell(row, "capacity"); raw != "" {
				if f.Capacity, err = t.intCell(row, n, "capacity"); err != nil {
					return nil, err
				}
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func loadNewBuildings(path string) ([]NewBuilding, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	out := make([]NewBuilding, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		b := NewBuilding{LandUse: t.cell(row, "land_use")}
		if b.ID, err = t.intCell(row, n, "id"); err != nil {
			return nil, err
		}
		if b.X, err = t.floatCell(row, n, "x"); err != nil {
			return nil, err
		}
		if b.Y, err = t.floatCell(row, n, "y"); err != nil {
			return nil, err
		}
		if b.ClosestSchoolID, err = t.intCell(row, n, "closest_school_id"); err != nil {
			return nil, err
		}
		if b.ClosestHospitalID, err = t.intCell(row, n, "closest_hospital_id"); err != nil {
			return nil, err
		}
		if b.DistSchool, err = t.optFloat(row, n, "dist_school_norm", 1.0); err != nil {
			return nil, err
		}
		if b.DistHospital, err = t.optFloat(row, n, "dist_hospital_norm", 1.0); err != nil {
			return nil, err
		}
		b.DiscoverableAgents = readAgentList(t, row)
		out = append(out, b)
	}
	return out, nil
}

func loadNewJobs(path string) ([]NewJob, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	out := make([]NewJob, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		j := NewJob{LandUse: t.cell(row, "land_use")}
		if j.ID, err = t.intCell(row, n, "id"); err != nil {
			return nil, err
		}
		if j.X, err = t.floatCell(row, n, "x"); err != nil {
			return nil, err
		}
		if j.Y, err = t.floatCell(row, n, "y"); err != nil {
			return nil, err
		}
		j.ClosestAgents = readAgentList(t, row)
		out = append(out, j)
	}
	return out, nil
}

func readAgentList(t *table, row []string) []int {
	var agents []int
	for k := 1; ; k++ {
		raw := t.cell(row, fmt.Sprintf("closest_agent_%d", k))
		if raw == "" {
			break
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		agents = append(agents, id)
	}
	return agents
}
