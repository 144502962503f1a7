package synth

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// WriteBundle writes a scenario as the CSV bundle the loader reads.
func WriteBundle(s *scenario.Scenario, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scenario dir: %w", err)
	}

	if err := writeHouseholds(s, filepath.Join(dir, scenario.FileHouseholds)); err != nil {
		return err
	}
	if err := writeRecovery(s.Recovery, filepath.Join(dir, scenario.FileRecovery)); err != nil {
		return err
	}
	if err := writeFacilities(s.Shelters, filepath.Join(dir, scenario.FileShelters), true); err != nil {
		return err
	}
	if err := writeFacilities(s.Schools, filepath.Join(dir, scenario.FileSchools), false); err != nil {
		return err
	}
	if err := writeFacilities(s.Hospitals, filepath.Join(dir, scenario.FileHospitals), false); err != nil {
		return err
	}
	if len(s.NewBuildings) > 0 {
		if err := writeNewBuildings(s.NewBuildings, filepath.Join(dir, scenario.FileNewBuildings)); err != nil {
			return err
		}
	}
	if len(s.NewJobs) > 0 {
		if err := writeNewJobs(s.NewJobs, filepath.Join(dir, scenario.FileNewJobs)); err != nil {
			return err
		}
	}
	if s.NewRecovery != nil && len(s.NewRecovery.Buildings()) > 0 {
		if err := writeRecovery(s.NewRecovery, filepath.Join(dir, scenario.FileNewRecovery)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeHouseholds(s *scenario.Scenario, path string) error {
	maxClosest := 0
	for _, h := range s.Households {
		if len(h.ClosestBuildings) > maxClosest {
			maxClosest = len(h.ClosestBuildings)
		}
	}

	header := []string{
		"h_id", "b_id", "original_b_id", "x", "y", "j_id", "r_id",
		"closest_school_id", "closest_hospital_id",
		"dist_work_norm", "dist_school_norm", "dist_hospital_norm",
		"employment", "income", "liquid", "tenure",
	}
	for k := 1; k <= maxClosest; k++ {
		header = append(header, fmt.Sprintf("closest_%d", k))
	}

	rows := make([][]string, 0, len(s.Households))
	for _, h := range s.Households {
		rid := ""
		if h.RelativeID != nil {
			rid = fmt.Sprintf("%d", *h.RelativeID)
		}
		originalBID := h.OriginalBID
		if originalBID == 0 {
			originalBID = h.BID
		}
		row := []string{
			fmt.Sprintf("%d", h.HID),
			fmt.Sprintf("%d", h.BID),
			fmt.Sprintf("%d", originalBID),
			fmt.Sprintf("%.4f", h.X),
			fmt.Sprintf("%.4f", h.Y),
			fmt.Sprintf("%d", h.JobID),
			rid,
			fmt.Sprintf("%d", h.ClosestSchoolID),
			fmt.Sprintf("%d", h.ClosestHospitalID),
			fmt.Sprintf("%.6f", h.DistWork),
			fmt.Sprintf("%.6f", h.DistSchool),
			fmt.Sprintf("%.6f", h.DistHospital),
			fmt.Sprintf("%d", h.Employment),
			fmt.Sprintf("%.3f", h.Income),
			fmt.Sprintf("%.3f", h.Liquidity),
			h.Tenure,
		}
		for k := 0; k < maxClosest; k++ {
			if k < len(h.ClosestBuildings) {
				row = append(row, fmt.Sprintf("%d", h.ClosestBuildings[k]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

func writeRecovery(t *scenario.RecoveryTable, path string) error {
	header := append([]string{"id", "land_use"}, t.Months...)

	ids := t.Buildings()
	sort.Ints(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		row := []string{fmt.Sprintf("%d", id), t.LandUse[id]}
		for _, m := range t.Months {
			row = append(row, fmt.Sprintf("%d", t.Functionality(id, m, 0)))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

func writeFacilities(fs []scenario.Facility, path string, withCapacity bool) error {
	header := []string{"id", "x", "y"}
	if withCapacity {
		header = append(header, "capacity")
	}
	rows := make([][]string, 0, len(fs))
	for _, f := range fs {
		row := []string{
			fmt.Sprintf("%d", f.ID),
			fmt.Sprintf("%.4f", f.X),
			fmt.Sprintf("%.4f", f.Y),
		}
		if withCapacity {
			row = append(row, fmt.Sprintf("%d", f.Capacity))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

func writeNewBuildings(nbs []scenario.NewBuilding, path string) error {
	maxAgents := 0
	for _, nb := range nbs {
		if len(nb.DiscoverableAgents) > maxAgents {
			maxAgents = len(nb.DiscoverableAgents)
		}
	}
	header := []string{
		"id", "x", "y", "land_use",
		"closest_school_id", "closest_hospital_id",
		"dist_school_norm", "dist_hospital_norm",
	}
	for k := 1; k <= maxAgents; k++ {
		header = append(header, fmt.Sprintf("closest_agent_%d", k))
	}

	rows := make([][]string, 0, len(nbs))
	for _, nb := range nbs {
		row := []string{
			fmt.Sprintf("%d", nb.ID),
			fmt.Sprintf("%.4f", nb.X),
			fmt.Sprintf("%.4f", nb.Y),
			nb.LandUse,
			fmt.Sprintf("%d", nb.ClosestSchoolID),
			fmt.Sprintf("%d", nb.ClosestHospitalID),
			fmt.Sprintf("%.6f", nb.DistSchool),
			fmt.Sprintf("%.6f", nb.DistHospital),
		}
		for k := 0; k < maxAgents; k++ {
			if k < len(nb.DiscoverableAgents) {
				row = append(row, fmt.Sprintf("%d", nb.DiscoverableAgents[k]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}

func writeNewJobs(njs []scenario.NewJob, path string) error {
	maxAgents := 0
	for _, nj := range njs {
		if len(nj.ClosestAgents) > maxAgents {
			maxAgents = len(nj.ClosestAgents)
		}
	}
	header := []string{"id", "x", "y", "land_use"}
	for k := 1; k <= maxAgents; k++ {
		header = append(header, fmt.Sprintf("closest_agent_%d", k))
	}

	rows := make([][]string, 0, len(njs))
	for _, nj := range njs {
		row := []string{
			fmt.Sprintf("%d", nj.ID),
			fmt.Sprintf("%.4f", nj.X),
			fmt.Sprintf("%.4f", nj.Y),
			nj.LandUse,
		}
		for k := 0; k < maxAgents; k++ {
			if k < len(nj.ClosestAgents) {
				row = append(row, fmt.Sprintf("%d", nj.ClosestAgents[k]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(path, header, rows)
}
