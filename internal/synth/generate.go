// Package synth generates synthetic city scenarios for testing and
// calibration runs. Damage is sampled from a simplex noise field so
// destruction clusters spatially the way a real windfield does, and
// recovery timing follows the local damage intensity.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// GenConfig holds scenario generation parameters.
type GenConfig struct {
	Households   int
	Buildings    int
	Shelters     int
	Schools      int
	Hospitals    int
	NewBuildings int
	NewJobs      int

	Months     int   // recovery timeline length
	StartYear  int   // first month label, e.g. 2013_11
	StartMonth int

	Seed     int64   // 0 = random
	Extent   float64 // city square side length
	Severity float64 // fraction of the noise field counted as damaged (0–1)
}

// DefaultGenConfig returns a mid-size city calibrated loosely on the
// Tacloban case: most of the stock damaged, two-year timeline.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Households:   2000,
		Buildings:    800,
		Shelters:     25,
		Schools:      12,
		Hospitals:    5,
		NewBuildings: 40,
		NewJobs:      30,
		Months:       24,
		StartYear:    2013,
		StartMonth:   11,
		Seed:         0,
		Extent:       100,
		Severity:     0.6,
	}
}

// SmallTestConfig returns a tiny scenario for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Households:   40,
		Buildings:    20,
		Shelters:     3,
		Schools:      2,
		Hospitals:    1,
		NewBuildings: 3,
		NewJobs:      3,
		Months:       8,
		StartYear:    2013,
		StartMonth:   11,
		Seed:         42,
		Extent:       20,
		Severity:     0.6,
	}
}

// ID ranges per entity class, so nothing collides across tables.
const (
	baseBuilding    = 1000
	baseSchool      = 2000
	baseHospital    = 3000
	baseShelter     = 4000
	baseNewBuilding = 5000
	baseNewJob      = 6000
)

// MonthLabels returns n consecutive YYYY_MM labels.
func MonthLabels(year, month, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("%04d_%02d", year, month)
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return out
}

type point struct {
	id   int
	x, y float64
}

// Generate creates a complete validated scenario.
func Generate(cfg GenConfig) (*scenario.Scenario, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	damage := opensimplex.NewNormalized(seed)
	repair := opensimplex.NewNormalized(seed + 1)

	months := MonthLabels(cfg.StartYear, cfg.StartMonth, cfg.Months)
	diag := cfg.Extent * math.Sqrt2

	place := func(n, base int) []point {
		pts := make([]point, n)
		for i := range pts {
			pts[i] = point{
				id: base + i + 1,
				x:  rng.Float64() * cfg.Extent,
				y:  rng.Float64() * cfg.Extent,
			}
		}
		return pts
	}

	buildings := place(cfg.Buildings, baseBuilding)
	schools := place(cfg.Schools, baseSchool)
	hospitals := place(cfg.Hospitals, baseHospital)
	shelters := place(cfg.Shelters, baseShelter)
	newBuildings := place(cfg.NewBuildings, baseNewBuilding)
	newJobs := place(cfg.NewJobs, baseNewJob)

	// Damage and recovery timing from the spatial field: heavier-hit
	// locations recover later.
	rec := scenario.NewRecoveryTable(months)
	fillRecovery := func(pts []point, landUse string) {
		for _, p := range pts {
			d := damage.Eval2(p.x/cfg.Extent*3, p.y/cfg.Extent*3)
			damaged := d < cfg.Severity
			repairStep := 0
			if damaged {
				intensity := 1 - d/cfg.Severity // 0 light, 1 total
				pace := repair.Eval2(p.x/cfg.Extent*5, p.y/cfg.Extent*5)
				repairStep = 1 + int((intensity*0.7+pace*0.3)*float64(cfg.Months))
			}
			rec.LandUse[p.id] = landUse
			for i, m := range months {
				rec.Set(p.id, m, !damaged || i+1 >= repairStep)
			}
		}
	}
	fillRecovery(buildings, "Residential")
	fillRecovery(schools, "School")
	fillRecovery(hospitals, "Hospital")

	nearest := func(x, y float64, pts []point) point {
		best := pts[0]
		bestD := math.Inf(1)
		for _, p := range pts {
			d := math.Hypot(p.x-x, p.y-y)
			if d < bestD || (d == bestD && p.id < best.id) {
				bestD = d
				best = p
			}
		}
		return best
	}
	norm := func(x1, y1, x2, y2 float64) float64 {
		return math.Min(1, math.Hypot(x2-x1, y2-y1)/diag)
	}

	households := make([]scenario.HouseholdRecord, cfg.Households)
	for i := range households {
		b := buildings[rng.Intn(len(buildings))]
		job := buildings[rng.Intn(len(buildings))]
		school := nearest(b.x, b.y, schools)
		hospital := nearest(b.x, b.y, hospitals)

		employment := 1
		if rng.Float64() < 0.15 {
			employment = 0
		}
		income, liquidity := 0.5, 0.5
		if rng.Float64() < 0.4 {
			income = 1.0
		}
		if rng.Float64() < 0.4 {
			liquidity = 1.0
		}
		tenure := scenario.TenureOwnership
		if rng.Float64() < 0.25 {
			tenure = scenario.TenureRental
		}

		households[i] = scenario.HouseholdRecord{
			HID:               i + 1,
			BID:               b.id,
			OriginalBID:       b.id,
			X:                 b.x,
			Y:                 b.y,
			JobID:             job.id,
			ClosestSchoolID:   school.id,
			ClosestHospitalID: hospital.id,
			DistWork:          norm(b.x, b.y, job.x, job.y),
			DistSchool:        norm(b.x, b.y, school.x, school.y),
			DistHospital:      norm(b.x, b.y, hospital.x, hospital.y),
			Employment:        employment,
			Income:            income,
			Liquidity:         liquidity,
			Tenure:            tenure,
			ClosestBuildings:  closestIDs(b.x, b.y, buildings, 10, b.id),
		}
	}
	// Half the population has a relative to fall back on.
	for i := range households {
		if rng.Float64() >= 0.5 {
			continue
		}
		r := rng.Intn(len(households)) + 1
		if r == households[i].HID {
			continue
		}
		rid := r
		households[i].RelativeID = &rid
	}

	// New construction activates over the second half of the timeline.
	newRec := scenario.NewRecoveryTable(months)
	activation := func() int {
		span := cfg.Months / 2
		if span < 1 {
			span = 1
		}
		return cfg.Months/2 + rng.Intn(span) + 1
	}
	nbFeed := make([]scenario.NewBuilding, len(newBuildings))
	for i, p := range newBuildings {
		school := nearest(p.x, p.y, schools)
		hospital := nearest(p.x, p.y, hospitals)
		act := activation()
		newRec.LandUse[p.id] = "Residential"
		for j, m := range months {
			newRec.Set(p.id, m, j+1 >= act)
		}
		nbFeed[i] = scenario.NewBuilding{
			ID:                 p.id,
			X:                  p.x,
			Y:                  p.y,
			LandUse:            "Residential",
			ClosestSchoolID:    school.id,
			ClosestHospitalID:  hospital.id,
			DistSchool:         norm(p.x, p.y, school.x, school.y),
			DistHospital:       norm(p.x, p.y, hospital.x, hospital.y),
			DiscoverableAgents: closestHouseholds(p.x, p.y, households, 10),
		}
	}
	njFeed := make([]scenario.NewJob, len(newJobs))
	for i, p := range newJobs {
		act := activation()
		newRec.LandUse[p.id] = "Commercial"
		for j, m := range months {
			newRec.Set(p.id, m, j+1 >= act)
		}
		njFeed[i] = scenario.NewJob{
			ID:            p.id,
			X:             p.x,
			Y:             p.y,
			LandUse:       "Commercial",
			ClosestAgents: closestHouseholds(p.x, p.y, households, 10),
		}
	}

	shelterTable := make([]scenario.Facility, len(shelters))
	for i, p := range shelters {
		shelterTable[i] = scenario.Facility{ID: p.id, X: p.x, Y: p.y, Capacity: 2 + rng.Intn(4)}
	}

	s := &scenario.Scenario{
		Households:   households,
		Recovery:     rec,
		Shelters:     shelterTable,
		Schools:      facilityTable(schools),
		Hospitals:    facilityTable(hospitals),
		NewBuildings: nbFeed,
		NewJobs:      njFeed,
		NewRecovery:  newRec,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("generated scenario invalid: %w", err)
	}
	return s, nil
}

func facilityTable(pts []point) []scenario.Facility {
	out := make([]scenario.Facility, len(pts))
	for i, p := range pts {
		out[i] = scenario.Facility{ID: p.id, X: p.x, Y: p.y}
	}
	return out
}

func closestIDs(x, y float64, pts []point, n, exclude int) []int {
	type cand struct {
		id   int
		dist float64
	}
	cands := make([]cand, 0, len(pts))
	for _, p := range pts {
		if p.id == exclude {
			continue
		}
		cands = append(cands, cand{p.id, math.Hypot(p.x-x, p.y-y)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].id
	}
	return out
}

func closestHouseholds(x, y float64, households []scenario.HouseholdRecord, n int) []int {
	type cand struct {
		id   int
		dist float64
	}
	cands := make([]cand, 0, len(households))
	for _, h := range households {
		cands = append(cands, cand{h.HID, math.Hypot(h.X-x, h.Y-y)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].id
	}
	return out
}
