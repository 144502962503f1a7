package household

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umutlagap/DRT-PRR/internal/config"
	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

// fakeEnv is a hand-set functionality snapshot.
type fakeEnv struct {
	buildings    map[int]bool
	newBuildings map[int]bool
	services     map[int]float64
}

func (e *fakeEnv) BuildingFunctional(bID int) bool    { return e.buildings[bID] }
func (e *fakeEnv) NewBuildingFunctional(bID int) bool { return e.newBuildings[bID] }
func (e *fakeEnv) JobFunctional(jID int) bool         { return e.buildings[jID] }
func (e *fakeEnv) ServiceFunctionality(kind ServiceKind, id int) float64 {
	if v, ok := e.services[id]; ok {
		return v
	}
	return 1.0
}

func intactEnv() *fakeEnv {
	return &fakeEnv{
		buildings:    map[int]bool{10: true, 20: true},
		newBuildings: map[int]bool{},
		services:     map[int]float64{},
	}
}

func testRecord() scenario.HouseholdRecord {
	return scenario.HouseholdRecord{
		HID: 1, BID: 10, JobID: 20,
		ClosestSchoolID: 30, ClosestHospitalID: 40,
		DistWork: 0.2, DistSchool: 0.1, DistHospital: 0.3,
		Employment: 1, Income: 1.0, Liquidity: 1.0,
		Tenure: scenario.TenureOwnership,
	}
}

func TestSatisfactionIsProductOfSubScores(t *testing.T) {
	cfg := config.Default()
	h := New(testRecord())

	s := Satisfaction(intactEnv(), h, false, cfg)

	assert.Equal(t, 1.0, s.Housing)
	assert.InDelta(t, 0.8, s.Work, 1e-9)
	assert.InDelta(t, 0.7, s.Hospital, 1e-9)
	assert.InDelta(t, 0.9, s.School, 1e-9)
	assert.InDelta(t, 1.0*0.8*0.7*0.9, s.Composite, 1e-9)
}

func TestSatisfactionZeroWhenHomeDown(t *testing.T) {
	cfg := config.Default()
	h := New(testRecord())
	env := intactEnv()
	env.buildings[10] = false

	s := Satisfaction(env, h, false, cfg)
	assert.Zero(t, s.Housing)
	assert.Zero(t, s.Composite)
}

func TestSatisfactionZeroWorkWhenJobDownOrUnemployed(t *testing.T) {
	cfg := config.Default()
	env := intactEnv()

	h := New(testRecord())
	env.buildings[20] = false
	assert.Zero(t, Satisfaction(env, h, false, cfg).Work)

	env.buildings[20] = true
	rec := testRecord()
	rec.Employment = 0
	h = New(rec)
	assert.Zero(t, Satisfaction(env, h, false, cfg).Work)
}

func TestSatisfactionDegradedServiceFloor(t *testing.T) {
	cfg := config.Default()
	h := New(testRecord())
	env := intactEnv()
	env.services[30] = cfg.MinServiceFunctionality
	env.services[40] = cfg.MinServiceFunctionality

	s := Satisfaction(env, h, false, cfg)
	assert.InDelta(t, 0.9*0.5, s.School, 1e-9)
	assert.InDelta(t, 0.7*0.5, s.Hospital, 1e-9)
	assert.Greater(t, s.Composite, 0.0, "damaged services degrade, never zero out")
}

func TestSatisfactionStaysInUnitInterval(t *testing.T) {
	cfg := config.Default()
	rec := testRecord()
	rec.DistWork, rec.DistSchool, rec.DistHospital = 0, 0, 0
	h := New(rec)

	s := Satisfaction(intactEnv(), h, false, cfg)
	assert.LessOrEqual(t, s.Composite, 1.0)
	assert.GreaterOrEqual(t, s.Composite, 0.0)
}

func TestSatisfactionNewBuildingHousing(t *testing.T) {
	cfg := config.Default()
	h := New(testRecord())
	env := intactEnv()
	env.buildings[10] = false

	h.Status = StatusNewBuilding
	h.BID = 5001
	env.newBuildings[5001] = true

	s := Satisfaction(env, h, false, cfg)
	assert.Equal(t, 1.0, s.Housing, "new-building residents use the activation table")

	// The at-home view still scores the original (down) building.
	atHome := Satisfaction(env, h, true, cfg)
	assert.Zero(t, atHome.Housing)
}

func TestUpdateEconomicStatusFollowsWorkplace(t *testing.T) {
	cfg := config.Default()
	env := intactEnv()
	h := New(testRecord())

	env.buildings[20] = false
	h.UpdateEconomicStatus(env, func(int) (float64, bool) { return 0, false }, cfg)
	assert.Zero(t, h.Employment)
	assert.Equal(t, cfg.IncomeLow, h.Income)

	env.buildings[20] = true
	h.UpdateEconomicStatus(env, func(int) (float64, bool) { return 0, false }, cfg)
	assert.Equal(t, 1, h.Employment)
	assert.Equal(t, 1.0, h.Income)
}
