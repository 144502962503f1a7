package synth

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umutlagap/DRT-PRR/internal/scenario"
)

func TestMonthLabelsRollOverYears(t *testing.T) {
	labels := MonthLabels(2013, 11, 4)
	assert.Equal(t, []string{"2013_11", "2013_12", "2014_01", "2014_02"}, labels)
}

func TestGenerateProducesValidScenario(t *testing.T) {
	s, err := Generate(SmallTestConfig())
	require.NoError(t, err)

	assert.Len(t, s.Households, 40)
	assert.Len(t, s.Recovery.Months, 8)
	assert.Len(t, s.Shelters, 3)
	assert.Len(t, s.NewBuildings, 3)
	assert.Len(t, s.NewJobs, 3)
	require.NotNil(t, s.NewRecovery)

	// Validate already ran inside Generate; spot-check the contract anyway.
	require.NoError(t, s.Validate())
	for _, h := range s.Households {
		assert.GreaterOrEqual(t, h.DistWork, 0.0)
		assert.LessOrEqual(t, h.DistWork, 1.0)
		assert.Len(t, h.ClosestBuildings, 10)
	}
	for _, nb := range s.NewBuildings {
		assert.Len(t, nb.DiscoverableAgents, 10)
	}
}

func TestGenerateIsSeedDeterministic(t *testing.T) {
	a, err := Generate(SmallTestConfig())
	require.NoError(t, err)
	b, err := Generate(SmallTestConfig())
	require.NoError(t, err)

	opts := cmpopts.IgnoreUnexported(scenario.RecoveryTable{})
	if diff := cmp.Diff(a, b, opts); diff != "" {
		t.Fatalf("same seed produced different scenarios (-a +b):\n%s", diff)
	}
	for _, id := range a.Recovery.Buildings() {
		for _, m := range a.Recovery.Months {
			assert.Equal(t,
				a.Recovery.Functionality(id, m, 0),
				b.Recovery.Functionality(id, m, 0))
		}
	}
}

func TestBundleRoundTrip(t *testing.T) {
	gen := SmallTestConfig()
	s, err := Generate(gen)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteBundle(s, dir))

	loaded, err := scenario.Load(dir)
	require.NoError(t, err)

	assert.Len(t, loaded.Households, len(s.Households))
	assert.Equal(t, s.Recovery.Months, loaded.Recovery.Months)
	assert.Len(t, loaded.NewBuildings, len(s.NewBuildings))
	assert.Len(t, loaded.NewJobs, len(s.NewJobs))

	// Functionality survives the round trip.
	for _, id := range s.Recovery.Buildings() {
		for _, m := range s.Recovery.Months {
			assert.Equal(t,
				s.Recovery.Functionality(id, m, 1),
				loaded.Recovery.Functionality(id, m, 1),
				"building %d month %s", id, m)
		}
	}

	// Household fields survive too.
	byID := make(map[int]scenario.HouseholdRecord)
	for _, h := range loaded.Households {
		byID[h.HID] = h
	}
	for _, want := range s.Households {
		got, ok := byID[want.HID]
		require.True(t, ok)
		assert.Equal(t, want.BID, got.BID)
		assert.Equal(t, want.Tenure, got.Tenure)
		assert.Equal(t, want.ClosestBuildings, got.ClosestBuildings)
		assert.InDelta(t, want.DistWork, got.DistWork, 1e-5)
	}
}
