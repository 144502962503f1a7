package persistence

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umutlagap/DRT-PRR/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecords(sat float64) []engine.Record {
	return []engine.Record{
		{HID: 1, Step: 1, Month: "2013_11", Status: "seeking", Satisfaction: sat, BID: 10, Employment: 1, Income: 1.0, EconomicScore: 1.0, X: 1, Y: 2},
		{HID: 2, Step: 1, Month: "2013_11", Status: "stable", Satisfaction: sat + 0.2, BID: 11, Employment: 1, Income: 0.5, EconomicScore: 0.5, X: 3, Y: 4},
		{HID: 1, Step: 2, Month: "2013_12", Status: "shelter", Satisfaction: sat, BID: 10, Employment: 0, Income: 0.5, EconomicScore: 0, X: 5, Y: 6},
		{HID: 2, Step: 2, Month: "2013_12", Status: "stable", Satisfaction: sat + 0.2, BID: 11, Employment: 1, Income: 0.5, EconomicScore: 0.5, X: 3, Y: 4},
	}
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.BeginRun(42, 2)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, db.SaveRecords(runID, sampleRecords(0.3)))
	require.NoError(t, db.FinishRun(runID, engine.Summary{
		Agents: 2, Steps: 2, FinalMonth: "2013_12", Departures: 1, Returns: 0,
	}))

	counts, err := db.StatusByMonth(runID)
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{Month: "2013_11", Status: "seeking", Count: 1},
		{Month: "2013_11", Status: "stable", Count: 1},
		{Month: "2013_12", Status: "shelter", Count: 1},
		{Month: "2013_12", Status: "stable", Count: 1},
	}, counts)
}

func TestExportCSV(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.BeginRun(1, 2)
	require.NoError(t, err)
	require.NoError(t, db.SaveRecords(runID, sampleRecords(0.25)))

	var buf bytes.Buffer
	require.NoError(t, db.ExportCSV(runID, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5) // header + 4 records
	assert.Equal(t,
		"h_id,step,month,status,satisfaction,b_id,employment,income,economic_score,x,y",
		lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,1,2013_11,seeking,0.250000"))
}

func TestSaveRecordsEmptyIsNoop(t *testing.T) {
	db := openTestDB(t)
	runID, err := db.BeginRun(1, 0)
	require.NoError(t, err)
	require.NoError(t, db.SaveRecords(runID, nil))

	counts, err := db.StatusByMonth(runID)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestAggregateAcrossRuns(t *testing.T) {
	db := openTestDB(t)

	var runIDs []string
	for _, sat := range []float64{0.2, 0.4} {
		runID, err := db.BeginRun(7, 2)
		require.NoError(t, err)
		require.NoError(t, db.SaveRecords(runID, sampleRecords(sat)))
		runIDs = append(runIDs, runID)
	}

	aggs, err := db.Aggregate(runIDs)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	// Per-run mean satisfaction in 2013_11 is sat+0.1, so the cross-run
	// mean is 0.4 and the population std is 0.1.
	first := aggs[0]
	assert.Equal(t, "2013_11", first.Month)
	assert.Equal(t, 2, first.Runs)
	assert.InDelta(t, 0.4, first.MeanSat, 1e-9)
	assert.InDelta(t, 0.1, first.StdSat, 1e-9)
}

func TestAggregateNoRuns(t *testing.T) {
	db := openTestDB(t)
	aggs, err := db.Aggregate(nil)
	require.NoError(t, err)
	assert.Nil(t, aggs)
}
