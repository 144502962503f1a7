package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func minimalBundle(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, FileHouseholds,
		"h_id,b_id,x,y,j_id,r_id,closest_school_id,closest_hospital_id,dist_work_norm,dist_school_norm,dist_hospital_norm,employment,income,liquid,tenure,closest_1,closest_2\n"+
			"1,10,0.0,0.0,20,2,30,40,0.2,0.1,0.3,1,1.0,1.0,Ownership,11,12\n"+
			"2,11,5.0,0.0,20,,30,40,0.4,0.2,0.2,0,0.5,0.5,Rental,10,12\n")
	writeFile(t, dir, FileRecovery,
		"id,land_use,2013_11,2013_12\n"+
			"10,Residential,0,1\n"+
			"11,Residential,1,1\n")
	writeFile(t, dir, FileShelters, "id,x,y,capacity\n50,1.0,1.0,4\n")
	writeFile(t, dir, FileSchools, "id,x,y\n30,2.0,2.0\n")
	writeFile(t, dir, FileHospitals, "id,x,y\n40,3.0,3.0\n")
	return dir
}

func TestLoadMinimalBundle(t *testing.T) {
	s, err := Load(minimalBundle(t))
	require.NoError(t, err)

	require.Len(t, s.Households, 2)
	h := s.Households[0]
	assert.Equal(t, 1, h.HID)
	assert.Equal(t, 10, h.BID)
	require.NotNil(t, h.RelativeID)
	assert.Equal(t, 2, *h.RelativeID)
	assert.Equal(t, []int{11, 12}, h.ClosestBuildings)

	assert.Nil(t, s.Households[1].RelativeID)
	assert.Equal(t, TenureRental, s.Households[1].Tenure)

	assert.Equal(t, []string{"2013_11", "2013_12"}, s.Recovery.Months)
	assert.Equal(t, 0, s.Recovery.Functionality(10, "2013_11", 1))
	assert.Equal(t, 1, s.Recovery.Functionality(10, "2013_12", 1))
	// Buildings absent from the table are assumed undamaged.
	assert.Equal(t, 1, s.Recovery.Functionality(999, "2013_11", 1))

	require.Len(t, s.Shelters, 1)
	assert.Equal(t, 4, s.Shelters[0].Capacity)
}

func TestLoadOptionalFieldsDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileHouseholds,
		"h_id,b_id,x,y,j_id,closest_school_id,closest_hospital_id\n"+
			"1,10,0.0,0.0,20,30,40\n")
	writeFile(t, dir, FileRecovery, "id,2013_11\n10,1\n")
	writeFile(t, dir, FileShelters, "id,x,y\n50,1.0,1.0\n")
	writeFile(t, dir, FileSchools, "id,x,y\n30,2.0,2.0\n")
	writeFile(t, dir, FileHospitals, "id,x,y\n40,3.0,3.0\n")

	s, err := Load(dir)
	require.NoError(t, err)

	h := s.Households[0]
	assert.Equal(t, 10, h.OriginalBID, "absent original_b_id falls back to b_id")
	assert.Equal(t, 1, h.Employment)
	assert.Equal(t, 1.0, h.Income)
	assert.Equal(t, 1.0, h.Liquidity)
	assert.Equal(t, TenureOwnership, h.Tenure)
	// Missing distances carry the maximal penalty.
	assert.Equal(t, 1.0, h.DistWork)
	assert.Equal(t, 1.0, h.DistSchool)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	dir := minimalBundle(t)
	writeFile(t, dir, FileHouseholds,
		"h_id,x,y,j_id,closest_school_id,closest_hospital_id\n"+
			"1,0.0,0.0,20,30,40\n")

	_, err := Load(dir)
	require.Error(t, err)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "b_id")
}

func TestLoadRejectsNonBinaryFunctionality(t *testing.T) {
	dir := minimalBundle(t)
	writeFile(t, dir, FileRecovery, "id,2013_11\n10,2\n")

	_, err := Load(dir)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "not binary")
}

func TestValidateRejectsDuplicateHouseholds(t *testing.T) {
	s := &Scenario{
		Households: []HouseholdRecord{
			{HID: 1, Tenure: TenureOwnership},
			{HID: 1, Tenure: TenureOwnership},
		},
		Recovery: NewRecoveryTable([]string{"2013_11"}),
	}
	err := s.Validate()
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "duplicate")
}

func TestValidateRejectsDanglingRelative(t *testing.T) {
	rid := 99
	s := &Scenario{
		Households: []HouseholdRecord{
			{HID: 1, RelativeID: &rid, Tenure: TenureOwnership},
		},
		Recovery: NewRecoveryTable([]string{"2013_11"}),
	}
	err := s.Validate()
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "relative")
}

func TestValidateRejectsOutOfRangeDistance(t *testing.T) {
	s := &Scenario{
		Households: []HouseholdRecord{
			{HID: 1, DistWork: 1.5, Tenure: TenureOwnership},
		},
		Recovery: NewRecoveryTable([]string{"2013_11"}),
	}
	err := s.Validate()
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "outside [0,1]")
}

func TestValidateRequiresActivationTimelineForFeeds(t *testing.T) {
	s := &Scenario{
		Households: []HouseholdRecord{{HID: 1, Tenure: TenureOwnership}},
		Recovery:   NewRecoveryTable([]string{"2013_11"}),
		NewJobs:    []NewJob{{ID: 6001}},
	}
	err := s.Validate()
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "activation timeline")
}
