// Package config holds the immutable run configuration for the recovery
// simulation. Defaults reproduce the Typhoon Haiyan calibration; a YAML
// override file can replace any subset of parameters for scenario studies.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is threaded explicitly into every component. It is treated as
// immutable once the model is constructed.
type Config struct {
	// SatisfactionThreshold gates relocation-seeking: agents with
	// S < threshold look for a better situation.
	SatisfactionThreshold float64 `yaml:"satisfaction_threshold"`

	// TargetStochasticity is the target cumulative fraction of decisions
	// where a random override replaces the deterministic outcome.
	TargetStochasticity float64 `yaml:"target_stochasticity"`

	// StochasticTolerance is the allowed per-category drift around the
	// target before overrides are suppressed (and a warning is logged).
	StochasticTolerance float64 `yaml:"stochastic_tolerance"`

	// RentalEconomicThreshold is the minimum economic score
	// (employment x income x liquidity) to afford a rental unit.
	RentalEconomicThreshold float64 `yaml:"rental_economic_threshold"`

	// Income and liquidity tiers.
	IncomeHigh    float64 `yaml:"income_high"`
	IncomeLow     float64 `yaml:"income_low"`
	LiquidityHigh float64 `yaml:"liquidity_high"`
	LiquidityLow  float64 `yaml:"liquidity_low"`

	// MinServiceFunctionality is what a damaged school/hospital still
	// contributes to its condition term (damaged services retain some value).
	MinServiceFunctionality float64 `yaml:"min_service_functionality"`

	// MonthsBeforeLeaveCity is the consecutive-low-satisfaction count that
	// forces a departure from the city.
	MonthsBeforeLeaveCity int `yaml:"months_before_leave_city"`

	// DefaultShelterCapacity is used when the shelter table has no
	// capacity column (households per shelter).
	DefaultShelterCapacity int `yaml:"default_shelter_capacity"`

	// ShelterActivationSchedule maps simulation step -> fraction of total
	// shelter capacity that is active. Steps beyond the last key use the
	// last key's value.
	ShelterActivationSchedule map[int]float64 `yaml:"shelter_activation_schedule"`

	// EvacuationLimits caps city departures per step. Steps beyond the
	// last key are unlimited.
	EvacuationLimits map[int]int `yaml:"evacuation_limits"`

	// Social network layer sizes.
	SpatialPeers   int `yaml:"spatial_peers"`
	WorkplacePeers int `yaml:"workplace_peers"`
	EconomicPeers  int `yaml:"economic_peers"`

	// ClosestBuildings is the length of each household's precomputed
	// nearest-building list.
	ClosestBuildings int `yaml:"closest_buildings"`

	// JobProximityAgents is how many nearest agents discover a new job
	// posting directly.
	JobProximityAgents int `yaml:"job_proximity_agents"`

	// DecisionWeightRanges shapes the relative share of the stochasticity
	// budget per decision category. Drawn once per run with the run seed
	// and scaled so the shares sum to TargetStochasticity.
	DecisionWeightRanges map[string][2]float64 `yaml:"decision_weight_ranges"`
}

// Default returns the baseline Haiyan-calibrated configuration.
func Default() Config {
	return Config{
		SatisfactionThreshold:   0.5,
		TargetStochasticity:     0.10,
		StochasticTolerance:     0.02,
		RentalEconomicThreshold: 0.5,
		IncomeHigh:              1.0,
		IncomeLow:               0.5,
		LiquidityHigh:           1.0,
		LiquidityLow:            0.5,
		MinServiceFunctionality: 0.5,
		MonthsBeforeLeaveCity:   6,
		DefaultShelterCapacity:  2,
		ShelterActivationSchedule: map[int]float64{
			1: 0.20, // Nov 2013: 20% of capacity stood up
			2: 0.57, // Dec 2013: 57% by early January
			3: 1.00,
		},
		EvacuationLimits: map[int]int{
			1: 4000,
			2: 16000,
		},
		SpatialPeers:       3,
		WorkplacePeers:     3,
		EconomicPeers:      3,
		ClosestBuildings:   10,
		JobProximityAgents: 10,
		DecisionWeightRanges: map[string][2]float64{
			"initial_move":  {0.5, 1.5},
			"job_market":    {0.5, 1.5},
			"return_timing": {0.5, 1.5},
			"leave_city":    {0.5, 1.5},
		},
	}
}

// Load returns Default overlaid with values from a YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the model cannot run with.
func (c Config) Validate() error {
	if c.SatisfactionThreshold < 0 || c.SatisfactionThreshold > 1 {
		return fmt.Errorf("invalid config: satisfaction_threshold %.3f outside [0,1]", c.SatisfactionThreshold)
	}
	if c.TargetStochasticity < 0 || c.TargetStochasticity > 1 {
		return fmt.Errorf("invalid config: target_stochasticity %.3f outside [0,1]", c.TargetStochasticity)
	}
	if c.MonthsBeforeLeaveCity < 1 {
		return fmt.Errorf("invalid config: months_before_leave_city must be >= 1")
	}
	if c.DefaultShelterCapacity < 1 {
		return fmt.Errorf("invalid config: default_shelter_capacity must be >= 1")
	}
	if len(c.ShelterActivationSchedule) == 0 {
		return fmt.Errorf("invalid config: empty shelter_activation_schedule")
	}
	for step, frac := range c.ShelterActivationSchedule {
		if frac < 0 || frac > 1 {
			return fmt.Errorf("invalid config: shelter activation %.3f at step %d outside [0,1]", frac, step)
		}
	}
	return nil
}

// ShelterActivation returns the active capacity fraction for a step.
// Steps past the end of the schedule hold the last scheduled value.
func (c Config) ShelterActivation(step int) float64 {
	if frac, ok := c.ShelterActivationSchedule[step]; ok {
		return frac
	}
	maxStep := 0
	for s := range c.ShelterActivationSchedule {
		if s > maxStep {
			maxStep = s
		}
	}
	return c.ShelterActivationSchedule[maxStep]
}

// EvacuationLimit returns the departure cap for a step. Steps beyond the
// configured schedule are uncapped.
func (c Config) EvacuationLimit(step int) int {
	if limit, ok := c.EvacuationLimits[step]; ok {
		return limit
	}
	return math.MaxInt
}
