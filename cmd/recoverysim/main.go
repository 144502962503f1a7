// Command recoverysim runs the post-disaster household relocation and
// return simulation: single runs, multi-run experiments, synthetic
// scenario generation, and result export.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/umutlagap/DRT-PRR/internal/config"
	"github.com/umutlagap/DRT-PRR/internal/engine"
	"github.com/umutlagap/DRT-PRR/internal/persistence"
	"github.com/umutlagap/DRT-PRR/internal/scenario"
	"github.com/umutlagap/DRT-PRR/internal/synth"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "recoverysim",
		Short:         "Agent-based post-disaster recovery and relocation simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config overriding the baseline calibration")

	loadConfig := func() (config.Config, error) {
		if configPath == "" {
			return config.Default(), nil
		}
		return config.Load(configPath)
	}

	root.AddCommand(newRunCmd(loadConfig))
	root.AddCommand(newMultiRunCmd(loadConfig))
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newExportCmd())
	return root
}

func newRunCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var (
		scenarioDir string
		dbPath      string
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation over a scenario's recovery timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			scen, err := scenario.Load(scenarioDir)
			if err != nil {
				return err
			}

			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runID, sum, err := runOnce(scen, cfg, seed, db)
			if err != nil {
				return err
			}

			fmt.Printf("\nRun %s complete: %s households over %d months (final %s)\n",
				runID, humanize.Comma(int64(sum.Agents)), sum.Steps, sum.FinalMonth)
			for status, n := range sum.StatusDistribution {
				fmt.Printf("  %-14s %s\n", status, humanize.Comma(int64(n)))
			}
			fmt.Printf("  departures %s, returns %s, realized override rate %.3f (target %.3f)\n",
				humanize.Comma(int64(sum.Departures)), humanize.Comma(int64(sum.Returns)),
				sum.Stochasticity.Rate, sum.Stochasticity.Target)
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioDir, "scenario", "data/scenario", "scenario bundle directory")
	cmd.Flags().StringVar(&dbPath, "db", "data/results.db", "results database path")
	cmd.Flags().Int64Var(&seed, "seed", 42, "run seed")
	return cmd
}

func runOnce(scen *scenario.Scenario, cfg config.Config, seed int64, db *persistence.DB) (string, engine.Summary, error) {
	model, err := engine.New(scen, cfg, seed)
	if err != nil {
		return "", engine.Summary{}, err
	}

	runID, err := db.BeginRun(seed, len(model.Households()))
	if err != nil {
		return "", engine.Summary{}, err
	}

	start := time.Now()
	if err := model.Run(); err != nil {
		return "", engine.Summary{}, err
	}
	slog.Info("run finished", "run_id", runID, "seed", seed, "elapsed", time.Since(start))

	if err := db.SaveRecords(runID, model.Records()); err != nil {
		return "", engine.Summary{}, fmt.Errorf("save records: %w", err)
	}
	sum := model.Summarize()
	if err := db.FinishRun(runID, sum); err != nil {
		return "", engine.Summary{}, fmt.Errorf("finish run: %w", err)
	}
	return runID, sum, nil
}

func newMultiRunCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var (
		scenarioDir string
		dbPath      string
		baseSeed    int64
		runs        int
	)

	cmd := &cobra.Command{
		Use:   "multirun",
		Short: "Run the same scenario under consecutive seeds and aggregate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			scen, err := scenario.Load(scenarioDir)
			if err != nil {
				return err
			}

			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runIDs := make([]string, 0, runs)
			for i := 0; i < runs; i++ {
				seed := baseSeed + int64(i)
				runID, _, err := runOnce(scen, cfg, seed, db)
				if err != nil {
					return fmt.Errorf("run %d (seed %d): %w", i+1, seed, err)
				}
				runIDs = append(runIDs, runID)
			}

			aggs, err := db.Aggregate(runIDs)
			if err != nil {
				return err
			}
			fmt.Printf("\nMean satisfaction across %d runs:\n", runs)
			for _, a := range aggs {
				fmt.Printf("  %s  mean %.4f  std %.4f\n", a.Month, a.MeanSat, a.StdSat)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioDir, "scenario", "data/scenario", "scenario bundle directory")
	cmd.Flags().StringVar(&dbPath, "db", "data/results.db", "results database path")
	cmd.Flags().Int64Var(&baseSeed, "seed", 42, "base seed; run i uses seed+i")
	cmd.Flags().IntVar(&runs, "runs", 10, "number of runs")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		outDir     string
		seed       int64
		households int
		months     int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic scenario bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := synth.DefaultGenConfig()
			gen.Seed = seed
			if households > 0 {
				gen.Households = households
			}
			if months > 0 {
				gen.Months = months
			}

			scen, err := synth.Generate(gen)
			if err != nil {
				return err
			}
			if err := synth.WriteBundle(scen, outDir); err != nil {
				return err
			}

			slog.Info("scenario generated",
				"dir", outDir,
				"households", humanize.Comma(int64(len(scen.Households))),
				"months", len(scen.Recovery.Months),
				"new_buildings", len(scen.NewBuildings),
				"new_jobs", len(scen.NewJobs),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "data/scenario", "output directory")
	cmd.Flags().Int64Var(&seed, "seed", 0, "generation seed (0 = random)")
	cmd.Flags().IntVar(&households, "households", 0, "household count override")
	cmd.Flags().IntVar(&months, "months", 0, "timeline length override")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		dbPath  string
		runID   string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a run's longitudinal records as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := db.ExportCSV(runID, f); err != nil {
				return err
			}
			slog.Info("records exported", "run_id", runID, "path", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "data/results.db", "results database path")
	cmd.Flags().StringVar(&runID, "run", "", "run identifier")
	cmd.Flags().StringVar(&outPath, "out", "records.csv", "output CSV path")
	cmd.MarkFlagRequired("run")
	return cmd
}
