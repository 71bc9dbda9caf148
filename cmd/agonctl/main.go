package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"agon/internal/model"
	"agon/pkg/agon"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agonctl",
		Short: "Battle-royale evolution sessions from the command line",
		Long: `agonctl runs genetic battle-royale simulations as sessions.

It evolves a population of agents through generations of arena battles,
tracks cooperation statistics, persists finished sessions and exports
their artifacts.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("store", "memory", "Persistence backend: memory or sqlite")
	rootCmd.PersistentFlags().String("db-path", "agon.db", "SQLite database file")
	rootCmd.PersistentFlags().String("artifacts-dir", "sessions", "Directory for per-session artifacts")
	rootCmd.PersistentFlags().String("exports-dir", "exports", "Default destination for exports")
	rootCmd.PersistentFlags().String("presets-file", "", "YAML preset file merged over the builtins")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newWatchCmd(),
		newStepCmd(),
		newSessionsCmd(),
		newHistoryCmd(),
		newExportCmd(),
		newPresetsCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "agonctl version %s\n", version)
			}
		},
	}
}

// clientFromCmd builds the API client from the global flags.
func clientFromCmd(cmd *cobra.Command) (*agon.Client, error) {
	storeKind, _ := cmd.Flags().GetString("store")
	dbPath, _ := cmd.Flags().GetString("db-path")
	artifactsDir, _ := cmd.Flags().GetString("artifacts-dir")
	exportsDir, _ := cmd.Flags().GetString("exports-dir")
	presetsFile, _ := cmd.Flags().GetString("presets-file")
	levelName, _ := cmd.Flags().GetString("log-level")

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(cmd.ErrOrStderr())

	return agon.New(agon.Options{
		StoreKind:    storeKind,
		DBPath:       dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
		PresetFile:   presetsFile,
		Logger:       log,
	})
}

// addConfigFlags registers the simulation parameter flags shared by run,
// watch and step. Only flags the user actually set end up in the patch.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", "Start from a named preset")
	cmd.Flags().Int("width", 0, "World width")
	cmd.Flags().Int("height", 0, "World height")
	cmd.Flags().Int("population", 0, "Population size")
	cmd.Flags().Int("max-generations", 0, "Generation cap")
	cmd.Flags().Int("battles", 0, "Battle rounds per generation")
	cmd.Flags().Float64("mutation-rate", 0, "Mutation probability per gene")
	cmd.Flags().Float64("mutation-strength", 0, "Mutation step size")
	cmd.Flags().Float64("elite-ratio", 0, "Fraction of elites carried over unchanged")
	cmd.Flags().String("selection", "", "Selection method: tournament, roulette or rank")
	cmd.Flags().String("crossover", "", "Crossover method: uniform, one_point or two_point")
	cmd.Flags().Int64("seed", 0, "Random seed (0 seeds from the clock)")
}

func patchFromFlags(cmd *cobra.Command) (model.ConfigPatch, error) {
	var patch model.ConfigPatch
	flags := cmd.Flags()

	if flags.Changed("width") {
		v, _ := flags.GetInt("width")
		patch.WorldWidth = &v
	}
	if flags.Changed("height") {
		v, _ := flags.GetInt("height")
		patch.WorldHeight = &v
	}
	if flags.Changed("population") {
		v, _ := flags.GetInt("population")
		patch.PopulationSize = &v
	}
	if flags.Changed("max-generations") {
		v, _ := flags.GetInt("max-generations")
		patch.MaxGenerations = &v
	}
	if flags.Changed("battles") {
		v, _ := flags.GetInt("battles")
		patch.BattlesPerGeneration = &v
	}
	if flags.Changed("mutation-rate") {
		v, _ := flags.GetFloat64("mutation-rate")
		patch.MutationRate = &v
	}
	if flags.Changed("mutation-strength") {
		v, _ := flags.GetFloat64("mutation-strength")
		patch.MutationStrength = &v
	}
	if flags.Changed("elite-ratio") {
		v, _ := flags.GetFloat64("elite-ratio")
		patch.EliteRatio = &v
	}
	if flags.Changed("selection") {
		name, _ := flags.GetString("selection")
		method, err := parseSelection(name)
		if err != nil {
			return model.ConfigPatch{}, err
		}
		patch.Selection = &method
	}
	if flags.Changed("crossover") {
		name, _ := flags.GetString("crossover")
		method, err := parseCrossover(name)
		if err != nil {
			return model.ConfigPatch{}, err
		}
		patch.Crossover = &method
	}
	if flags.Changed("seed") {
		v, _ := flags.GetInt64("seed")
		patch.Seed = &v
	}
	return patch, nil
}

func parseSelection(name string) (model.SelectionMethod, error) {
	switch method := model.SelectionMethod(name); method {
	case model.SelectionTournament, model.SelectionRoulette, model.SelectionRank:
		return method, nil
	}
	return "", fmt.Errorf("unsupported selection method: %s", name)
}

func parseCrossover(name string) (model.CrossoverMethod, error) {
	switch method := model.CrossoverMethod(name); method {
	case model.CrossoverUniform, model.CrossoverOnePoint, model.CrossoverTwoPoint:
		return method, nil
	}
	return "", fmt.Errorf("unsupported crossover method: %s", name)
}

func printJSON(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
