package config

import "agon/internal/model"

// Reserved preset names. PresetCustom marks a hand-edited configuration and
// is never stored; applying it keeps the current values.
const (
	PresetCustom  = "custom"
	PresetDefault = "default"
)

// DefaultConfig is the configuration a fresh session starts from.
func DefaultConfig() model.Config {
	return model.Config{
		WorldWidth:           80,
		WorldHeight:          60,
		PopulationSize:       40,
		MaxGenerations:       100,
		BattlesPerGeneration: 10,
		MutationRate:         0.10,
		MutationStrength:     0.25,
		EliteRatio:           0.10,
		Selection:            model.SelectionTournament,
		Crossover:            model.CrossoverUniform,
		Seed:                 0,
	}
}

func builtinPresets() map[string]model.Config {
	return map[string]model.Config{
		PresetDefault: DefaultConfig(),
		// Small world, short run; quick feedback while experimenting.
		"skirmish": {
			WorldWidth:           40,
			WorldHeight:          30,
			PopulationSize:       16,
			MaxGenerations:       25,
			BattlesPerGeneration: 4,
			MutationRate:         0.20,
			MutationStrength:     0.40,
			EliteRatio:           0.125,
			Selection:            model.SelectionTournament,
			Crossover:            model.CrossoverOnePoint,
		},
		// Large population over many generations.
		"endurance": {
			WorldWidth:           120,
			WorldHeight:          90,
			PopulationSize:       96,
			MaxGenerations:       400,
			BattlesPerGeneration: 16,
			MutationRate:         0.05,
			MutationStrength:     0.15,
			EliteRatio:           0.08,
			Selection:            model.SelectionRank,
			Crossover:            model.CrossoverTwoPoint,
		},
		// Gentle mutation pressure with a wide elite band; cooperation tends
		// to stabilize early under these values.
		"pacifist": {
			WorldWidth:           80,
			WorldHeight:          60,
			PopulationSize:       48,
			MaxGenerations:       150,
			BattlesPerGeneration: 8,
			MutationRate:         0.12,
			MutationStrength:     0.20,
			EliteRatio:           0.15,
			Selection:            model.SelectionRoulette,
			Crossover:            model.CrossoverUniform,
		},
	}
}
