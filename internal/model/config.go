package model

// SelectionMethod names a parent-selection strategy.
type SelectionMethod string

const (
	SelectionTournament SelectionMethod = "tournament"
	SelectionRoulette   SelectionMethod = "roulette"
	SelectionRank       SelectionMethod = "rank"
)

// CrossoverMethod names a genome-recombination strategy.
type CrossoverMethod string

const (
	CrossoverUniform  CrossoverMethod = "uniform"
	CrossoverOnePoint CrossoverMethod = "one_point"
	CrossoverTwoPoint CrossoverMethod = "two_point"
)

// Config is the full set of simulation parameters. Values are treated as
// immutable once handed out; bounds are validated by the engine constructor,
// not here.
type Config struct {
	WorldWidth           int             `json:"world_width" yaml:"world_width"`
	WorldHeight          int             `json:"world_height" yaml:"world_height"`
	PopulationSize       int             `json:"population_size" yaml:"population_size"`
	MaxGenerations       int             `json:"max_generations" yaml:"max_generations"`
	BattlesPerGeneration int             `json:"battles_per_generation" yaml:"battles_per_generation"`
	MutationRate         float64         `json:"mutation_rate" yaml:"mutation_rate"`
	MutationStrength     float64         `json:"mutation_strength" yaml:"mutation_strength"`
	EliteRatio           float64         `json:"elite_ratio" yaml:"elite_ratio"`
	Selection            SelectionMethod `json:"selection" yaml:"selection"`
	Crossover            CrossoverMethod `json:"crossover" yaml:"crossover"`
	Seed                 int64           `json:"seed" yaml:"seed"`
}

// Dimensions optionally overrides the world size of a configuration. The zero
// value means "keep the configured size".
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

// ConfigPatch carries a partial configuration update. Nil fields are left at
// their previous values.
type ConfigPatch struct {
	WorldWidth           *int             `json:"world_width,omitempty" yaml:"world_width,omitempty"`
	WorldHeight          *int             `json:"world_height,omitempty" yaml:"world_height,omitempty"`
	PopulationSize       *int             `json:"population_size,omitempty" yaml:"population_size,omitempty"`
	MaxGenerations       *int             `json:"max_generations,omitempty" yaml:"max_generations,omitempty"`
	BattlesPerGeneration *int             `json:"battles_per_generation,omitempty" yaml:"battles_per_generation,omitempty"`
	MutationRate         *float64         `json:"mutation_rate,omitempty" yaml:"mutation_rate,omitempty"`
	MutationStrength     *float64         `json:"mutation_strength,omitempty" yaml:"mutation_strength,omitempty"`
	EliteRatio           *float64         `json:"elite_ratio,omitempty" yaml:"elite_ratio,omitempty"`
	Selection            *SelectionMethod `json:"selection,omitempty" yaml:"selection,omitempty"`
	Crossover            *CrossoverMethod `json:"crossover,omitempty" yaml:"crossover,omitempty"`
	Seed                 *int64           `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Apply merges the patch onto cfg and returns the result. cfg itself is not
// modified.
func (p ConfigPatch) Apply(cfg Config) Config {
	if p.WorldWidth != nil {
		cfg.WorldWidth = *p.WorldWidth
	}
	if p.WorldHeight != nil {
		cfg.WorldHeight = *p.WorldHeight
	}
	if p.PopulationSize != nil {
		cfg.PopulationSize = *p.PopulationSize
	}
	if p.MaxGenerations != nil {
		cfg.MaxGenerations = *p.MaxGenerations
	}
	if p.BattlesPerGeneration != nil {
		cfg.BattlesPerGeneration = *p.BattlesPerGeneration
	}
	if p.MutationRate != nil {
		cfg.MutationRate = *p.MutationRate
	}
	if p.MutationStrength != nil {
		cfg.MutationStrength = *p.MutationStrength
	}
	if p.EliteRatio != nil {
		cfg.EliteRatio = *p.EliteRatio
	}
	if p.Selection != nil {
		cfg.Selection = *p.Selection
	}
	if p.Crossover != nil {
		cfg.Crossover = *p.Crossover
	}
	if p.Seed != nil {
		cfg.Seed = *p.Seed
	}
	return cfg
}

// IsZero reports whether the patch changes nothing.
func (p ConfigPatch) IsZero() bool {
	return p.WorldWidth == nil && p.WorldHeight == nil &&
		p.PopulationSize == nil && p.MaxGenerations == nil &&
		p.BattlesPerGeneration == nil && p.MutationRate == nil &&
		p.MutationStrength == nil && p.EliteRatio == nil &&
		p.Selection == nil && p.Crossover == nil && p.Seed == nil
}
