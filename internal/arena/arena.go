// Package arena implements the battle-simulation engine: a population of
// agents evolved over generations, scored through pairwise encounters that
// mix cooperation payoffs with physical combat.
package arena

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"agon/internal/engine"
	"agon/internal/model"
)

const (
	geneCount       = 4
	geneCooperation = 0
	geneStrength    = 1
	geneAgility     = 2
	geneResilience  = 3

	startingHealth = 100.0
	battleRadius   = 6.0
	survivalBonus  = 2.0
)

type agent struct {
	id      string
	genes   []float64
	x, y    float64
	health  float64
	score   float64
	wins    int
	battles int
}

func (a *agent) alive() bool          { return a.health > 0 }
func (a *agent) cooperation() float64 { return a.genes[geneCooperation] }
func (a *agent) strength() float64    { return a.genes[geneStrength] }
func (a *agent) agility() float64     { return a.genes[geneAgility] }
func (a *agent) resilience() float64  { return a.genes[geneResilience] }

// Arena is one engine instance. It is not safe for concurrent use; callers
// serialize access. The zero value is not usable, construct with New.
type Arena struct {
	cfg       model.Config
	seed      int64
	rng       *rand.Rand
	selector  Selector
	crossover crossoverFunc

	gen          int
	round        int
	agents       []*agent
	totalBattles int
	released     bool
}

var errReleased = fmt.Errorf("arena already released")

// New validates cfg and constructs a generation-zero arena. Every bound is
// checked here; an invalid configuration fails with engine.ConstructError and
// leaves nothing behind.
func New(cfg model.Config) (*Arena, error) {
	if cfg.WorldWidth <= 0 {
		return nil, engine.NewConstructError("world_width", "must be positive, got %d", cfg.WorldWidth)
	}
	if cfg.WorldHeight <= 0 {
		return nil, engine.NewConstructError("world_height", "must be positive, got %d", cfg.WorldHeight)
	}
	if cfg.PopulationSize < 2 {
		return nil, engine.NewConstructError("population_size", "need at least 2 agents, got %d", cfg.PopulationSize)
	}
	if cfg.MaxGenerations <= 0 {
		return nil, engine.NewConstructError("max_generations", "must be positive, got %d", cfg.MaxGenerations)
	}
	if cfg.BattlesPerGeneration <= 0 {
		return nil, engine.NewConstructError("battles_per_generation", "must be positive, got %d", cfg.BattlesPerGeneration)
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, engine.NewConstructError("mutation_rate", "must be in [0,1], got %g", cfg.MutationRate)
	}
	if cfg.MutationStrength < 0 {
		return nil, engine.NewConstructError("mutation_strength", "must not be negative, got %g", cfg.MutationStrength)
	}
	if cfg.EliteRatio < 0 || cfg.EliteRatio > 1 {
		return nil, engine.NewConstructError("elite_ratio", "must be in [0,1], got %g", cfg.EliteRatio)
	}
	selector, err := NewSelector(cfg.Selection)
	if err != nil {
		return nil, engine.NewConstructError("selection", "%v", err)
	}
	crossover, err := newCrossover(cfg.Crossover)
	if err != nil {
		return nil, engine.NewConstructError("crossover", "%v", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a := &Arena{
		cfg:       cfg,
		seed:      seed,
		selector:  selector,
		crossover: crossover,
	}
	a.init()
	return a, nil
}

// Factory satisfies engine.Factory.
type Factory struct{}

func (Factory) New(cfg model.Config) (engine.Engine, error) {
	return New(cfg)
}

// init seeds the random source and spawns the generation-zero population.
// Reset reuses it, so a reset run replays the constructed run exactly.
func (a *Arena) init() {
	a.rng = rand.New(rand.NewSource(a.seed))
	a.gen = 0
	a.round = 0
	a.totalBattles = 0

	genes := make([][]float64, a.cfg.PopulationSize)
	for i := range genes {
		g := make([]float64, geneCount)
		for j := range g {
			g[j] = a.rng.Float64()
		}
		genes[i] = g
	}
	a.agents = a.spawn(0, genes)
}

// spawn builds a fresh cohort from gene sets: new ids, full health, random
// positions, zeroed per-generation counters.
func (a *Arena) spawn(gen int, genes [][]float64) []*agent {
	cohort := make([]*agent, len(genes))
	for i, g := range genes {
		cohort[i] = &agent{
			id:     fmt.Sprintf("g%d-a%d", gen, i),
			genes:  g,
			x:      a.rng.Float64() * float64(a.cfg.WorldWidth),
			y:      a.rng.Float64() * float64(a.cfg.WorldHeight),
			health: startingHealth,
		}
	}
	return cohort
}

func (a *Arena) finished() bool {
	return a.gen >= a.cfg.MaxGenerations
}

// Step advances one battle round; the round that completes a generation also
// evolves the next cohort. Advancing a finished arena is a no-op that keeps
// reporting finished.
func (a *Arena) Step() (bool, error) {
	return a.advanceRound("step")
}

// RunGeneration advances rounds until the generation counter moves.
func (a *Arena) RunGeneration() (bool, error) {
	if a.released {
		return false, engine.NewRuntimeError("run_generation", errReleased)
	}
	if a.finished() {
		return true, nil
	}
	start := a.gen
	for a.gen == start {
		if _, err := a.advanceRound("run_generation"); err != nil {
			return false, err
		}
	}
	return a.finished(), nil
}

// RunMany advances up to n generations, stopping early when finished. A
// non-positive n advances one generation.
func (a *Arena) RunMany(n int) (bool, error) {
	if a.released {
		return false, engine.NewRuntimeError("run_many", errReleased)
	}
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		fin, err := a.RunGeneration()
		if err != nil {
			return false, err
		}
		if fin {
			return true, nil
		}
	}
	return a.finished(), nil
}

func (a *Arena) advanceRound(op string) (bool, error) {
	if a.released {
		return false, engine.NewRuntimeError(op, errReleased)
	}
	if a.finished() {
		return true, nil
	}

	a.moveAgents()
	a.fightRound()
	a.round++

	if a.round >= a.cfg.BattlesPerGeneration {
		if err := a.evolve(); err != nil {
			return false, engine.NewRuntimeError(op, err)
		}
		a.round = 0
		a.gen++
	}
	return a.finished(), nil
}

// Reset rebuilds generation zero from the original seed.
func (a *Arena) Reset() error {
	if a.released {
		return engine.NewRuntimeError("reset", errReleased)
	}
	a.init()
	return nil
}

// Release frees the instance. Idempotent; every operation afterwards fails.
func (a *Arena) Release() {
	a.released = true
	a.agents = nil
}

// Snapshot serializes the current agents and statistics as JSON.
func (a *Arena) Snapshot() ([]byte, error) {
	if a.released {
		return nil, engine.NewRuntimeError("snapshot", errReleased)
	}

	records := make([]model.AgentRecord, len(a.agents))
	for i, ag := range a.agents {
		records[i] = model.AgentRecord{
			ID:          ag.id,
			Score:       ag.score,
			Cooperation: ag.cooperation(),
			Wins:        ag.wins,
			Battles:     ag.battles,
			Alive:       ag.alive(),
		}
	}
	payload, err := json.Marshal(model.Snapshot{Agents: records, Stats: a.statistics()})
	if err != nil {
		return nil, engine.NewRuntimeError("snapshot", err)
	}
	return payload, nil
}

func (a *Arena) statistics() model.Statistics {
	stats := model.Statistics{
		Generation:   a.gen,
		Population:   len(a.agents),
		TotalBattles: a.totalBattles,
	}
	if len(a.agents) == 0 {
		return stats
	}

	minScore := math.Inf(1)
	maxScore := math.Inf(-1)
	var scoreSum, coopSum float64
	for _, ag := range a.agents {
		scoreSum += ag.score
		coopSum += ag.cooperation()
		minScore = math.Min(minScore, ag.score)
		maxScore = math.Max(maxScore, ag.score)
	}
	n := float64(len(a.agents))
	stats.AvgScore = scoreSum / n
	stats.MaxScore = maxScore
	stats.MinScore = minScore
	stats.AvgCooperation = coopSum / n
	return stats
}

// moveAgents drifts every living agent by an agility-scaled step, clamped to
// the world bounds.
func (a *Arena) moveAgents() {
	w := float64(a.cfg.WorldWidth)
	h := float64(a.cfg.WorldHeight)
	for _, ag := range a.agents {
		if !ag.alive() {
			continue
		}
		step := 1.0 + ag.agility()*3.0
		ag.x = clamp(ag.x+(a.rng.Float64()*2-1)*step, 0, w)
		ag.y = clamp(ag.y+(a.rng.Float64()*2-1)*step, 0, h)
	}
}

// fightRound pairs each living agent with its nearest unfought neighbor in
// battle range. Density decides how many battles a round actually yields.
func (a *Arena) fightRound() {
	order := a.rng.Perm(len(a.agents))
	fought := make([]bool, len(a.agents))

	for _, i := range order {
		attacker := a.agents[i]
		if fought[i] || !attacker.alive() {
			continue
		}

		target := -1
		best := battleRadius
		for j, other := range a.agents {
			if j == i || fought[j] || !other.alive() {
				continue
			}
			if d := dist(attacker.x, attacker.y, other.x, other.y); d <= best {
				best = d
				target = j
			}
		}
		if target < 0 {
			continue
		}

		fought[i] = true
		fought[target] = true
		a.resolveBattle(attacker, a.agents[target])
	}
}

// evolve closes the current generation: survival bonus, ranking, elite
// carry-over, then selector/crossover/mutation offspring to refill the
// population.
func (a *Arena) evolve() error {
	for _, ag := range a.agents {
		if ag.alive() {
			ag.score += survivalBonus
		}
	}

	ranked := a.rankAgents()
	eliteCount := int(float64(len(ranked)) * a.cfg.EliteRatio)
	if eliteCount > len(ranked) {
		eliteCount = len(ranked)
	}

	next := make([][]float64, 0, a.cfg.PopulationSize)
	for i := 0; i < eliteCount; i++ {
		next = append(next, append([]float64(nil), ranked[i].Genes...))
	}
	for len(next) < a.cfg.PopulationSize {
		pa, err := a.selector.PickParent(a.rng, ranked)
		if err != nil {
			return err
		}
		pb, err := a.selector.PickParent(a.rng, ranked)
		if err != nil {
			return err
		}
		child := a.crossover(a.rng, pa, pb)
		a.mutate(child)
		next = append(next, child)
	}

	a.agents = a.spawn(a.gen+1, next)
	return nil
}

// rankAgents returns gene copies sorted by score, best first.
func (a *Arena) rankAgents() []RankedAgent {
	ranked := make([]RankedAgent, len(a.agents))
	for i, ag := range a.agents {
		ranked[i] = RankedAgent{
			Genes: append([]float64(nil), ag.genes...),
			Score: ag.score,
		}
	}
	sortRanked(ranked)
	return ranked
}

func (a *Arena) mutate(genes []float64) {
	for i := range genes {
		if a.rng.Float64() < a.cfg.MutationRate {
			genes[i] = clamp(genes[i]+a.rng.NormFloat64()*a.cfg.MutationStrength, 0, 1)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}
