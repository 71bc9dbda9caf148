package arena

import (
	"fmt"
	"math/rand"
	"sort"

	"agon/internal/model"
)

// RankedAgent is a score-ranked gene set handed to selectors. The slice given
// to PickParent is sorted best first.
type RankedAgent struct {
	Genes []float64
	Score float64
}

// Selector chooses a parent gene set from ranked agents for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []RankedAgent) ([]float64, error)
}

// NewSelector maps a configured selection method to its implementation.
func NewSelector(method model.SelectionMethod) (Selector, error) {
	switch method {
	case model.SelectionTournament:
		return TournamentSelector{}, nil
	case model.SelectionRoulette:
		return RouletteSelector{}, nil
	case model.SelectionRank:
		return RankSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection method: %q", method)
	}
}

// TournamentSelector samples candidates and picks the best score among them.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []RankedAgent) ([]float64, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no ranked agents")
	}

	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Score > best.Score {
			best = candidate
		}
	}
	return best.Genes, nil
}

// RouletteSelector picks proportionally to score. Scores are shifted so the
// worst agent still holds a sliver of the wheel.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []RankedAgent) ([]float64, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no ranked agents")
	}

	minScore := ranked[len(ranked)-1].Score
	total := 0.0
	for _, r := range ranked {
		total += r.Score - minScore + 1.0
	}

	spin := rng.Float64() * total
	for _, r := range ranked {
		spin -= r.Score - minScore + 1.0
		if spin <= 0 {
			return r.Genes, nil
		}
	}
	return ranked[len(ranked)-1].Genes, nil
}

// RankSelector weights agents linearly by rank position, ignoring score
// magnitude.
type RankSelector struct{}

func (RankSelector) Name() string {
	return "rank"
}

func (RankSelector) PickParent(rng *rand.Rand, ranked []RankedAgent) ([]float64, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	n := len(ranked)
	if n == 0 {
		return nil, fmt.Errorf("no ranked agents")
	}

	total := n * (n + 1) / 2
	spin := rng.Intn(total)
	for i, r := range ranked {
		spin -= n - i
		if spin < 0 {
			return r.Genes, nil
		}
	}
	return ranked[n-1].Genes, nil
}

func sortRanked(ranked []RankedAgent) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
}
