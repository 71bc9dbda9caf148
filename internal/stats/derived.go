// Package stats derives presentation values from snapshots and writes
// session artifacts to disk. Derivations are pure functions recomputed from
// the latest snapshot; nothing here caches across publications.
package stats

import (
	"agon/internal/model"
)

// coopThreshold splits agents into cooperators and defectors by their
// cooperation tendency.
const coopThreshold = 0.5

// CategoryCounts buckets the living population by cooperation tendency.
type CategoryCounts struct {
	Cooperators     int     `json:"cooperators"`
	Defectors       int     `json:"defectors"`
	Alive           int     `json:"alive"`
	CooperationRate float64 `json:"cooperation_rate"`
}

// Derived is everything the presentation layer needs beyond the raw
// snapshot.
type Derived struct {
	Progress   float64        `json:"progress"`
	Finished   bool           `json:"finished"`
	Categories CategoryCounts `json:"categories"`
}

// Progress maps the generation counter onto 0..100, clamped at 100 once the
// generation cap is reached. A non-positive cap reads as no progress.
func Progress(stats model.Statistics, cfg model.Config) float64 {
	if cfg.MaxGenerations <= 0 {
		return 0
	}
	ratio := float64(stats.Generation) / float64(cfg.MaxGenerations)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio * 100
}

// Finished reports whether the generation counter has reached the cap.
func Finished(stats model.Statistics, cfg model.Config) bool {
	return cfg.MaxGenerations > 0 && stats.Generation >= cfg.MaxGenerations
}

// Categorize buckets living agents at the cooperation threshold. Dead agents
// count for nothing; the rate denominator never drops below one, so an empty
// or extinct population reads as rate zero.
func Categorize(agents []model.AgentRecord) CategoryCounts {
	var counts CategoryCounts
	for _, ag := range agents {
		if !ag.Alive {
			continue
		}
		counts.Alive++
		if ag.Cooperation >= coopThreshold {
			counts.Cooperators++
		} else {
			counts.Defectors++
		}
	}

	denom := counts.Alive
	if denom < 1 {
		denom = 1
	}
	counts.CooperationRate = float64(counts.Cooperators) / float64(denom)
	return counts
}

// Summarize computes every derived value for one snapshot.
func Summarize(snap model.Snapshot, cfg model.Config) Derived {
	return Derived{
		Progress:   Progress(snap.Stats, cfg),
		Finished:   Finished(snap.Stats, cfg),
		Categories: Categorize(snap.Agents),
	}
}
