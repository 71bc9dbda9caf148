package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// SessionStatus is the externally visible lifecycle state of a session.
type SessionStatus int

const (
	StatusIdle SessionStatus = iota
	StatusRunning
	StatusFinished
)

func (s SessionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// AgentRecord is one simulated combatant as reported by an engine snapshot.
type AgentRecord struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Cooperation float64 `json:"cooperation"`
	Wins        int     `json:"wins"`
	Battles     int     `json:"battles"`
	Alive       bool    `json:"alive"`
}

// Statistics summarizes one generation of the simulation.
type Statistics struct {
	Generation     int     `json:"generation"`
	Population     int     `json:"population"`
	AvgScore       float64 `json:"avg_score"`
	MaxScore       float64 `json:"max_score"`
	MinScore       float64 `json:"min_score"`
	AvgCooperation float64 `json:"avg_cooperation"`
	TotalBattles   int     `json:"total_battles"`
}

// Snapshot is a point-in-time copy of engine state. Agents and Stats are
// decoded from the engine payload; Seq and CapturedAt are stamped by the
// session at publication time and never travel over the wire.
type Snapshot struct {
	Agents []AgentRecord `json:"agents"`
	Stats  Statistics    `json:"stats"`

	Seq        uint64    `json:"-"`
	CapturedAt time.Time `json:"-"`
}

// SessionRecord is the persisted outcome of one session run.
type SessionRecord struct {
	VersionedRecord
	ID           string     `json:"id"`
	CreatedAtUTC string     `json:"created_at_utc"`
	Preset       string     `json:"preset"`
	Config       Config     `json:"config"`
	Generations  int        `json:"generations"`
	Finished     bool       `json:"finished"`
	FinalStats   Statistics `json:"final_stats"`
}

// GenerationRecord is one row of a session's generation history.
type GenerationRecord struct {
	VersionedRecord
	Generation      int        `json:"generation"`
	Stats           Statistics `json:"stats"`
	Cooperators     int        `json:"cooperators"`
	Defectors       int        `json:"defectors"`
	CooperationRate float64    `json:"cooperation_rate"`
}
