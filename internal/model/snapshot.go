package model

import (
	"encoding/json"
	"fmt"
)

// DecodeSnapshot parses a serialized engine snapshot. The payload is treated
// as untrusted: any shape mismatch is an error and the caller is expected to
// fall back to DegradedSnapshot. A missing or empty agent list is valid.
func DecodeSnapshot(payload []byte) (Snapshot, error) {
	if len(payload) == 0 {
		return Snapshot{}, fmt.Errorf("decode snapshot: empty payload")
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Agents == nil {
		snap.Agents = []AgentRecord{}
	}
	return snap, nil
}

// DegradedSnapshot is the substitute published when an engine payload cannot
// be parsed: no agents, zeroed statistics at the given generation.
func DegradedSnapshot(generation int) Snapshot {
	return Snapshot{
		Agents: []AgentRecord{},
		Stats:  Statistics{Generation: generation},
	}
}

// Clone returns a deep copy safe to hand to observers.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Agents = append([]AgentRecord(nil), s.Agents...)
	return out
}
