package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"agon/internal/model"
)

const sessionIndexFile = "session_index.json"

// SessionArtifacts is everything written to a session's artifact directory.
type SessionArtifacts struct {
	Record      model.SessionRecord      `json:"record"`
	History     []model.GenerationRecord `json:"history"`
	FinalAgents []model.AgentRecord      `json:"final_agents"`
}

// SessionIndexEntry is one row of the artifact directory's session index.
type SessionIndexEntry struct {
	SessionID       string  `json:"session_id"`
	Preset          string  `json:"preset,omitempty"`
	PopulationSize  int     `json:"population_size"`
	Generations     int     `json:"generations"`
	MaxGenerations  int     `json:"max_generations"`
	Finished        bool    `json:"finished"`
	CooperationRate float64 `json:"cooperation_rate"`
	CreatedAtUTC    string  `json:"created_at_utc"`
}

// WriteSessionArtifacts writes the per-session artifact files under
// baseDir/<session id> and returns that directory.
func WriteSessionArtifacts(baseDir string, artifacts SessionArtifacts) (string, error) {
	if artifacts.Record.ID == "" {
		return "", fmt.Errorf("session id is required")
	}

	dir := filepath.Join(baseDir, artifacts.Record.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(dir, "config.json"), artifacts.Record.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "session.json"), artifacts.Record); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "generation_history.json"), artifacts.History); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "final_agents.json"), artifacts.FinalAgents); err != nil {
		return "", err
	}
	if err := WriteHistoryCSV(dir, artifacts.History); err != nil {
		return "", err
	}

	return dir, nil
}

// AppendSessionIndex inserts or replaces the entry for its session id.
func AppendSessionIndex(baseDir string, entry SessionIndexEntry) error {
	if entry.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListSessionIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].SessionID == entry.SessionID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, sessionIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, sessionIndexFile), index)
}

// ListSessionIndex returns the index sorted newest first.
func ListSessionIndex(baseDir string) ([]SessionIndexEntry, error) {
	path := filepath.Join(baseDir, sessionIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []SessionIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry SessionIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]SessionIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportSessionArtifacts copies a session's artifact files to outDir and
// returns the destination directory.
func ExportSessionArtifacts(baseDir, sessionID, outDir string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	src := filepath.Join(baseDir, sessionID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, sessionID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "session.json", "generation_history.json", "final_agents.json", "history.csv"}
	for _, file := range files {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

// ReadSessionRecord loads the persisted session record from an artifact
// directory.
func ReadSessionRecord(baseDir, sessionID string) (model.SessionRecord, bool, error) {
	path := filepath.Join(baseDir, sessionID, "session.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.SessionRecord{}, false, nil
		}
		return model.SessionRecord{}, false, err
	}

	var record model.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.SessionRecord{}, false, err
	}
	return record, true, nil
}

// ReadGenerationHistory loads the generation history from an artifact
// directory.
func ReadGenerationHistory(baseDir, sessionID string) ([]model.GenerationRecord, bool, error) {
	path := filepath.Join(baseDir, sessionID, "generation_history.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var history []model.GenerationRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, false, err
	}
	return history, true, nil
}

// WriteHistoryCSV writes the generation history as history.csv in dir.
func WriteHistoryCSV(dir string, history []model.GenerationRecord) error {
	path := filepath.Join(dir, "history.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteHistoryCSVTo(file, history)
}

// WriteHistoryCSVTo streams the generation history as CSV rows to w.
func WriteHistoryCSVTo(w io.Writer, history []model.GenerationRecord) error {
	writer := csv.NewWriter(w)
	header := []string{
		"generation", "population", "avg_score", "max_score", "min_score",
		"avg_cooperation", "cooperators", "defectors", "cooperation_rate", "total_battles",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, rec := range history {
		row := []string{
			strconv.Itoa(rec.Generation),
			strconv.Itoa(rec.Stats.Population),
			strconv.FormatFloat(rec.Stats.AvgScore, 'f', -1, 64),
			strconv.FormatFloat(rec.Stats.MaxScore, 'f', -1, 64),
			strconv.FormatFloat(rec.Stats.MinScore, 'f', -1, 64),
			strconv.FormatFloat(rec.Stats.AvgCooperation, 'f', -1, 64),
			strconv.Itoa(rec.Cooperators),
			strconv.Itoa(rec.Defectors),
			strconv.FormatFloat(rec.CooperationRate, 'f', -1, 64),
			strconv.Itoa(rec.Stats.TotalBattles),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadHistoryCSV loads the cooperation-rate series from history.csv.
func ReadHistoryCSV(baseDir, sessionID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, sessionID, "history.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}

	rateCol := -1
	for i, name := range header {
		if name == "cooperation_rate" {
			rateCol = i
			break
		}
	}
	if rateCol < 0 {
		return nil, false, fmt.Errorf("history csv is missing the cooperation_rate column")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) <= rateCol {
			return nil, false, fmt.Errorf("history csv row has %d columns, want at least %d", len(record), rateCol+1)
		}
		value, err := strconv.ParseFloat(record[rateCol], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
