// Package agon is the embedding surface for the battle-royale evolution
// engine. It ties the session controller, the configuration store, the
// persistence layer and the artifact writers together behind one client so
// that callers (the CLI, notebooks, services) do not wire internals by hand.
package agon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"agon/internal/arena"
	"agon/internal/config"
	"agon/internal/model"
	"agon/internal/session"
	"agon/internal/stats"
	"agon/internal/storage"
)

const (
	defaultDBPath       = "agon.db"
	defaultArtifactsDir = "sessions"
	defaultExportsDir   = "exports"
	defaultListLimit    = 20

	// watchPollInterval paces the completion check while auto-run owns the
	// session; observers deliver the actual snapshots.
	watchPollInterval = 25 * time.Millisecond
)

// Options configures a Client. Zero values select the defaults, so
// agon.New(agon.Options{}) yields a working in-memory client.
type Options struct {
	// StoreKind selects the persistence backend: "memory" (default) or
	// "sqlite".
	StoreKind string
	// DBPath is the SQLite database file, used when StoreKind is "sqlite".
	DBPath string
	// ArtifactsDir is where per-session artifact directories are written.
	ArtifactsDir string
	// ExportsDir is the default destination for Export.
	ExportsDir string
	// PresetFile optionally names a YAML preset file merged over the
	// builtin presets at construction time.
	PresetFile string
	// Logger receives controller and store logs. Nil installs a logger
	// that only reports warnings.
	Logger *logrus.Logger
}

// Client is the façade over sessions, presets, persistence and artifacts.
// Methods are safe for concurrent use; each run drives its own controller.
type Client struct {
	log          *logrus.Logger
	store        storage.Store
	cfgs         *config.Store
	artifactsDir string
	exportsDir   string

	mu          sync.Mutex
	initialized bool
}

// New builds a client from opts and opens the persistence backend lazily:
// the store is initialized on first use, not here.
func New(opts Options) (*Client, error) {
	if opts.DBPath == "" {
		opts.DBPath = defaultDBPath
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = defaultArtifactsDir
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}

	store, err := storage.NewStore(opts.StoreKind, opts.DBPath)
	if err != nil {
		return nil, err
	}

	cfgs := config.New(config.DefaultConfig(), log)
	if opts.PresetFile != "" {
		if _, err := cfgs.LoadPresetFile(opts.PresetFile); err != nil {
			return nil, fmt.Errorf("load preset file: %w", err)
		}
	}

	return &Client{
		log:          log,
		store:        store,
		cfgs:         cfgs,
		artifactsDir: opts.ArtifactsDir,
		exportsDir:   opts.ExportsDir,
	}, nil
}

// Init eagerly initializes the persistence backend. Calling it is optional;
// every method that touches the store does the same on first use.
func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Close releases the persistence backend.
func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// RunRequest describes one headless run. The configuration starts from the
// named preset (builtin defaults when empty) and Patch overrides individual
// fields on top.
type RunRequest struct {
	Preset string
	Patch  model.ConfigPatch
	// OnGeneration, when set, observes every completed generation.
	OnGeneration func(model.GenerationRecord)
}

// RunSummary reports a finished (or interrupted) run.
type RunSummary struct {
	SessionID       string           `json:"session_id"`
	Preset          string           `json:"preset"`
	ArtifactsDir    string           `json:"artifacts_dir"`
	Generations     int              `json:"generations"`
	Finished        bool             `json:"finished"`
	Progress        float64          `json:"progress"`
	CooperationRate float64          `json:"cooperation_rate"`
	FinalStats      model.Statistics `json:"final_stats"`
}

// Run executes a session to its generation cap as fast as the engine allows,
// persists the record and generation history, and writes the artifact
// directory. The context is honored between generations; cancelling stops
// the run and persists what completed so far.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg, err := c.resolveConfig(req.Preset, req.Patch)
	if err != nil {
		return RunSummary{}, err
	}

	ctrl, err := session.NewController(session.Config{
		Factory: arena.Factory{},
		Configs: config.New(cfg, c.log),
		Logger:  c.log,
	})
	if err != nil {
		return RunSummary{}, err
	}
	defer ctrl.Teardown()

	if err := ctrl.CreateNew(cfg, model.Dimensions{}); err != nil {
		return RunSummary{}, err
	}

	preset := presetLabel(req.Preset, req.Patch)
	c.log.WithFields(logrus.Fields{
		"session":         ctrl.ID(),
		"preset":          preset,
		"population":      cfg.PopulationSize,
		"max_generations": cfg.MaxGenerations,
	}).Info("Session run starting")

	var (
		history []model.GenerationRecord
		lastGen int
	)
	finished := false
	for !finished {
		if err := ctx.Err(); err != nil {
			break
		}
		snap, err := ctrl.RunGeneration()
		if err != nil {
			return RunSummary{}, err
		}
		if snap.Stats.Generation > lastGen {
			lastGen = snap.Stats.Generation
			rec := generationRecord(snap, stats.Summarize(snap, cfg))
			history = append(history, rec)
			if req.OnGeneration != nil {
				req.OnGeneration(rec)
			}
		}
		finished = ctrl.Status() == model.StatusFinished
	}

	return c.finishRun(ctx, ctrl, cfg, preset, history, finished)
}

// WatchRequest describes a scheduler-driven run: the auto-run loop paces the
// generations and OnSnapshot observes every published state.
type WatchRequest struct {
	Preset   string
	Patch    model.ConfigPatch
	Interval time.Duration
	// OnSnapshot receives each published snapshot together with the
	// derived view. It runs on the publishing goroutine and must not
	// block for long.
	OnSnapshot func(model.Snapshot, stats.Derived)
}

// Watch runs a session under the auto-run scheduler until it finishes or ctx
// is cancelled, then persists the outcome exactly like Run. An engine
// failure mid-run surfaces as an error after the scheduler disarms.
func (c *Client) Watch(ctx context.Context, req WatchRequest) (RunSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg, err := c.resolveConfig(req.Preset, req.Patch)
	if err != nil {
		return RunSummary{}, err
	}

	ctrl, err := session.NewController(session.Config{
		Factory:         arena.Factory{},
		Configs:         config.New(cfg, c.log),
		Logger:          c.log,
		AutoRunInterval: req.Interval,
	})
	if err != nil {
		return RunSummary{}, err
	}
	defer ctrl.Teardown()

	collector := &historyCollector{cfg: cfg, onSnapshot: req.OnSnapshot}
	cancel := ctrl.Subscribe(collector.observe)
	defer cancel()

	if err := ctrl.CreateNew(cfg, model.Dimensions{}); err != nil {
		return RunSummary{}, err
	}
	if err := ctrl.Start(); err != nil {
		return RunSummary{}, err
	}
	ctrl.AutoRun().Enable(req.Interval)

	preset := presetLabel(req.Preset, req.Patch)
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	finished := false
watch:
	for {
		select {
		case <-ctx.Done():
			ctrl.Stop()
			break watch
		case <-ticker.C:
			if ctrl.Status() == model.StatusFinished {
				finished = true
				break watch
			}
			if ev, ok := ctrl.Errors().Last(); ok && !ev.Warning {
				return RunSummary{}, fmt.Errorf("session %s: %w", ctrl.ID(), ev.Err)
			}
		}
	}

	return c.finishRun(ctx, ctrl, cfg, preset, collector.records(), finished)
}

// finishRun persists the session record, the generation history and the
// artifact directory, and folds everything into the summary.
func (c *Client) finishRun(ctx context.Context, ctrl *session.Controller, cfg model.Config, preset string, history []model.GenerationRecord, finished bool) (RunSummary, error) {
	final := ctrl.Snapshot()
	now := time.Now().UTC()

	record := model.SessionRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:           ctrl.ID(),
		CreatedAtUTC: now.Format(time.RFC3339Nano),
		Preset:       preset,
		Config:       cfg,
		Generations:  final.Stats.Generation,
		Finished:     finished,
		FinalStats:   final.Stats,
	}

	// Persist even a cancelled run: partial history is still useful.
	persistCtx := ctx
	if persistCtx.Err() != nil {
		persistCtx = context.Background()
	}
	if err := c.store.SaveSession(persistCtx, record); err != nil {
		return RunSummary{}, fmt.Errorf("save session: %w", err)
	}
	if err := c.store.SaveGenerationHistory(persistCtx, record.ID, history); err != nil {
		return RunSummary{}, fmt.Errorf("save generation history: %w", err)
	}

	rate := 0.0
	if n := len(history); n > 0 {
		rate = history[n-1].CooperationRate
	}
	dir, err := stats.WriteSessionArtifacts(c.artifactsDir, stats.SessionArtifacts{
		Record:      record,
		History:     history,
		FinalAgents: final.Agents,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	if err := stats.AppendSessionIndex(c.artifactsDir, stats.SessionIndexEntry{
		SessionID:       record.ID,
		Preset:          record.Preset,
		PopulationSize:  cfg.PopulationSize,
		Generations:     record.Generations,
		MaxGenerations:  cfg.MaxGenerations,
		Finished:        record.Finished,
		CooperationRate: rate,
		CreatedAtUTC:    record.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("append session index: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"session":     record.ID,
		"generations": record.Generations,
		"finished":    record.Finished,
	}).Info("Session run persisted")

	return RunSummary{
		SessionID:       record.ID,
		Preset:          preset,
		ArtifactsDir:    filepath.Clean(dir),
		Generations:     record.Generations,
		Finished:        record.Finished,
		Progress:        stats.Progress(final.Stats, cfg),
		CooperationRate: rate,
		FinalStats:      final.Stats,
	}, nil
}

// StepRequest drives a throwaway session by hand for inspection. Rounds
// single battle rounds run first, then Generations whole generations. When
// both are zero one round is executed. Nothing is persisted.
type StepRequest struct {
	Preset      string
	Patch       model.ConfigPatch
	Rounds      int
	Generations int
}

// StepResult is the state after the requested advances.
type StepResult struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Derived  stats.Derived  `json:"derived"`
	Status   string         `json:"status"`
}

// Step creates a fresh session, advances it as requested and returns the
// resulting snapshot with its derived view.
func (c *Client) Step(ctx context.Context, req StepRequest) (StepResult, error) {
	if req.Rounds < 0 || req.Generations < 0 {
		return StepResult{}, errors.New("rounds and generations must not be negative")
	}
	cfg, err := c.resolveConfig(req.Preset, req.Patch)
	if err != nil {
		return StepResult{}, err
	}
	rounds := req.Rounds
	if rounds == 0 && req.Generations == 0 {
		rounds = 1
	}

	ctrl, err := session.NewController(session.Config{
		Factory: arena.Factory{},
		Configs: config.New(cfg, c.log),
		Logger:  c.log,
	})
	if err != nil {
		return StepResult{}, err
	}
	defer ctrl.Teardown()

	if err := ctrl.CreateNew(cfg, model.Dimensions{}); err != nil {
		return StepResult{}, err
	}

	snap := ctrl.Snapshot()
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		if snap, err = ctrl.Step(); err != nil {
			return StepResult{}, err
		}
	}
	if req.Generations > 0 {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		if snap, err = ctrl.RunMany(req.Generations); err != nil {
			return StepResult{}, err
		}
	}

	return StepResult{
		Snapshot: snap,
		Derived:  stats.Summarize(snap, cfg),
		Status:   ctrl.Status().String(),
	}, nil
}

// SessionsRequest lists recorded sessions, newest first. Limit zero means
// the default of 20; a negative limit is rejected.
type SessionsRequest struct {
	Limit int
}

// SessionItem is one row of the session listing.
type SessionItem struct {
	SessionID      string  `json:"session_id"`
	CreatedAtUTC   string  `json:"created_at_utc"`
	Preset         string  `json:"preset"`
	Population     int     `json:"population"`
	Generations    int     `json:"generations"`
	MaxGenerations int     `json:"max_generations"`
	Finished       bool    `json:"finished"`
	AvgCooperation float64 `json:"avg_cooperation"`
	AvgScore       float64 `json:"avg_score"`
}

// Sessions returns the recorded sessions, newest first.
func (c *Client) Sessions(ctx context.Context, req SessionsRequest) ([]SessionItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	records, err := c.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > req.Limit {
		records = records[:req.Limit]
	}

	items := make([]SessionItem, 0, len(records))
	for _, rec := range records {
		items = append(items, SessionItem{
			SessionID:      rec.ID,
			CreatedAtUTC:   rec.CreatedAtUTC,
			Preset:         rec.Preset,
			Population:     rec.Config.PopulationSize,
			Generations:    rec.Generations,
			MaxGenerations: rec.Config.MaxGenerations,
			Finished:       rec.Finished,
			AvgCooperation: rec.FinalStats.AvgCooperation,
			AvgScore:       rec.FinalStats.AvgScore,
		})
	}
	return items, nil
}

// HistoryRequest selects a session either by id or as the latest recorded
// one, and caps how many trailing generations are returned. Limit zero
// returns the full history.
type HistoryRequest struct {
	SessionID string
	Latest    bool
	Limit     int
}

// History returns the persisted generation records of one session.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.GenerationRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must not be negative")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	id, err := c.resolveSessionID(ctx, req.SessionID, req.Latest, "history")
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetGenerationHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %s: no generation history", id)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[len(history)-req.Limit:]
	}
	return history, nil
}

// ExportRequest copies a session's artifact directory. OutDir empty exports
// under the client's exports directory.
type ExportRequest struct {
	SessionID string
	Latest    bool
	OutDir    string
}

// ExportSummary reports where an export landed.
type ExportSummary struct {
	SessionID string `json:"session_id"`
	Dir       string `json:"dir"`
}

// Export copies the artifact files of one session to the output directory.
// Latest resolves against the artifact index rather than the store, since
// exports operate on artifact directories.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if err := ctx.Err(); err != nil {
		return ExportSummary{}, err
	}
	if req.SessionID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either session id or latest")
	}
	id := req.SessionID
	if id == "" {
		if !req.Latest {
			return ExportSummary{}, errors.New("export requires session id or latest")
		}
		entries, err := stats.ListSessionIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no sessions recorded")
		}
		id = entries[0].SessionID
	}

	if _, ok, err := stats.ReadSessionRecord(c.artifactsDir, id); err != nil {
		return ExportSummary{}, err
	} else if !ok {
		return ExportSummary{}, fmt.Errorf("session %s: no artifacts", id)
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.ExportSessionArtifacts(c.artifactsDir, id, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{SessionID: id, Dir: filepath.Clean(dir)}, nil
}

// DeleteRequest removes one session from the store. Artifact directories on
// disk are left alone.
type DeleteRequest struct {
	SessionID string
	Latest    bool
}

// Delete removes a session record and its generation history, returning the
// id that was removed.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (string, error) {
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	id, err := c.resolveSessionID(ctx, req.SessionID, req.Latest, "delete")
	if err != nil {
		return "", err
	}
	if _, ok, err := c.store.GetSession(ctx, id); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("session %s: not found", id)
	}
	return id, c.store.DeleteSession(ctx, id)
}

// PresetItem is one named configuration.
type PresetItem struct {
	Name   string       `json:"name"`
	Config model.Config `json:"config"`
}

// Presets lists the known presets, builtins plus any loaded from the preset
// file, sorted by name.
func (c *Client) Presets() []PresetItem {
	names := c.cfgs.Presets()
	items := make([]PresetItem, 0, len(names))
	for _, name := range names {
		cfg, ok := c.cfgs.Preset(name)
		if !ok {
			continue
		}
		items = append(items, PresetItem{Name: name, Config: cfg})
	}
	return items
}

// resolveSessionID applies the id-or-latest convention shared by the
// store-backed lookups. op names the caller for the error message.
func (c *Client) resolveSessionID(ctx context.Context, id string, latest bool, op string) (string, error) {
	if id != "" && latest {
		return "", errors.New("use either session id or latest")
	}
	if id != "" {
		return id, nil
	}
	if !latest {
		return "", fmt.Errorf("%s requires session id or latest", op)
	}
	records, err := c.store.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.New("no sessions recorded")
	}
	return records[0].ID, nil
}

// resolveConfig builds the effective configuration from a preset name and a
// patch. An empty or "custom" name starts from the defaults.
func (c *Client) resolveConfig(name string, patch model.ConfigPatch) (model.Config, error) {
	cfg := config.DefaultConfig()
	if name != "" && name != config.PresetCustom {
		preset, ok := c.cfgs.Preset(name)
		if !ok {
			return model.Config{}, fmt.Errorf("unknown preset: %s", name)
		}
		cfg = preset
	}
	return patch.Apply(cfg), nil
}

// presetLabel names the configuration a run was recorded with. Any patch on
// top of a preset makes the effective configuration hand-tuned.
func presetLabel(name string, patch model.ConfigPatch) string {
	if !patch.IsZero() {
		return config.PresetCustom
	}
	if name == "" {
		return config.PresetDefault
	}
	return name
}

func generationRecord(snap model.Snapshot, derived stats.Derived) model.GenerationRecord {
	return model.GenerationRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		Generation:      snap.Stats.Generation,
		Stats:           snap.Stats,
		Cooperators:     derived.Categories.Cooperators,
		Defectors:       derived.Categories.Defectors,
		CooperationRate: derived.Categories.CooperationRate,
	}
}

// historyCollector folds published snapshots into generation records. The
// initial bind publishes generation zero, which is not a completed
// generation and is skipped.
type historyCollector struct {
	cfg        model.Config
	onSnapshot func(model.Snapshot, stats.Derived)

	mu      sync.Mutex
	lastGen int
	history []model.GenerationRecord
}

func (h *historyCollector) observe(snap model.Snapshot) {
	derived := stats.Summarize(snap, h.cfg)
	h.mu.Lock()
	if snap.Stats.Generation > h.lastGen {
		h.lastGen = snap.Stats.Generation
		h.history = append(h.history, generationRecord(snap, derived))
	}
	h.mu.Unlock()
	if h.onSnapshot != nil {
		h.onSnapshot(snap, derived)
	}
}

func (h *historyCollector) records() []model.GenerationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.GenerationRecord, len(h.history))
	copy(out, h.history)
	return out
}
