package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"agon/internal/config"
	"agon/internal/engine"
	"agon/internal/model"
)

const (
	// fastInterval drives real scheduler ticks in tests that need them.
	fastInterval = 5 * time.Millisecond
	// slowInterval keeps the scheduler armed but silent for the duration of
	// a test.
	slowInterval = time.Hour
)

func newTestController(t *testing.T, factory engine.Factory, interval time.Duration) (*Controller, *config.Store) {
	t.Helper()
	store := config.New(testConfig(), quietLogger())
	ctrl, err := NewController(Config{
		Factory:         factory,
		Configs:         store,
		Logger:          quietLogger(),
		AutoRunInterval: interval,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(ctrl.Teardown)
	return ctrl, store
}

type snapCollector struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (c *snapCollector) add(snap model.Snapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, snap)
	c.mu.Unlock()
}

func (c *snapCollector) all() []model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Snapshot(nil), c.snaps...)
}

func TestControllerRequiresFactoryAndConfigs(t *testing.T) {
	if _, err := NewController(Config{}); err == nil {
		t.Fatal("expected error without factory")
	}
	if _, err := NewController(Config{Factory: newFakeFactory()}); err == nil {
		t.Fatal("expected error without config store")
	}

	store := config.New(testConfig(), quietLogger())
	ctrl, err := NewController(Config{Factory: newFakeFactory(), Configs: store, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	defer ctrl.Teardown()
	if ctrl.ID() == "" {
		t.Fatal("expected a session id")
	}
}

func TestCreateNewBindsFreshEngine(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if ctrl.Bound() {
		t.Fatal("fresh controller should hold no engine")
	}
	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ctrl.Bound() {
		t.Fatal("expected a bound engine")
	}
	if factory.constructs() != 1 {
		t.Fatalf("expected 1 construct, got %d", factory.constructs())
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}

	snap := ctrl.Snapshot()
	if snap.Seq != 1 {
		t.Fatalf("expected first publication seq 1, got %d", snap.Seq)
	}
	if snap.Stats.Generation != 0 {
		t.Fatalf("expected generation 0, got %d", snap.Stats.Generation)
	}
	if snap.CapturedAt.IsZero() {
		t.Fatal("expected a publication timestamp")
	}
}

func TestCreateNewReleasesPreviousEngineFirst(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if factory.constructs() != 2 {
		t.Fatalf("expected 2 constructs, got %d", factory.constructs())
	}
	if factory.engine(0).releases() != 1 {
		t.Fatal("previous engine must be released before the new one is built")
	}
	want := []string{"construct", "release", "construct"}
	got := factory.ops.all()
	if len(got) != len(want) {
		t.Fatalf("unexpected op log: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op %d: got %s want %s (log %v)", i, got[i], want[i], got)
		}
	}
}

func TestCreateNewAppliesDimensionOverride(t *testing.T) {
	factory := newFakeFactory()
	ctrl, store := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{Width: 99, Height: 77}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cfg := store.Get()
	if cfg.WorldWidth != 99 || cfg.WorldHeight != 77 {
		t.Fatalf("expected 99x77 world, got %dx%d", cfg.WorldWidth, cfg.WorldHeight)
	}
	eng := factory.last()
	if eng.cfg.WorldWidth != 99 || eng.cfg.WorldHeight != 77 {
		t.Fatalf("engine got %dx%d", eng.cfg.WorldWidth, eng.cfg.WorldHeight)
	}
}

func TestCreateNewConstructFailure(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	factory.setNewErr(engine.NewConstructError("population_size", "must be at least 2"))
	err := ctrl.CreateNew(testConfig(), model.Dimensions{})
	if err == nil {
		t.Fatal("expected construct failure")
	}
	var cerr *engine.ConstructError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected construct error, got %v", err)
	}
	if ctrl.Bound() {
		t.Fatal("controller must hold no engine after failed construct")
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}
	ev, ok := ctrl.Errors().Last()
	if !ok || ev.Op != "bind" || ev.Warning {
		t.Fatalf("expected fatal bind event, got %+v ok=%t", ev, ok)
	}

	// A corrected configuration binds again.
	factory.setNewErr(nil)
	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create after fix: %v", err)
	}
	if !ctrl.Bound() {
		t.Fatal("expected a bound engine after fix")
	}
}

func TestUpdateConfigurationRebindsMergedConfig(t *testing.T) {
	factory := newFakeFactory()
	ctrl, store := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	pop := 12
	if err := ctrl.UpdateConfiguration(model.ConfigPatch{PopulationSize: &pop}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if factory.constructs() != 2 {
		t.Fatalf("expected rebind, got %d constructs", factory.constructs())
	}
	if factory.engine(0).releases() != 1 {
		t.Fatal("previous engine should be released")
	}
	cfg := store.Get()
	if cfg.PopulationSize != 12 {
		t.Fatalf("expected population 12, got %d", cfg.PopulationSize)
	}
	if cfg.WorldWidth != testConfig().WorldWidth {
		t.Fatal("unpatched fields must keep their values")
	}
	if got := ctrl.Config(); got != cfg {
		t.Fatalf("controller config mismatch: %+v vs %+v", got, cfg)
	}
}

func TestApplyPreset(t *testing.T) {
	factory := newFakeFactory()
	ctrl, store := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ctrl.ApplyPreset("skirmish"); err != nil {
		t.Fatalf("apply preset: %v", err)
	}
	if factory.constructs() != 2 {
		t.Fatalf("expected rebind, got %d constructs", factory.constructs())
	}
	if got := store.Get().PopulationSize; got != 16 {
		t.Fatalf("expected skirmish population 16, got %d", got)
	}

	if err := ctrl.ApplyPreset("no-such-preset"); err == nil {
		t.Fatal("expected unknown preset to fail")
	}
	if factory.constructs() != 2 {
		t.Fatal("unknown preset must not rebind")
	}
	if got := store.Get().PopulationSize; got != 16 {
		t.Fatal("unknown preset must leave the configuration untouched")
	}

	// The custom pseudo-preset keeps everything as-is.
	if err := ctrl.ApplyPreset(config.PresetCustom); err != nil {
		t.Fatalf("apply custom: %v", err)
	}
	if factory.constructs() != 2 {
		t.Fatal("custom preset must not rebind")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := ctrl.Status(); got != model.StatusRunning {
		t.Fatalf("expected running, got %v", got)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("start must not arm auto-run on its own")
	}
	if err := ctrl.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	ctrl.AutoRun().Enable(slowInterval)
	ctrl.Stop()
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle after stop, got %v", got)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("stop must disarm auto-run")
	}
	ctrl.Stop()
}

func TestStartWithoutEngineBindsCurrentConfig(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if factory.constructs() != 1 {
		t.Fatalf("expected start to bind, got %d constructs", factory.constructs())
	}
	if !ctrl.Bound() {
		t.Fatal("expected a bound engine")
	}
	if got := ctrl.Status(); got != model.StatusRunning {
		t.Fatalf("expected running, got %v", got)
	}
}

func TestStartBindFailureStaysIdle(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	factory.setNewErr(engine.NewConstructError("world_width", "must be positive"))
	if err := ctrl.Start(); err == nil {
		t.Fatal("expected start to fail")
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("auto-run must not be armed after failed start")
	}
}

func TestManualAdvanceBusyWhileAutoRunOwnsSession(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(slowInterval)

	if _, err := ctrl.Step(); !errors.Is(err, ErrBusy) {
		t.Fatalf("step: expected ErrBusy, got %v", err)
	}
	if _, err := ctrl.RunGeneration(); !errors.Is(err, ErrBusy) {
		t.Fatalf("run generation: expected ErrBusy, got %v", err)
	}
	if _, err := ctrl.RunMany(3); !errors.Is(err, ErrBusy) {
		t.Fatalf("run many: expected ErrBusy, got %v", err)
	}

	ctrl.Stop()
	if _, err := ctrl.Step(); err != nil {
		t.Fatalf("step after stop: %v", err)
	}
}

func TestStartThenManualGenerationsFinishSession(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// A scheduler armed before the start must not block the manual advances:
	// the start resets the engine, which parks the scheduler.
	ctrl.AutoRun().Enable(slowInterval)
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	for want := 1; want <= 5; want++ {
		snap, err := ctrl.RunGeneration()
		if err != nil {
			t.Fatalf("run generation %d: %v", want, err)
		}
		if snap.Stats.Generation != want {
			t.Fatalf("expected generation %d, got %d", want, snap.Stats.Generation)
		}
	}
	if got := ctrl.Status(); got != model.StatusFinished {
		t.Fatalf("expected finished after the cap, got %v", got)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("auto-run must end disabled")
	}
}

func TestManualAdvancesPublishInOrderAndFinish(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := ctrl.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if snap.Seq != 2 || snap.Stats.Generation != 1 {
		t.Fatalf("step: seq=%d gen=%d", snap.Seq, snap.Stats.Generation)
	}

	snap, err = ctrl.RunGeneration()
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	if snap.Seq != 3 || snap.Stats.Generation != 2 {
		t.Fatalf("run generation: seq=%d gen=%d", snap.Seq, snap.Stats.Generation)
	}

	snap, err = ctrl.RunMany(10)
	if err != nil {
		t.Fatalf("run many: %v", err)
	}
	if snap.Stats.Generation != 5 {
		t.Fatalf("expected generation capped at 5, got %d", snap.Stats.Generation)
	}
	if got := ctrl.Status(); got != model.StatusFinished {
		t.Fatalf("expected finished, got %v", got)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("finishing must disarm auto-run")
	}

	// Advancing a finished session is allowed and stays finished.
	snap, err = ctrl.Step()
	if err != nil {
		t.Fatalf("step after finish: %v", err)
	}
	if snap.Stats.Generation != 5 {
		t.Fatalf("expected generation to stay at 5, got %d", snap.Stats.Generation)
	}
	if got := ctrl.Status(); got != model.StatusFinished {
		t.Fatalf("expected finished, got %v", got)
	}
}

func TestAdvanceRequiresEngine(t *testing.T) {
	ctrl, _ := newTestController(t, newFakeFactory(), slowInterval)

	if _, err := ctrl.Step(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
	if err := ctrl.Reset(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("reset: expected ErrNotBound, got %v", err)
	}
}

func TestConcurrentManualAdvanceReturnsBusy(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	eng := factory.last()
	started, release := eng.blockAdvances()

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.RunGeneration()
		errCh <- err
	}()

	<-started
	if _, err := ctrl.Step(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while another advance runs, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("blocked advance: %v", err)
	}
	if eng.overlapped() {
		t.Fatal("engine saw overlapping advances")
	}
	if got := ctrl.Snapshot().Stats.Generation; got != 1 {
		t.Fatalf("expected generation 1, got %d", got)
	}
}

func TestEngineFailureDuringAutoRunForcesIdle(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, fastInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	factory.last().setAdvanceErr(engine.NewRuntimeError("generation", errors.New("population extinct")))

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(fastInterval)
	waitFor(t, 2*time.Second, "fatal event", func() bool {
		_, ok := ctrl.Errors().Last()
		return ok
	})
	waitFor(t, 2*time.Second, "auto-run disabled", func() bool {
		return !ctrl.AutoRun().Enabled()
	})
	waitFor(t, 2*time.Second, "idle status", func() bool {
		return ctrl.Status() == model.StatusIdle
	})

	ev, _ := ctrl.Errors().Last()
	if ev.Op != "auto_run" || ev.Warning {
		t.Fatalf("unexpected event: %+v", ev)
	}
	var rerr *engine.RuntimeError
	if !errors.As(ev.Err, &rerr) {
		t.Fatalf("expected runtime error, got %v", ev.Err)
	}
	if !ctrl.Bound() {
		t.Fatal("engine failure must not unbind the session")
	}
}

func TestSnapshotWarningKeepsSessionAlive(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	eng := factory.last()
	eng.setSnapshotErr(errors.New("serialize failed"))

	snap, err := ctrl.Step()
	if err != nil {
		t.Fatalf("degraded step must still succeed, got %v", err)
	}
	if snap.Seq != 2 {
		t.Fatalf("degraded snapshot must still be published, seq=%d", snap.Seq)
	}
	if snap.Stats.Generation != 0 || len(snap.Agents) != 0 {
		t.Fatalf("expected degraded snapshot at last known generation, got %+v", snap.Stats)
	}
	ev, ok := ctrl.Errors().Last()
	if !ok || !ev.Warning || ev.Op != "step" {
		t.Fatalf("expected step warning, got %+v ok=%t", ev, ok)
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("warning must not change status, got %v", got)
	}
	if eng.generation() != 1 {
		t.Fatal("engine should have advanced despite the bad snapshot")
	}

	eng.setSnapshotErr(nil)
	snap, err = ctrl.Step()
	if err != nil {
		t.Fatalf("step after recovery: %v", err)
	}
	if snap.Stats.Generation != 2 {
		t.Fatalf("expected generation 2 after recovery, got %d", snap.Stats.Generation)
	}
}

func TestAutoRunDrivesSessionToFinished(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, fastInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(fastInterval)

	waitFor(t, 2*time.Second, "finished status", func() bool {
		return ctrl.Status() == model.StatusFinished
	})
	if ctrl.AutoRun().Enabled() {
		t.Fatal("finishing must disarm auto-run")
	}

	eng := factory.last()
	if got := eng.generation(); got != 5 {
		t.Fatalf("expected generation 5, got %d", got)
	}
	// One generation per tick, no tick after the finish.
	time.Sleep(3 * fastInterval)
	if got := eng.advances(); got != 5 {
		t.Fatalf("expected exactly 5 advances, got %d", got)
	}
	if eng.overlapped() {
		t.Fatal("engine saw overlapping advances")
	}
	if got := ctrl.Snapshot().Stats.Generation; got != 5 {
		t.Fatalf("expected final snapshot at generation 5, got %d", got)
	}
}

func TestRebindDuringAutoRunDisablesSchedulerFirst(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, fastInterval)

	cfg := testConfig()
	cfg.MaxGenerations = 1000
	if err := ctrl.CreateNew(cfg, model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := factory.last()
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(fastInterval)
	waitFor(t, 2*time.Second, "auto-run progress", func() bool {
		return first.generation() >= 1
	})

	rate := 0.3
	if err := ctrl.UpdateConfiguration(model.ConfigPatch{MutationRate: &rate}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if ctrl.AutoRun().Enabled() {
		t.Fatal("rebinding must disable auto-run first")
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle after rebind, got %v", got)
	}
	if factory.constructs() != 2 {
		t.Fatalf("expected 2 constructs, got %d", factory.constructs())
	}
	if first.releases() != 1 {
		t.Fatal("old engine must be released")
	}

	// Give any straggler tick time to fire; it must be dropped, not advance
	// the fresh engine.
	time.Sleep(4 * fastInterval)
	ops := factory.ops.all()
	lastConstruct := -1
	for i, op := range ops {
		if op == "construct" {
			lastConstruct = i
		}
	}
	for _, op := range ops[lastConstruct+1:] {
		if op == "advance" {
			t.Fatalf("advance after rebind: %v", ops)
		}
	}
	if factory.last().advances() != 0 {
		t.Fatal("fresh engine must not have advanced")
	}
	if first.overlapped() || factory.last().overlapped() {
		t.Fatal("engines saw overlapping advances")
	}
}

func TestStopMidTickNeverDoubleAdvances(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, fastInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	eng := factory.last()
	started, release := eng.blockAdvances()

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(fastInterval)
	<-started

	// Disable while the tick is inside the engine: it returns immediately
	// and the in-flight advance completes on its own.
	ctrl.Stop()
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle right after stop, got %v", got)
	}

	close(release)
	waitFor(t, 2*time.Second, "in-flight advance to complete", func() bool {
		return eng.advances() == 1
	})
	time.Sleep(4 * fastInterval)
	if got := eng.advances(); got != 1 {
		t.Fatalf("tick fired after disable: %d advances", got)
	}
	if eng.overlapped() {
		t.Fatal("engine saw overlapping advances")
	}
}

func TestTickDropsWhenEngineBusy(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	eng := factory.last()
	started, release := eng.blockAdvances()

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ctrl.autoTick()
		close(done)
	}()
	<-started

	// A second tick while the first is mid-advance must drop, not queue.
	ctrl.autoTick()
	if got := eng.advances(); got != 0 {
		t.Fatalf("dropped tick advanced the engine: %d", got)
	}

	close(release)
	<-done
	if got := eng.advances(); got != 1 {
		t.Fatalf("expected exactly one advance, got %d", got)
	}
	if eng.overlapped() {
		t.Fatal("engine saw overlapping advances")
	}
}

func TestResetReturnsToGenerationZero(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ctrl.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if _, err := ctrl.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := ctrl.Snapshot().Stats.Generation; got != 0 {
		t.Fatalf("expected generation 0 after reset, got %d", got)
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}
	if factory.last().resetCount() != 1 {
		t.Fatal("expected one engine reset")
	}
	// Still the same engine instance.
	if factory.constructs() != 1 {
		t.Fatal("reset must not rebind")
	}
}

func TestResetWhileRunningStopsAutoRun(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(slowInterval)

	if err := ctrl.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("reset must disable auto-run")
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}
}

func TestResetEngineFailureReports(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	factory.last().setResetErr(errors.New("engine wedged"))

	if err := ctrl.Reset(); err == nil {
		t.Fatal("expected reset failure")
	}
	ev, ok := ctrl.Errors().Last()
	if !ok || ev.Op != "reset" || ev.Warning {
		t.Fatalf("expected fatal reset event, got %+v ok=%t", ev, ok)
	}
}

func TestStartAfterManualSteppingResetsFirst(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ctrl.RunGeneration(); err != nil {
			t.Fatalf("run generation %d: %v", i, err)
		}
	}
	eng := factory.last()
	if got := eng.generation(); got != 3 {
		t.Fatalf("expected generation 3 before start, got %d", got)
	}

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if eng.resetCount() != 1 {
		t.Fatal("starting a stepped session must reset it")
	}
	if got := eng.generation(); got != 0 {
		t.Fatalf("expected generation 0 after start, got %d", got)
	}
	if got := ctrl.Snapshot().Stats.Generation; got != 0 {
		t.Fatalf("expected a generation 0 publication, got %d", got)
	}
	if got := ctrl.Status(); got != model.StatusRunning {
		t.Fatalf("expected running, got %v", got)
	}
	// Reset in place, same engine instance.
	if factory.constructs() != 1 {
		t.Fatal("start must not rebind a healthy engine")
	}
	ctrl.Stop()
}

func TestStartAfterFinishedResetsFirst(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ctrl.RunMany(10); err != nil {
		t.Fatalf("run many: %v", err)
	}
	if got := ctrl.Status(); got != model.StatusFinished {
		t.Fatalf("expected finished, got %v", got)
	}

	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if factory.last().resetCount() != 1 {
		t.Fatal("starting a finished session must reset it")
	}
	if got := ctrl.Status(); got != model.StatusRunning {
		t.Fatalf("expected running, got %v", got)
	}
	if got := ctrl.Snapshot().Stats.Generation; got != 0 {
		t.Fatalf("expected generation 0 after restart, got %d", got)
	}
	ctrl.Stop()
}

func TestTeardownReleasesEngineAndCloses(t *testing.T) {
	factory := newFakeFactory()
	ctrl, store := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl.AutoRun().Enable(slowInterval)

	ctrl.Teardown()
	if ctrl.Bound() {
		t.Fatal("teardown must release the engine")
	}
	if factory.engine(0).releases() != 1 {
		t.Fatalf("expected one release, got %d", factory.engine(0).releases())
	}
	if ctrl.AutoRun().Enabled() {
		t.Fatal("teardown must disable auto-run")
	}
	if got := ctrl.Status(); got != model.StatusIdle {
		t.Fatalf("expected idle, got %v", got)
	}

	ctrl.Teardown()
	if factory.engine(0).releases() != 1 {
		t.Fatal("second teardown must be a no-op")
	}

	// Detached from the store: config changes no longer rebind.
	store.Replace(testConfig())
	if factory.constructs() != 1 {
		t.Fatal("closed controller must ignore config changes")
	}

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("create: expected ErrClosed, got %v", err)
	}
	if err := ctrl.UpdateConfiguration(model.ConfigPatch{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("update: expected ErrClosed, got %v", err)
	}
	if err := ctrl.ApplyPreset("skirmish"); !errors.Is(err, ErrClosed) {
		t.Fatalf("preset: expected ErrClosed, got %v", err)
	}
	if err := ctrl.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("start: expected ErrClosed, got %v", err)
	}
	if _, err := ctrl.Step(); !errors.Is(err, ErrClosed) {
		t.Fatalf("step: expected ErrClosed, got %v", err)
	}
	if err := ctrl.Reset(); !errors.Is(err, ErrClosed) {
		t.Fatalf("reset: expected ErrClosed, got %v", err)
	}
	ctrl.Stop()
}

func TestSubscribersReceiveOrderedCopies(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	col := &snapCollector{}
	cancel := ctrl.Subscribe(col.add)
	for i := 0; i < 3; i++ {
		if _, err := ctrl.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	snaps := col.all()
	if len(snaps) != 3 {
		t.Fatalf("expected 3 publications, got %d", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Stats.Generation != i+1 {
			t.Fatalf("publication %d at generation %d", i, snap.Stats.Generation)
		}
		if i > 0 && snaps[i].Seq <= snaps[i-1].Seq {
			t.Fatalf("sequence not increasing: %d then %d", snaps[i-1].Seq, snaps[i].Seq)
		}
	}

	cancel()
	if _, err := ctrl.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := len(col.all()); got != 3 {
		t.Fatalf("unsubscribed observer still notified: %d", got)
	}
}

func TestSnapshotAccessorReturnsCopy(t *testing.T) {
	factory := newFakeFactory()
	ctrl, _ := newTestController(t, factory, slowInterval)

	if err := ctrl.CreateNew(testConfig(), model.Dimensions{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap := ctrl.Snapshot()
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(snap.Agents))
	}
	snap.Agents[0].ID = "mutated"

	again := ctrl.Snapshot()
	if again.Agents[0].ID == "mutated" {
		t.Fatal("stored snapshot must not share agent backing arrays")
	}
}
