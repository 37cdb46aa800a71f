package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"TorchLedger/internal/config"
	"TorchLedger/internal/export"
	"TorchLedger/internal/history"
	"TorchLedger/internal/inventory"
	"TorchLedger/internal/logger"
	"TorchLedger/internal/parser"
	"TorchLedger/internal/prefs"
	"TorchLedger/internal/pricing"
	"TorchLedger/internal/tailer"
	"TorchLedger/internal/tracker"
	"TorchLedger/internal/types"
)

// ErrNoTable is returned by operations that need the item table before Startup loaded it.
var ErrNoTable = errors.New("item table not loaded")

// App wires the tailer, parser, inventory differ and tracker, and manages the tracking lifecycle.
type App struct {
	mu  sync.Mutex
	ctx context.Context

	cfg          *config.Config
	log          *zap.Logger
	journal      *zap.Logger
	closeJournal func() error
	table        *pricing.Table
	hist         *history.Store
	prefs        prefs.Prefs
	prefsPath    string

	trk     *tracker.Tracker
	inv     *inventory.Differ
	p       *parser.Parser
	t       *tailer.Tailer
	cancel  context.CancelFunc
	done    chan struct{}
	drained chan struct{} // closed once every tailed line was handled
	logPath string
	replay  bool // reading from the start of the file; event time drives the clock

	subs    map[int]chan UIState
	nextSub int

	// tracking lifecycle timestamps & pause state (app-level session control)
	trackStartedAt   time.Time
	trackStoppedAt   time.Time
	trackPaused      bool
	trackPausedAt    time.Time
	trackPausedAccum time.Duration
	lastEventAt      time.Time // last parsed event time, used to clamp durations when parsing old logs

	// BagMod lines sharing one timestamp, applied as one batch. Owned by the
	// goroutine feeding handle.
	mods   []types.BagEvent
	modsAt time.Time
}

type Option func(*App)

func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTable uses t instead of loading the item table on Startup.
func WithTable(t *pricing.Table) Option { return func(a *App) { a.table = t } }

// WithHistory uses s instead of opening the configured database on Startup.
func WithHistory(s *history.Store) Option { return func(a *App) { a.hist = s } }

// WithJournal uses l as the drop journal instead of opening the configured file.
func WithJournal(l *zap.Logger) Option { return func(a *App) { a.journal = l } }

// WithPrefs applies p and saves changes to path. An empty path disables saving.
func WithPrefs(p prefs.Prefs, path string) Option {
	return func(a *App) {
		a.prefs = p.Normalize()
		a.prefsPath = path
	}
}

func New(cfg *config.Config, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{
		ctx:   context.Background(),
		cfg:   cfg,
		log:   zap.NewNop(),
		prefs: prefs.Default(),
		subs:  make(map[int]chan UIState),
		p:     parser.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.Named("app")
	a.inv = inventory.New(inventory.WithLogger(a.log), inventory.WithMinInitSlots(cfg.Tracker.MinInitSlots))
	a.trk = a.newTracker()
	return a
}

func (a *App) newTracker() *tracker.Tracker {
	opts := []tracker.Option{
		tracker.WithTax(a.prefs.Tax),
		tracker.WithMapCost(a.cfg.Tracker.MapCost),
		tracker.WithExclude(a.prefs.Exclude),
		tracker.WithLogger(a.log),
	}
	if a.table != nil {
		opts = append(opts, tracker.WithCatalog(a.table))
	}
	return tracker.New(opts...)
}

// Startup loads the item table and opens the drop journal and run history.
// Journal and history failures are logged and tracking continues without them.
func (a *App) Startup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx

	if a.table == nil {
		tbl, err := pricing.LoadTable(a.cfg.Prices.TablePath, a.log)
		if err != nil {
			return fmt.Errorf("load item table: %w", err)
		}
		a.table = tbl
		a.trk = a.newTracker()
	}
	if a.journal == nil && a.cfg.Storage.DropLog != "" {
		j, closeFn, err := logger.NewJournal(a.cfg.Storage.DropLog)
		if err != nil {
			a.log.Warn("drop journal disabled", zap.Error(err))
		} else {
			a.journal, a.closeJournal = j, closeFn
		}
	}
	if a.hist == nil && a.cfg.Storage.HistoryDB != "" {
		s, err := history.Open(a.cfg.Storage.HistoryDB)
		if err != nil {
			a.log.Warn("run history disabled", zap.Error(err))
		} else {
			a.hist = s
		}
	}
	if a.cfg.Prices.RefreshOnStart {
		go func() {
			if _, _, err := a.RefreshPrices(ctx); err != nil {
				a.log.Warn("price refresh failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Shutdown stops tracking and closes the journal and history.
func (a *App) Shutdown() {
	a.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closeJournal != nil {
		_ = a.closeJournal()
		a.closeJournal = nil
		a.journal = nil
	}
	if a.hist != nil {
		_ = a.hist.Close()
		a.hist = nil
	}
}

// Start tracks the configured game log.
func (a *App) Start(fromStart bool) error {
	path, err := a.cfg.Tracker.ResolveLogPath()
	if err != nil {
		return err
	}
	return a.StartTrackingWithOptions(path, fromStart)
}

// StartTracking starts tailing the given log path from its end.
func (a *App) StartTracking(logPath string) error {
	return a.StartTrackingWithOptions(logPath, false)
}

// StartTrackingWithOptions allows the caller to control whether to read from the start.
func (a *App) StartTrackingWithOptions(logPath string, fromStart bool) error {
	if logPath == "" {
		return tailer.ErrEmptyPath
	}
	a.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	// mark session start now; clear pause/stop state
	a.trackStartedAt = time.Now()
	a.trackStoppedAt = time.Time{}
	a.trackPaused = false
	a.trackPausedAt = time.Time{}
	a.trackPausedAccum = 0
	a.lastEventAt = time.Time{}
	a.logPath = logPath
	a.replay = fromStart

	ctx, cancel := context.WithCancel(a.ctx)
	done, drained := make(chan struct{}), make(chan struct{})
	a.cancel, a.done, a.drained = cancel, done, drained

	tl := tailer.New(tailer.Options{
		Path:      logPath,
		FromStart: fromStart,
		PollEvery: a.cfg.Tracker.PollInterval(),
		Resume:    a.resumePoint(logPath, fromStart),
		Watch:     true,
		Logger:    a.log,
	})
	a.t = tl
	lines := make(chan string, 2048)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(lines)
		if err := tl.Start(gctx, lines); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer close(drained)
		return a.consume(gctx, lines)
	})
	g.Go(func() error { return a.emit(gctx) })
	go func() {
		defer close(done)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("tracking stopped", zap.Error(err))
		}
	}()

	a.log.Info("tracking started", zap.String("path", logPath), zap.Bool("from_start", fromStart))
	return nil
}

// Running reports whether the tracking pipeline is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Stop tracking and background goroutines. Also marks the session as stopped.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done, drained := a.cancel, a.done, a.drained
	tl, logPath := a.t, a.logPath
	a.cancel, a.done, a.drained = nil, nil, nil
	// finalize pause accumulation if paused
	now := time.Now()
	if a.trackPaused && !a.trackPausedAt.IsZero() {
		a.trackPausedAccum += now.Sub(a.trackPausedAt)
		a.trackPaused = false
		a.trackPausedAt = time.Time{}
	}
	if !a.trackStartedAt.IsZero() && a.trackStoppedAt.IsZero() {
		a.trackStoppedAt = now
	}
	a.mu.Unlock()

	if tl != nil && drained != nil {
		// Stop reading first so every line already read is still handled.
		tl.Stop()
		select {
		case <-drained:
		case <-time.After(drainTimeout):
			a.log.Warn("tracking did not drain in time")
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
		a.savePosition(tl, logPath)
		a.log.Info("tracking stopped")
	}
}

// drainTimeout bounds how long Stop waits for buffered lines to be handled.
const drainTimeout = 5 * time.Second

// resumePoint is the saved read position for path. It is only used when the
// log is not replayed from the start. Caller holds a.mu.
func (a *App) resumePoint(path string, fromStart bool) tailer.Checkpoint {
	if fromStart || a.hist == nil {
		return tailer.Checkpoint{}
	}
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	pos, ok, err := a.hist.Position(ctx, path)
	if err != nil {
		a.log.Warn("load log position", zap.Error(err))
		return tailer.Checkpoint{}
	}
	if !ok {
		return tailer.Checkpoint{}
	}
	a.log.Info("resuming log", zap.String("path", path), zap.Int64("offset", pos.Offset))
	return tailer.Checkpoint{Offset: pos.Offset, Head: pos.Head}
}

func (a *App) savePosition(tl *tailer.Tailer, path string) {
	store := a.History()
	if tl == nil || store == nil {
		return
	}
	cp, err := tl.Checkpoint()
	if err != nil {
		a.log.Debug("no log position to save", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.SavePosition(ctx, path, history.Position{Offset: cp.Offset, Head: cp.Head}); err != nil {
		a.log.Warn("save log position", zap.Error(err))
	}
}

// Reset clears the statistics (does not stop tracking). Bag state is kept.
func (a *App) Reset() {
	a.trk.ResetAt(a.clock())
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackStartedAt = time.Time{}
	if a.cancel != nil {
		a.trackStartedAt = time.Now()
	}
	a.trackStoppedAt = time.Time{}
	a.trackPaused = false
	a.trackPausedAt = time.Time{}
	a.trackPausedAccum = 0
}

// PauseSession pauses the app-level session timer.
func (a *App) PauseSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trackStartedAt.IsZero() || a.trackPaused || !a.trackStoppedAt.IsZero() {
		return
	}
	a.trackPaused = true
	a.trackPausedAt = time.Now()
}

// ResumeSession resumes the app-level session timer.
func (a *App) ResumeSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.trackPaused || a.trackPausedAt.IsZero() {
		return
	}
	a.trackPausedAccum += time.Since(a.trackPausedAt)
	a.trackPaused = false
	a.trackPausedAt = time.Time{}
}

// TogglePause pauses a running session or resumes a paused one.
func (a *App) TogglePause() {
	a.mu.Lock()
	paused := a.trackPaused
	a.mu.Unlock()
	if paused {
		a.ResumeSession()
	} else {
		a.PauseSession()
	}
}

// BeginInit arms the inventory differ to take the next full bag dump
// (sorting the bag in game triggers one) as its baseline.
func (a *App) BeginInit() bool {
	return a.inv.BeginInit()
}

// Prefs returns the current preferences.
func (a *App) Prefs() prefs.Prefs {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prefs
}

// SetTax turns the market fee on or off and persists the choice.
func (a *App) SetTax(on bool) {
	a.trk.SetTax(on)
	a.updatePrefs(func(p *prefs.Prefs) { p.Tax = on })
}

// ToggleTax flips the market fee setting and returns the new value.
func (a *App) ToggleTax() bool {
	on := !a.trk.Tax()
	a.SetTax(on)
	return on
}

// CycleFilter advances the drops filter and returns it.
func (a *App) CycleFilter() pricing.Filter {
	var next pricing.Filter
	a.updatePrefs(func(p *prefs.Prefs) {
		next = pricing.Filter(p.Filter).Next()
		p.Filter = string(next)
	})
	return next
}

// SetExclude replaces the list of item names that never count.
func (a *App) SetExclude(names []string) {
	a.trk.SetExclude(names)
	a.updatePrefs(func(p *prefs.Prefs) { p.Exclude = append([]string(nil), names...) })
}

func (a *App) updatePrefs(fn func(*prefs.Prefs)) {
	a.mu.Lock()
	fn(&a.prefs)
	p, path := a.prefs, a.prefsPath
	a.mu.Unlock()
	if path == "" {
		return
	}
	if err := prefs.Save(path, p); err != nil {
		a.log.Warn("save preferences", zap.Error(err))
	}
}

// Table returns the item table, nil before Startup.
func (a *App) Table() *pricing.Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table
}

// History returns the run history store, nil when disabled.
func (a *App) History() *history.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hist
}

// Tracker exposes the statistics aggregator.
func (a *App) Tracker() *tracker.Tracker { return a.trk }

// RefreshPrices merges the remote price feed into the item table and saves it.
func (a *App) RefreshPrices(ctx context.Context) (changed, matched int, err error) {
	tbl := a.Table()
	if tbl == nil {
		return 0, 0, ErrNoTable
	}
	feed := pricing.Feed{Endpoint: a.cfg.Prices.Endpoint, Timeout: a.cfg.Prices.Timeout}
	changed, matched, remote, err := tbl.Refresh(ctx, feed)
	if err != nil {
		return 0, 0, err
	}
	if changed > 0 {
		if err := tbl.Save(); err != nil {
			return changed, matched, fmt.Errorf("save item table: %w", err)
		}
	}
	a.log.Info("price refresh",
		zap.Int("updated", changed),
		zap.Int("matched", matched),
		zap.Int("remote", remote))
	return changed, matched, nil
}

// Export writes the current map (currentMap) or every map to path.
func (a *App) Export(path string, currentMap bool) (export.Summary, error) {
	tbl := a.Table()
	if tbl == nil {
		return export.Summary{}, ErrNoTable
	}
	now := a.clock()
	rep := export.Report{Kind: export.KindAll, ShowMapCount: true, Tax: a.trk.Tax()}
	if currentMap {
		rep.Kind = export.KindCurrent
		rep.ShowMapCount = false
		rep.Stats = a.trk.MapStats(now)
	} else {
		rep.Stats = a.trk.TotalStats(now)
	}
	sum, err := export.Write(path, rep, tbl, time.Now())
	if err != nil {
		return export.Summary{}, err
	}
	a.log.Info("exported drops", zap.String("path", sum.Path), zap.Int("items", sum.Items))
	return sum, nil
}

// clock is the reference time for map durations.
func (a *App) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.replay && !a.lastEventAt.IsZero() {
		return a.lastEventAt
	}
	return time.Now()
}

// Subscribe returns a channel receiving a state snapshot every second while
// tracking. Slow readers only see the latest snapshot.
func (a *App) Subscribe() (<-chan UIState, func()) {
	ch := make(chan UIState, 1)
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(st UIState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- st:
		default:
			// replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (a *App) emit(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.publish(a.UIState())
		}
	}
}
