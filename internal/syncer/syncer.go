// Package syncer coordinates background settings push and on-demand
// cloud and backup restores.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/cloud"
	"github.com/starford/chatsync/internal/debounce"
	"github.com/starford/chatsync/internal/diffgate"
	"github.com/starford/chatsync/internal/models"
	"github.com/starford/chatsync/internal/reconcile"
	"github.com/starford/chatsync/internal/settingsstore"
)

// ErrAlreadyRunning is returned by StartAutoSync when the loop is active.
var ErrAlreadyRunning = errors.New("auto-sync already running")

// SettingsStore is the local settings document.
type SettingsStore interface {
	Get() models.SettingsDocument
	Observe(ctx context.Context) <-chan models.SettingsDocument
	Update(ctx context.Context, fn settingsstore.UpdateFunc) (models.SettingsDocument, error)
}

// ConversationStore is the local conversation repository.
type ConversationStore interface {
	IDs(ctx context.Context) (map[string]struct{}, error)
	Insert(ctx context.Context, rec models.ConversationRecord) error
}

// TokenSource yields the cloud auth token, or "" when logged out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Cloud is the cloud REST service.
type Cloud interface {
	PushAll(ctx context.Context, token string, doc models.SettingsDocument) cloud.PushSummary
	FetchConversations(ctx context.Context, token string) ([]cloud.ConversationDTO, error)
	FetchAll(ctx context.Context, token string) (*cloud.Bundle, error)
	FetchPublicProvider(ctx context.Context, token string) (*cloud.PublicProvider, error)
}

// Backups is the WebDAV backup manager.
type Backups interface {
	List(ctx context.Context) ([]backup.Item, error)
	Backup(ctx context.Context) (backup.Item, error)
	Restore(ctx context.Context, name string) (backup.RestoreResult, error)
	Delete(ctx context.Context, name string) error
	TestConnection(ctx context.Context) error
	ExportToFile(ctx context.Context, dest string) (string, error)
	RestoreFromLocalFile(ctx context.Context, src string) (backup.RestoreResult, error)
}

// Options tunes an Orchestrator. Zero values pick defaults.
type Options struct {
	Window  time.Duration
	Advance AdvancePolicy
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Orchestrator owns the auto-sync loop, the last pushed snapshot and the
// observable state of every on-demand operation.
type Orchestrator struct {
	settings   SettingsStore
	convs      ConversationStore
	tokens     TokenSource
	cloud      Cloud
	backups    Backups
	reconciler *reconcile.Reconciler

	window time.Duration
	policy AdvancePolicy
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	snapshot  *models.SettingsDocument
	snapGen   uint64
	states    map[string]State
	listeners map[int]func(Event)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}

	flight      singleflight.Group
	reconcileMu sync.Mutex
}

// New returns an idle Orchestrator. backups may be nil.
func New(settings SettingsStore, convs ConversationStore, tokens TokenSource, c Cloud, backups Backups, opts Options) *Orchestrator {
	if opts.Window <= 0 {
		opts.Window = debounce.DefaultWindow
	}
	if opts.Advance == "" {
		opts.Advance = AdvanceAlways
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	o := &Orchestrator{
		settings:   settings,
		convs:      convs,
		tokens:     tokens,
		cloud:      c,
		backups:    backups,
		reconciler: reconcile.New(convs, opts.Logger),
		window:     opts.Window,
		policy:     opts.Advance,
		clock:      opts.Clock,
		logger:     opts.Logger,
		states:     make(map[string]State, len(operations)),
		listeners:  make(map[int]func(Event)),
	}
	now := o.clock.Now()
	for _, op := range operations {
		o.states[op] = State{Status: StatusIdle, UpdatedAt: now}
	}
	return o
}

// Subscribe registers fn for every state change and returns a function
// that removes it. fn must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// States returns a copy of every operation state.
func (o *Orchestrator) States() map[string]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]State, len(o.states))
	for k, v := range o.states {
		out[k] = v
	}
	return out
}

// State returns the state of one operation.
func (o *Orchestrator) State(op string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[op]
}

func (o *Orchestrator) setState(op string, st State) {
	st.UpdatedAt = o.clock.Now()
	o.mu.Lock()
	o.states[op] = st
	fns := make([]func(Event), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	ev := Event{Op: op, State: st}
	for _, fn := range fns {
		fn(ev)
	}
}

// MarkSynced records doc as the last pushed document.
func (o *Orchestrator) MarkSynced(doc models.SettingsDocument) {
	snap := doc.Clone()
	o.mu.Lock()
	o.snapshot = &snap
	o.snapGen++
	o.mu.Unlock()
	o.logger.Debug("syncer: snapshot marked", slog.Int("providers", len(doc.Providers)))
}

func (o *Orchestrator) readSnapshot() (*models.SettingsDocument, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot, o.snapGen
}

// advance marks doc unless the snapshot moved since gen was read. A push
// that started before a restore must not overwrite the restored snapshot.
func (o *Orchestrator) advance(doc models.SettingsDocument, gen uint64) {
	snap := doc.Clone()
	o.mu.Lock()
	if o.snapGen != gen {
		o.mu.Unlock()
		o.logger.Debug("syncer: snapshot moved during push, keeping newer")
		return
	}
	o.snapshot = &snap
	o.snapGen++
	o.mu.Unlock()
}

// Snapshot returns the last pushed document, if any.
func (o *Orchestrator) Snapshot() (models.SettingsDocument, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snapshot == nil {
		return models.SettingsDocument{}, false
	}
	return o.snapshot.Clone(), true
}

// StartAutoSync subscribes to settings changes and pushes every debounced
// change that differs from the snapshot. It returns immediately.
func (o *Orchestrator) StartAutoSync(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	o.mu.Unlock()

	changes := debounce.Latest(ctx, o.clock, o.window, o.settings.Observe(ctx))
	o.setState(OpAutoSync, State{Status: StatusWatching})
	o.logger.Info("syncer: auto-sync started", slog.Duration("window", o.window), slog.String("advance", string(o.policy)))

	go func() {
		defer close(done)
		for doc := range changes {
			o.cycle(ctx, doc)
		}
	}()
	return nil
}

// Stop cancels the subscription and any pending debounce, waits for an
// in-flight push to complete and leaves the loop Stopped. It is safe to
// call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	o.mu.Lock()
	stopped := o.cancel != nil
	o.cancel, o.done = nil, nil
	o.mu.Unlock()
	if stopped {
		o.setState(OpAutoSync, State{Status: StatusStopped})
		o.logger.Info("syncer: auto-sync stopped")
	}
}

// cycle handles one debounced document. Errors are logged only.
func (o *Orchestrator) cycle(ctx context.Context, doc models.SettingsDocument) {
	snap, gen := o.readSnapshot()
	if !diffgate.ShouldSync(doc, snap) {
		return
	}

	o.setState(OpAutoSync, State{Status: StatusPushing})
	defer o.setState(OpAutoSync, State{Status: StatusWatching})

	token, err := o.tokens.Token(ctx)
	if err != nil {
		o.logger.Warn("syncer: read token", slog.String("error", err.Error()))
	}
	if token == "" {
		o.logger.Debug("syncer: no token, skipping push")
		if o.policy == AdvanceAlways {
			o.advance(doc, gen)
		}
		return
	}

	// In-flight uploads outlive Stop; the HTTP client timeout bounds them.
	sum := o.cloud.PushAll(context.WithoutCancel(ctx), token, doc)
	o.logSummary(sum)
	if o.policy == AdvanceAlways || sum.OK() {
		o.advance(doc, gen)
	}
}

func (o *Orchestrator) logSummary(sum cloud.PushSummary) {
	for name, err := range map[string]error{
		"providers":  sum.Providers,
		"assistants": sum.Assistants,
		"settings":   sum.Settings,
	} {
		if err != nil {
			o.logger.Warn("syncer: push failed", slog.String("document", name), slog.String("error", err.Error()))
		}
	}
	if sum.OK() {
		o.logger.Info("syncer: settings pushed")
	}
}

// run executes fn as the single in-flight instance of op, resolving the
// token first and publishing Loading then Success or Error.
func (o *Orchestrator) run(ctx context.Context, op string, fn func(ctx context.Context, token string) (State, error)) (State, error) {
	v, err, _ := o.flight.Do(op, func() (any, error) {
		o.setState(op, State{Status: StatusLoading})

		token, err := o.tokens.Token(ctx)
		if err == nil && token == "" {
			err = apperr.New(op, apperr.ErrUnauthenticated, nil)
		}
		var st State
		if err == nil {
			st, err = fn(ctx, token)
		}
		if err != nil {
			o.logger.Error("syncer: operation failed", slog.String("op", op), slog.String("error", err.Error()))
			st = State{Status: StatusError, Message: errorMessage(err)}
		} else {
			st.Status = StatusSuccess
		}
		o.setState(op, st)
		return st, err
	})
	st, _ := v.(State)
	return st, err
}

// RestoreFromCloud merges the cloud conversation list into the local
// repository, skipping deleted and already present records.
func (o *Orchestrator) RestoreFromCloud(ctx context.Context) (State, error) {
	return o.run(ctx, OpRestoreConversations, func(ctx context.Context, token string) (State, error) {
		res, err := o.restoreConversations(ctx, token)
		if err != nil {
			return State{}, err
		}
		return State{Restored: res.Inserted, Skipped: res.Skipped}, nil
	})
}

func (o *Orchestrator) restoreConversations(ctx context.Context, token string) (reconcile.Result, error) {
	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()

	remote, err := o.cloud.FetchConversations(ctx, token)
	if err != nil {
		return reconcile.Result{}, err
	}
	ids, err := o.convs.IDs(ctx)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("syncer: list local conversations: %w", err)
	}
	res, err := o.reconciler.Reconcile(ctx, remote, ids)
	o.logger.Info("syncer: conversations reconciled", slog.Int("inserted", res.Inserted), slog.Int("skipped", res.Skipped))
	return res, err
}

// RestoreSettingsFromCloud replaces providers, assistants and display
// preferences with the cloud copy. Sections that fail to fetch keep their
// local value; the result counts applied and failed sections. The restored
// document becomes the snapshot so it is not pushed straight back.
func (o *Orchestrator) RestoreSettingsFromCloud(ctx context.Context) (State, error) {
	return o.run(ctx, OpRestoreSettings, o.restoreSettings)
}

func (o *Orchestrator) restoreSettings(ctx context.Context, token string) (State, error) {
	b, err := o.cloud.FetchAll(ctx, token)
	if err != nil {
		return State{}, err
	}
	if !b.Usable() {
		return State{}, errors.Join(b.ProvidersErr, b.AssistantsErr, b.SettingsErr)
	}

	var st State
	doc, err := o.settings.Update(ctx, func(d models.SettingsDocument) (models.SettingsDocument, error) {
		st = State{}
		if b.ProvidersErr == nil {
			d.Providers = uniqueProviders(b.Providers)
			st.Restored++
		} else {
			st.Skipped++
		}
		if b.AssistantsErr == nil {
			d.Assistants = b.Assistants
			st.Restored++
		} else {
			st.Skipped++
		}
		if b.SettingsErr == nil {
			d.Display = b.Settings.Display
			d.Preferences = b.Settings.Preferences
			st.Restored++
		} else {
			st.Skipped++
		}
		return d, nil
	})
	if err != nil {
		return State{}, fmt.Errorf("syncer: apply cloud settings: %w", err)
	}
	o.MarkSynced(doc)
	if st.Skipped > 0 {
		st.Message = sectionErrors(b)
		o.logger.Warn("syncer: partial settings restore", slog.String("failed", st.Message))
	}
	return st, nil
}

// uniqueProviders drops later entries that repeat an id.
func uniqueProviders(in []models.ProviderConfig) []models.ProviderConfig {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.ProviderConfig, 0, len(in))
	for _, p := range in {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sectionErrors(b *cloud.Bundle) string {
	var errs []error
	for _, err := range []error{b.ProvidersErr, b.AssistantsErr, b.SettingsErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...).Error()
}

// RestoreAllFromCloud restores settings, then conversations. It fails only
// when both parts fail.
func (o *Orchestrator) RestoreAllFromCloud(ctx context.Context) (State, error) {
	return o.run(ctx, OpRestoreAll, func(ctx context.Context, token string) (State, error) {
		settingsState, settingsErr := o.restoreSettings(ctx, token)
		res, convErr := o.restoreConversations(ctx, token)
		switch {
		case settingsErr != nil && convErr != nil:
			return State{}, errors.Join(settingsErr, convErr)
		case settingsErr != nil:
			return State{Restored: res.Inserted, Skipped: res.Skipped, Message: "settings: " + errorMessage(settingsErr)}, nil
		case convErr != nil:
			return State{Message: "conversations: " + errorMessage(convErr)}, nil
		}
		return State{
			Restored: res.Inserted,
			Skipped:  res.Skipped,
			Message:  fmt.Sprintf("settings: %d sections restored", settingsState.Restored),
		}, nil
	})
}

// UploadSettingsToCloud pushes the current document now. It fails only
// when every upload fails. The uploaded document becomes the snapshot
// under the same policy as auto-sync.
func (o *Orchestrator) UploadSettingsToCloud(ctx context.Context) (State, error) {
	return o.run(ctx, OpUploadSettings, func(ctx context.Context, token string) (State, error) {
		_, gen := o.readSnapshot()
		doc := o.settings.Get()
		sum := o.cloud.PushAll(ctx, token, doc)
		o.logSummary(sum)
		if sum.Failed() == 3 {
			return State{}, errors.Join(sum.Providers, sum.Assistants, sum.Settings)
		}
		if o.policy == AdvanceAlways || sum.OK() {
			o.advance(doc, gen)
		}
		st := State{Restored: 3 - sum.Failed(), Skipped: sum.Failed()}
		if !sum.OK() {
			st.Message = errors.Join(sum.Providers, sum.Assistants, sum.Settings).Error()
		}
		return st, nil
	})
}

// CloudConversationCount returns the number of non-deleted conversations
// stored in the cloud.
func (o *Orchestrator) CloudConversationCount(ctx context.Context) (int, error) {
	token, err := o.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}
	if token == "" {
		return 0, apperr.New("cloud conversation count", apperr.ErrUnauthenticated, nil)
	}
	remote, err := o.cloud.FetchConversations(ctx, token)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range remote {
		if !c.IsDeleted {
			n++
		}
	}
	return n, nil
}
