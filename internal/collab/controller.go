// Package collab owns the per-document edit state: optimistic local edits,
// transformed remote edits, and the conflict lifecycle through to a
// committed resolution.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/online-docs/internal/config"
	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/storage"
)

// Controller errors.
var (
	ErrClosed           = errors.New("controller closed")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrAlreadyResolved  = errors.New("conflict already resolved")
	ErrInvalidChoice    = errors.New("invalid resolution choice")
	ErrConsentRequired  = errors.New("strategy below minimum confidence requires consent on a high severity conflict")
)

// Transport delivers locally committed operations to other participants.
type Transport interface {
	Send(op ot.Operation) error
}

// Config wires a Controller. Zero engine values fall back to config.Default.
type Config struct {
	DocumentID     string
	AuthorID       string
	InitialContent string
	InitialVersion int
	Transport      Transport          // Optional
	Audit          storage.AuditStore // Defaults to an in-memory store
	Logger         *slog.Logger
	Engine         config.EngineConfig
	Clock          func() time.Time
}

// openConflict tracks an unresolved conflict. since collects every operation
// applied after detection so the resolution can be rebased onto them.
type openConflict struct {
	info            conflict.Info
	detectedContent string
	since           []ot.Operation
}

// Controller serializes every mutation of one document. It is the only
// writer of the document content.
type Controller struct {
	mu sync.Mutex

	docID        string
	authorID     string
	content      string
	version      int
	lastModified time.Time
	state        State
	closed       bool

	pending   []ot.Operation // Sent, awaiting acknowledgment, oldest first
	active    []activeEntry  // Most recent first
	conflicts map[string]*openConflict
	order     []string // Open conflict IDs in detection order

	detector  *conflict.Detector
	engine    config.EngineConfig
	transport Transport
	audit     storage.AuditStore
	logger    *slog.Logger
	now       func() time.Time

	changes  chan ContentChange
	detected chan conflict.Info
	resolved chan merge.Resolution
	errs     chan error
}

// New creates a controller for one document.
func New(cfg Config) *Controller {
	engine := withDefaults(cfg.Engine)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	audit := cfg.Audit
	if audit == nil {
		audit = storage.NewMemoryStore()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Controller{
		docID:        cfg.DocumentID,
		authorID:     cfg.AuthorID,
		content:      cfg.InitialContent,
		version:      cfg.InitialVersion,
		lastModified: clock(),
		state:        StateClean,
		conflicts:    make(map[string]*openConflict),
		detector:     conflict.NewDetector(engine.ConflictWindow),
		engine:       engine,
		transport:    cfg.Transport,
		audit:        audit,
		logger:       logger.With("document", cfg.DocumentID, "author", cfg.AuthorID),
		now:          clock,
		changes:      make(chan ContentChange, engine.NotificationBuffer),
		detected:     make(chan conflict.Info, engine.NotificationBuffer),
		resolved:     make(chan merge.Resolution, engine.NotificationBuffer),
		errs:         make(chan error, engine.NotificationBuffer),
	}
}

func withDefaults(e config.EngineConfig) config.EngineConfig {
	d := config.Default().Engine

	if e.ConflictWindow <= 0 {
		e.ConflictWindow = d.ConflictWindow
	}

	if e.ActiveWindowSize <= 0 {
		e.ActiveWindowSize = d.ActiveWindowSize
	}

	if e.PruneAfter <= 0 {
		e.PruneAfter = d.PruneAfter
	}

	if e.CleanupInterval <= 0 {
		e.CleanupInterval = d.CleanupInterval
	}

	if e.NotificationBuffer <= 0 {
		e.NotificationBuffer = d.NotificationBuffer
	}

	return e
}

// ContentChanges streams every successful apply.
func (c *Controller) ContentChanges() <-chan ContentChange { return c.changes }

// ConflictsDetected streams newly opened conflicts.
func (c *Controller) ConflictsDetected() <-chan conflict.Info { return c.detected }

// ConflictsResolved streams committed resolutions.
func (c *Controller) ConflictsResolved() <-chan merge.Resolution { return c.resolved }

// Errors streams operations that were dropped instead of applied.
func (c *Controller) Errors() <-chan error { return c.errs }

// DocumentID returns the document this controller owns.
func (c *Controller) DocumentID() string {
	return c.docID
}

// ApplyLocal commits a local edit given the editor's new content. The derived
// operations are applied, queued as pending and handed to the transport.
// A no-op edit returns nil.
func (c *Controller) ApplyLocal(newContent string) ([]ot.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	ops := ot.Derive(c.content, newContent, c.authorID, c.version)
	if len(ops) == 0 {
		return nil, nil
	}

	now := c.now()
	committed := make([]ot.Operation, 0, len(ops))

	for _, op := range ops {
		op = op.WithStamp(uuid.NewString(), now, c.version)

		if err := c.commitLocal(op, "local"); err != nil {
			return committed, err
		}

		committed = append(committed, op)
	}

	c.updateState()

	return committed, nil
}

// commitLocal applies an operation authored here and sends it.
func (c *Controller) commitLocal(op ot.Operation, source string) error {
	before := c.content

	if err := c.apply(op); err != nil {
		return fmt.Errorf("apply %s: %w", op.Describe(), err)
	}

	c.pending = append(c.pending, op)
	c.pushActive(op, before)
	operationsApplied.WithLabelValues(source).Inc()

	if c.transport != nil {
		if err := c.transport.Send(op); err != nil {
			c.logger.Warn("send operation", "op", op.ID, "error", err)
			c.emitError(fmt.Errorf("send %s: %w", op.ID, err))
		}
	}

	return nil
}

// apply mutates content and records op against every open conflict.
func (c *Controller) apply(op ot.Operation) error {
	next, err := ot.Apply(c.content, op)
	if err != nil {
		return err
	}

	c.content = next
	c.version++
	c.lastModified = c.now()

	for _, rec := range c.conflicts {
		rec.since = append(rec.since, op)
	}

	c.emit(ContentChange{
		DocumentID: c.docID,
		Content:    c.content,
		Version:    c.version,
		Operation:  op,
	})

	return nil
}

// Acknowledge clears a pending operation. It reports false for a stale
// acknowledgment, which is otherwise ignored.
func (c *Controller) Acknowledge(opID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.pendingIndex(opID)
	if i < 0 {
		c.logger.Debug("stale acknowledgment", "op", opID)

		return false
	}

	c.pending = slices.Delete(c.pending, i, i+1)
	c.updateState()

	return true
}

func (c *Controller) pendingIndex(opID string) int {
	return slices.IndexFunc(c.pending, func(op ot.Operation) bool {
		return op.ID == opID
	})
}

// ApplyRemote integrates an operation from another participant. It is
// transformed against every pending local operation and applied. Overlapping
// edits open a conflict but are still applied, so every participant holds the
// same content until the resolution is committed. An operation that cannot be
// applied is dropped and reported on Errors; it never fails the call.
func (c *Controller) ApplyRemote(op ot.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if i := c.pendingIndex(op.ID); i >= 0 {
		// Our own operation echoed back by the relay.
		c.pending = slices.Delete(c.pending, i, i+1)
		c.updateState()

		return nil
	}

	c.integrate(op, op)

	return nil
}

// ApplySequenced integrates an operation a sequencer already rebased onto
// this content. Conflicts are detected on op, the form its author created;
// rebased is what gets applied.
func (c *Controller) ApplySequenced(op, rebased ot.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.integrate(op, rebased)

	return nil
}

func (c *Controller) integrate(op, incoming ot.Operation) {
	conflicting := c.detector.Conflicting(op, c.activeOps())

	pending := slices.Clone(c.pending)
	transformed := incoming

	for i := range pending {
		transformed, pending[i] = ot.Transform(transformed, pending[i])
	}

	before := c.content

	if err := c.apply(transformed); err != nil {
		operationsDropped.WithLabelValues("out_of_range").Inc()
		c.logger.Warn("dropping remote operation", "op", op.ID, "from", op.AuthorID, "error", err)
		c.emitError(fmt.Errorf("apply remote %s: %w", op.ID, err))

		return
	}

	c.pending = pending
	c.pushActive(transformed, before)
	operationsApplied.WithLabelValues("remote").Inc()

	if len(conflicting) > 0 {
		c.openConflict(op, conflicting)
	}

	c.updateState()
}

// openConflict records a conflict between op and the active operations it
// collides with. The merge base is the content before the oldest of them and
// the merged operations are every edit applied since that base.
func (c *Controller) openConflict(op ot.Operation, conflicting []ot.Operation) {
	now := c.now()

	oldest := c.oldestActive(conflicting)
	base := c.active[oldest].before

	info := conflict.NewInfo(c.docID, op, conflicting, base, now)
	info.Operations = c.mergeSet(oldest, op)

	if err := c.audit.SaveConflict(info); err != nil {
		c.logger.Error("save conflict", "conflict", info.ID, "error", err)
	}

	rec := &openConflict{info: info, detectedContent: c.content}
	c.conflicts[info.ID] = rec
	c.order = append(c.order, info.ID)

	strategies := merge.Evaluate(info, base)

	conflictsDetected.WithLabelValues(string(info.Kind), string(info.Severity)).Inc()

	if len(strategies) > 0 {
		strategyConfidence.WithLabelValues(strategies[0].Name).Observe(strategies[0].Confidence)
	}

	c.logger.Info("conflict detected",
		"conflict", info.ID,
		"kind", info.Kind,
		"severity", info.Severity,
		"operations", len(info.Operations),
	)

	c.emitDetected(info)

	if !c.engine.AutoResolve {
		return
	}

	best, ok := merge.Best(strategies, c.engine.MinConfidence)
	if !ok {
		c.logger.Info("no strategy meets minimum confidence, leaving conflict open", "conflict", info.ID)

		return
	}

	if _, err := c.commit(rec, best, conflict.ResolutionAutoMerge, "auto"); err != nil {
		c.logger.Error("auto resolve", "conflict", info.ID, "error", err)
		c.emitError(fmt.Errorf("auto resolve %s: %w", info.ID, err))
	}
}

// oldestActive returns the index in c.active of the oldest entry among ops.
func (c *Controller) oldestActive(ops []ot.Operation) int {
	oldest := 0

	for i, entry := range c.active {
		if slices.ContainsFunc(ops, func(op ot.Operation) bool { return op.ID == entry.op.ID }) {
			oldest = i
		}
	}

	return oldest
}

// mergeSet lists active entries from index oldest up to the newest, oldest
// first, followed by incoming. The newest active entry is incoming's own
// transformed form and is skipped.
func (c *Controller) mergeSet(oldest int, incoming ot.Operation) []ot.Operation {
	ops := make([]ot.Operation, 0, oldest+2)

	for i := oldest; i >= 0; i-- {
		if c.active[i].op.ID == incoming.ID {
			continue
		}

		ops = append(ops, c.active[i].op)
	}

	return append(ops, incoming)
}

// Strategies recomputes the ranked merge candidates of an open conflict.
func (c *Controller) Strategies(conflictID string) ([]merge.Strategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookup(conflictID)
	if err != nil {
		return nil, err
	}

	return merge.Evaluate(rec.info, rec.info.BaseContent), nil
}

// ResolveConflict commits a resolution for an open conflict, either one of
// the ranked strategies or custom content.
func (c *Controller) ResolveConflict(conflictID string, choice Choice) (merge.Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return merge.Resolution{}, ErrClosed
	}

	rec, err := c.lookup(conflictID)
	if err != nil {
		return merge.Resolution{}, err
	}

	if choice.Custom {
		return c.commit(rec, merge.Manual(choice.Content, rec.info.Operations), conflict.ResolutionManual, choice.ResolvedBy)
	}

	strategies := merge.Evaluate(rec.info, rec.info.BaseContent)

	if choice.StrategyIndex < 0 || choice.StrategyIndex >= len(strategies) {
		return merge.Resolution{}, fmt.Errorf("%w: strategy index %d of %d", ErrInvalidChoice, choice.StrategyIndex, len(strategies))
	}

	chosen := strategies[choice.StrategyIndex]

	if rec.info.Severity == conflict.SeverityHigh && chosen.Confidence < c.engine.MinConfidence && !choice.Consent {
		return merge.Resolution{}, fmt.Errorf("%w: %s scored %.2f", ErrConsentRequired, chosen.Name, chosen.Confidence)
	}

	return c.commit(rec, chosen, conflict.ResolutionUserChoice, choice.ResolvedBy)
}

func (c *Controller) lookup(conflictID string) (*openConflict, error) {
	if rec, ok := c.conflicts[conflictID]; ok {
		return rec, nil
	}

	if info, err := c.audit.Conflict(conflictID); err == nil && info.Resolved {
		return nil, ErrAlreadyResolved
	}

	return nil, ErrConflictNotFound
}

// commit replaces the conflicted content with the strategy preview. The
// change from the content at detection time is rebased over everything
// applied since and committed as local operations.
func (c *Controller) commit(rec *openConflict, s merge.Strategy, kind conflict.ResolutionKind, resolvedBy string) (merge.Resolution, error) {
	if resolvedBy == "" {
		resolvedBy = c.authorID
	}

	delta := ot.Derive(rec.detectedContent, s.PreviewContent, c.authorID, c.version)

	for _, applied := range rec.since {
		for i := range delta {
			delta[i], applied = ot.Transform(delta[i], applied)
		}
	}

	delta = slices.DeleteFunc(delta, ot.Operation.IsNoop)

	if _, err := ot.ApplyAll(c.content, delta...); err != nil {
		return merge.Resolution{}, fmt.Errorf("rebase resolution %s: %w", rec.info.ID, err)
	}

	id := rec.info.ID
	delete(c.conflicts, id)
	c.order = slices.DeleteFunc(c.order, func(open string) bool { return open == id })

	now := c.now()

	for _, op := range delta {
		op = op.WithStamp(uuid.NewString(), now, c.version)

		if err := c.commitLocal(op, "resolution"); err != nil {
			c.conflicts[id] = rec
			c.order = append(c.order, id)

			return merge.Resolution{}, fmt.Errorf("commit resolution %s: %w", id, err)
		}
	}

	info := rec.info.MarkResolved(kind, now)
	res := merge.NewResolution(c.docID, id, s, resolvedBy, now)

	if err := c.audit.SaveConflict(info); err != nil {
		c.logger.Error("save resolved conflict", "conflict", id, "error", err)
	}

	if err := c.audit.SaveResolution(res); err != nil {
		c.logger.Error("save resolution", "conflict", id, "error", err)
	}

	c.dropActive(s.Discarded)
	c.setState(StateResolved)
	c.updateState()

	conflictsResolved.WithLabelValues(string(s.Kind), string(kind)).Inc()
	c.logger.Info("conflict resolved",
		"conflict", id,
		"strategy", s.Name,
		"confidence", s.Confidence,
		"resolution", kind,
		"by", resolvedBy,
	)

	c.emitResolved(res)

	return res, nil
}

// Cleanup prunes active operations older than the prune age. Conflict
// records are kept for audit.
func (c *Controller) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.engine.PruneAfter)
	before := len(c.active)

	c.active = slices.DeleteFunc(c.active, func(e activeEntry) bool {
		return e.op.Timestamp.Before(cutoff)
	})

	pruned := before - len(c.active)
	if pruned > 0 {
		c.logger.Debug("pruned active operations", "count", pruned)
	}

	return pruned
}

// Run prunes the active window on every cleanup interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.engine.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(c.now())
		}
	}
}

// Close stops the controller and closes its notification channels.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.changes)
	close(c.detected)
	close(c.resolved)
	close(c.errs)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Content returns the current content.
func (c *Controller) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.content
}

// Version returns the current document version.
func (c *Controller) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.version
}

// Snapshot returns a copy of the document state.
func (c *Controller) Snapshot() DocumentState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return DocumentState{
		Content:          c.content,
		Version:          c.version,
		LastModified:     c.lastModified,
		ActiveOperations: c.activeOps(),
	}
}

// Pending returns the operations still awaiting acknowledgment, oldest first.
func (c *Controller) Pending() []ot.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.pending)
}

// OpenConflicts returns unresolved conflicts in detection order.
func (c *Controller) OpenConflicts() []conflict.Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]conflict.Info, 0, len(c.order))

	for _, id := range c.order {
		out = append(out, c.conflicts[id].info)
	}

	return out
}

// Audit returns the store holding every conflict and resolution.
func (c *Controller) Audit() storage.AuditStore {
	return c.audit
}

func (c *Controller) activeOps() []ot.Operation {
	ops := make([]ot.Operation, len(c.active))

	for i, e := range c.active {
		ops[i] = e.op
	}

	return ops
}

func (c *Controller) pushActive(op ot.Operation, before string) {
	c.active = slices.Insert(c.active, 0, activeEntry{op: op, before: before})

	if len(c.active) > c.engine.ActiveWindowSize {
		c.active = c.active[:c.engine.ActiveWindowSize]
	}
}

func (c *Controller) dropActive(discarded []ot.Operation) {
	c.active = slices.DeleteFunc(c.active, func(e activeEntry) bool {
		return slices.ContainsFunc(discarded, func(op ot.Operation) bool { return op.ID == e.op.ID })
	})
}

func (c *Controller) updateState() {
	switch {
	case len(c.conflicts) > 0:
		c.setState(StateConflict)
	case len(c.pending) > 0:
		c.setState(StateSyncing)
	default:
		c.setState(StateClean)
	}
}

func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}

	c.logger.Debug("state change", "from", c.state, "to", next)
	c.state = next
}
