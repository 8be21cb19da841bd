// Package session runs one interactive extraction session: uploaded
// documents, per-domain extraction results, user overrides, and the latest
// verification outcome.
//
// All state is owned by a single goroutine started with Run. Public methods
// submit closures to it and wait, so each operation's synchronous part
// (preconditions, clears, token capture, dispatch) is atomic with respect to
// completions arriving from the service. Service calls run on their own
// goroutines and post their results back to the loop, where a result whose
// request token has been superseded is dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/aggregate"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/reconcile"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/results"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/verify"
)

var (
	// ErrEmptyInput is returned when an operation has no document or no data.
	ErrEmptyInput = verify.ErrEmptyInput
	// ErrNotPaged is returned when multipage extraction is asked of an image.
	ErrNotPaged = errors.New("document is not a PDF")
	// ErrNoSuchUnit is returned by Retry for an unknown unit key.
	ErrNoSuchUnit = errors.New("no such unit")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
)

// Defaults.
const (
	DefaultTemplate    = "en"
	DefaultBatchFanout = 3
)

// Config configures a Session.
type Config struct {
	Service  providers.Service
	Registry *schema.Registry

	// Template is the initial active template id.
	Template string
	// BatchFanout bounds concurrent calls during batch processing.
	BatchFanout int
	// RawTextHints fills empty email/phone fields from raw OCR text.
	RawTextHints bool

	Logger *slog.Logger
}

// Session is one extraction session. Create with New and start with Run.
type Session struct {
	id       uuid.UUID
	service  providers.Service
	registry *schema.Registry
	engine   *aggregate.Engine
	verifier *verify.Client
	ctrl     *reconcile.Controller
	logger   *slog.Logger

	fanout atomic.Int32

	ops       chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once

	flightMu sync.Mutex
	inflight int
	idle     chan struct{}

	// Owned by the loop.
	st *state
}

// New creates a session. The initial template must be registered.
func New(cfg Config) (*Session, error) {
	if cfg.Service == nil {
		return nil, errors.New("session: service is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if _, err := cfg.Registry.Resolve(cfg.Template); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := uuid.New()
	logger := cfg.Logger.With("session", id.String())
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:       id,
		service:  cfg.Service,
		registry: cfg.Registry,
		engine: aggregate.NewEngine(aggregate.Config{
			Schemas:      cfg.Registry,
			RawTextHints: cfg.RawTextHints,
			Logger:       logger,
		}),
		verifier: verify.NewClient(cfg.Service, logger),
		ctrl:     reconcile.NewController(logger),
		logger:   logger,
		ops:      make(chan func()),
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
		st:       newState(cfg.Template),
	}
	s.SetBatchFanout(cfg.BatchFanout)

	for _, d := range reconcile.AllDomains {
		d := d
		s.ctrl.OnClear(d, func() { s.st.clear(d) })
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id.String() }

// SetBatchFanout changes the batch concurrency limit. It applies to the next
// batch and may be called from any goroutine.
func (s *Session) SetBatchFanout(n int) {
	if n < 1 {
		n = DefaultBatchFanout
	}
	s.fanout.Store(int32(n))
}

// BatchFanout returns the current batch concurrency limit.
func (s *Session) BatchFanout() int { return int(s.fanout.Load()) }

// Run processes operations until ctx is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Debug("session started")
	defer s.logger.Debug("session stopped")
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-s.closed:
			return nil
		}
	}
}

// Close stops the loop and cancels in-flight service calls.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.closed)
	})
}

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	done := make(chan struct{})
	select {
	case s.ops <- func() { defer close(done); fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// dispatch marks n calls in flight. Called on the loop.
func (s *Session) dispatch(n int) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight += n
}

func (s *Session) land() {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// complete posts fn to the loop and marks one call landed after it runs.
func (s *Session) complete(fn func()) {
	select {
	case s.ops <- func() { defer s.land(); fn() }:
	case <-s.closed:
		s.land()
	}
}

// Settle waits until no dispatched service call is in flight and every
// completion has been applied.
func (s *Session) Settle(ctx context.Context) error {
	s.flightMu.Lock()
	if s.inflight == 0 {
		s.flightMu.Unlock()
		return nil
	}
	idle := s.idle
	s.flightMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// state is the session data mutated only on the loop.
type state struct {
	template  string
	docs      []*ingest.Document
	overrides map[schema.FieldID]string

	// carried holds the form values brought over by a template change. They
	// fill empty fields until a record domain produces a result.
	carried map[schema.FieldID]string

	stores  map[reconcile.Domain]*results.Store
	sets    map[reconcile.Domain]string
	sources map[reconcile.Domain]map[string]unitSource
	cache   map[reconcile.Domain]*cachedRecord
	errs    map[reconcile.Domain]string

	progress  Progress
	outcome   *verify.Outcome
	submitted map[schema.FieldID]string

	// seq numbers dispatches so a retried unit ignores the earlier call.
	seq uint64
}

// unitSource is what a unit key was dispatched from, kept for retries.
// seq is the latest dispatch for the key.
type unitSource struct {
	doc  *ingest.Document
	opts providers.ExtractOptions
	seq  uint64
}

type cachedRecord struct {
	revision uint64
	template string
	record   *aggregate.Record
}

var extractionDomains = []reconcile.Domain{
	reconcile.DomainExtraction,
	reconcile.DomainMultipage,
	reconcile.DomainBatch,
	reconcile.DomainDetection,
}

func newState(template string) *state {
	st := &state{
		template:  template,
		overrides: make(map[schema.FieldID]string),
		stores:    make(map[reconcile.Domain]*results.Store),
		sets:      make(map[reconcile.Domain]string),
		sources:   make(map[reconcile.Domain]map[string]unitSource),
		cache:     make(map[reconcile.Domain]*cachedRecord),
		errs:      make(map[reconcile.Domain]string),
	}
	for _, d := range extractionDomains {
		st.stores[d] = results.NewStore()
	}
	return st
}

// clear discards everything derived for domain.
func (st *state) clear(d reconcile.Domain) {
	if store, ok := st.stores[d]; ok {
		store.Clear()
	}
	delete(st.sets, d)
	delete(st.sources, d)
	delete(st.cache, d)
	delete(st.errs, d)
	switch d {
	case reconcile.DomainBatch:
		st.progress = Progress{}
	case reconcile.DomainVerification:
		st.outcome = nil
		st.submitted = nil
	}
}

func (st *state) source(d reconcile.Domain, key string, src unitSource) {
	if st.sources[d] == nil {
		st.sources[d] = make(map[string]unitSource)
	}
	st.sources[d][key] = src
}

// next returns a new dispatch sequence number.
func (st *state) next() uint64 {
	st.seq++
	return st.seq
}

// latest reports whether seq is still the newest dispatch for key.
func (st *state) latest(d reconcile.Domain, key string, seq uint64) bool {
	src, ok := st.sources[d][key]
	return ok && src.seq == seq
}

// put stores u in domain. A successful unit in a record domain ends the
// carried form.
func (st *state) put(d reconcile.Domain, u *results.UnitResult) error {
	if err := st.stores[d].Put(u); err != nil {
		return err
	}
	if !u.Failed() && isRecordDomain(d) {
		st.carried = nil
	}
	return nil
}

func (st *state) hasDocument(id uuid.UUID) bool {
	for _, d := range st.docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (st *state) document(name string) (*ingest.Document, bool) {
	if len(st.docs) == 0 {
		return nil, false
	}
	if name == "" {
		return st.docs[0], true
	}
	for _, d := range st.docs {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
