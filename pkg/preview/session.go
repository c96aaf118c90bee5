package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/ticket"
)

type Option func(s *Session)

func WithLogger(logger log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

func WithGraph(g *ticket.Graph) Option {
	return func(s *Session) {
		s.graph = g
	}
}

// WithRequestHandler registers a callback invoked, in request ID order, for every request dispatched.
// It is called with the session locked and must not call back into the session.
func WithRequestHandler(fn func(Request)) Option {
	return func(s *Session) {
		s.onRequest = fn
	}
}

// WithPreviewHandler registers a callback invoked for every preview accepted as the latest one.
func WithPreviewHandler(fn func(Request, Response)) Option {
	return func(s *Session) {
		s.onPreview = fn
	}
}

type pending struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Session owns the print settings of one document and issues preview requests for them.
// Every mutation, together with its ticket derivation and request ID assignment, runs under one lock.
type Session struct {
	id       string
	provider destination.Provider
	renderer Renderer
	graph    *ticket.Graph
	logger   log.Logger
	metrics  *Metrics

	onRequest func(Request)
	onPreview func(Request, Response)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	initialized bool
	closed      bool
	documentURL string
	document    ticket.Document
	destination destination.Destination
	settings    ticket.Settings
	current     ticket.Ticket
	nextID      int

	inflight map[int]*pending
	latest   *Response
	latestID int
}

func NewSession(provider destination.Provider, renderer Renderer, options ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		provider: provider,
		renderer: renderer,
		graph:    ticket.DefaultGraph(),
		logger:   log.NewNopLogger(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[int]*pending),
		latestID: -1,
	}

	for _, option := range options {
		option(s)
	}

	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.logger = log.With(s.logger, "session", s.id)

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) env() ticket.Env {
	return ticket.Env{
		Document:    s.document,
		Destination: s.destination,
	}
}

// Initialize fetches the capabilities of the initial destination, applies overrides and issues request 0.
func (s *Session) Initialize(ctx context.Context, init InitialSettings) (ticket.Ticket, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ticket.Ticket{}, ErrSessionClosed
	case s.initialized:
		s.mu.Unlock()
		return ticket.Ticket{}, ErrAlreadyInitialized
	}
	s.mu.Unlock()

	dest, err := s.provider.Capabilities(ctx, init.PrinterName)
	if err != nil {
		s.metrics.rejected.WithLabelValues("capabilities").Inc()
		return ticket.Ticket{}, fmt.Errorf("failed to fetch capabilities of %q: %w", init.PrinterName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ticket.Ticket{}, ErrSessionClosed
	}
	if s.initialized {
		return ticket.Ticket{}, ErrAlreadyInitialized
	}

	env := ticket.Env{
		Document:    init.Document,
		Destination: dest,
	}

	for name := range init.Settings {
		if !ticket.IsKnown(name) {
			s.metrics.rejected.WithLabelValues("unknown").Inc()
			return ticket.Ticket{}, &ticket.SettingError{Name: name, Err: ticket.ErrUnknownSetting}
		}
	}

	settings := ticket.Defaults(env)
	for _, name := range s.graph.Order(ticket.Names()) {
		value, ok := init.Settings[name]
		if !ok {
			continue
		}

		changed, err := ticket.Assign(&settings, name, value, env)
		if err != nil {
			s.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
			return ticket.Ticket{}, err
		}
		if changed {
			s.graph.Cascade(&settings, env, name)
		}
	}
	s.document = init.Document
	s.documentURL = init.DocumentURL
	s.destination = dest
	s.settings = settings
	s.initialized = true

	level.Info(s.logger).Log("msg", "session initialized", "destination", dest.ID, "pageCount", init.PageCount)
	return s.issue(), nil
}

// issue derives the ticket for the current settings, assigns the next request ID and dispatches it.
// Must be called with s.mu held.
func (s *Session) issue() ticket.Ticket {
	t := ticket.Build(s.settings, s.env(), s.nextID)
	s.nextID++
	s.current = t

	payload, err := t.Marshal()
	if err != nil {
		// Ticket contains only plain values, marshaling can not fail
		panic(err)
	}

	req := Request{
		SessionID:   s.id,
		RequestID:   t.RequestID,
		DocumentURL: s.documentURL,
		PrintTicket: payload,
	}

	for id, p := range s.inflight {
		level.Debug(s.logger).Log("msg", "cancelling superseded preview", "requestID", id)
		p.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	p := &pending{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.inflight[req.RequestID] = p
	s.metrics.issued.Inc()

	if s.onRequest != nil {
		s.onRequest(req)
	}

	level.Debug(s.logger).Log("msg", "preview requested", "requestID", req.RequestID)

	s.wg.Add(1)
	go s.render(ctx, p, req)

	return t
}

func (s *Session) render(ctx context.Context, p *pending, req Request) {
	defer s.wg.Done()
	defer close(p.done)
	defer p.cancel()

	start := time.Now()
	res, err := s.renderer.GetPreview(ctx, req)
	s.metrics.duration.Observe(time.Since(start).Seconds())

	defer func() {
		s.mu.Lock()
		delete(s.inflight, req.RequestID)
		s.mu.Unlock()
	}()

	s.mu.Lock()
	outcome := OutcomeCompleted
	switch {
	case ctx.Err() != nil:
		outcome = OutcomeCancelled
	case err != nil:
		outcome = OutcomeFailed
		level.Warn(s.logger).Log("msg", "preview failed", "requestID", req.RequestID, "err", err)
	case req.RequestID <= s.latestID:
		outcome = OutcomeStale
	default:
		if res.PrintTicket == "" {
			res.PrintTicket = req.PrintTicket
		}
		res.RequestID = req.RequestID
		s.latest = &res
		s.latestID = req.RequestID
	}

	handler := s.onPreview
	s.mu.Unlock()

	s.metrics.completed.WithLabelValues(outcome).Inc()
	level.Debug(s.logger).Log("msg", "preview finished", "requestID", req.RequestID, "outcome", outcome)

	if outcome == OutcomeCompleted && handler != nil {
		handler(req, res)
	}
}

// SetSetting validates and stores a setting value. If the change, or a dependent reset it causes,
// affects the preview, exactly one new request is issued. The returned ticket is the one now in effect;
// print only changes refresh it under the last issued request ID.
func (s *Session) SetSetting(name ticket.Name, value any) (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.current, ErrSessionClosed
	}
	if !s.initialized {
		s.metrics.rejected.WithLabelValues(rejectReason(ErrNotInitialized)).Inc()
		return s.current, ErrNotInitialized
	}

	env := s.env()
	next := s.settings.Clone()

	changed, err := ticket.Assign(&next, name, value, env)
	if err != nil {
		s.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
		level.Debug(s.logger).Log("msg", "setting rejected", "setting", name, "err", err)
		return s.current, err
	}
	if !changed {
		return s.current, nil
	}

	names := s.graph.Cascade(&next, env, name)
	s.settings = next
	if len(names) > 1 {
		level.Debug(s.logger).Log("msg", "dependent settings reset", "setting", name, "dependents", fmt.Sprint(names[1:]))
	}

	if !ticket.AffectsPreview(names...) {
		s.current = ticket.Build(next, env, s.current.RequestID)
		return s.current, nil
	}

	return s.issue(), nil
}

// SetSettingJSON is SetSetting with the value given as JSON.
func (s *Session) SetSettingJSON(name ticket.Name, value json.RawMessage) (ticket.Ticket, error) {
	return s.SetSetting(name, value)
}

func (s *Session) GetSettingValue(name ticket.Name) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	return ticket.Value(s.settings, name)
}

// Settings returns a copy of all current settings.
func (s *Session) Settings() (ticket.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ticket.Settings{}, ErrNotInitialized
	}

	return s.settings.Clone(), nil
}

// SetDestination replaces the active destination. Capabilities are fetched before the session is locked;
// on failure the destination and the request counter are left unchanged.
func (s *Session) SetDestination(ctx context.Context, id string) (ticket.Ticket, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ticket.Ticket{}, ErrNotInitialized
	}
	s.mu.Unlock()

	dest, err := s.provider.Capabilities(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.current, ErrSessionClosed
	}
	if err != nil {
		s.metrics.rejected.WithLabelValues("capabilities").Inc()
		level.Warn(s.logger).Log("msg", "failed to fetch capabilities", "destination", id, "err", err)
		return s.current, fmt.Errorf("failed to fetch capabilities of %q: %w", id, err)
	}

	if reflect.DeepEqual(dest, s.destination) {
		return s.current, nil
	}

	env := ticket.Env{
		Document:    s.document,
		Destination: dest,
	}
	next := s.settings.Clone()
	names := s.graph.Cascade(&next, env, ticket.DestinationNode)

	s.destination = dest
	s.settings = next
	level.Info(s.logger).Log("msg", "destination changed", "destination", dest.ID, "reset", fmt.Sprint(names[1:]))

	return s.issue(), nil
}

// Ticket returns the ticket in effect. Its RequestID is that of the most recently issued request.
func (s *Session) Ticket() (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ticket.Ticket{}, ErrNotInitialized
	}
	return s.current, nil
}

func (s *Session) Destination() destination.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destination
}

// LatestPreview returns the newest completed preview, if any.
func (s *Session) LatestPreview() (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return Response{}, false
	}
	return *s.latest, true
}

// Flush waits until every dispatched request has finished or ctx is done.
func (s *Session) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		waits := make([]chan struct{}, 0, len(s.inflight))
		for _, p := range s.inflight {
			waits = append(waits, p.done)
		}
		s.mu.Unlock()

		if len(waits) == 0 {
			return nil
		}

		for _, done := range waits {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close cancels all in-flight requests and waits for them to return.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	return nil
}
