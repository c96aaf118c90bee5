package nativelayer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/preview"
)

type Method string

const (
	MethodGetPrinterCapabilities Method = "getPrinterCapabilities"
	MethodGetPreview             Method = "getPreview"
)

const (
	StubContentType = "application/pdf"
	stubPageCount   = 3
)

type resolver struct {
	done     chan struct{}
	args     any
	resolved bool
}

func newResolver() *resolver {
	return &resolver{done: make(chan struct{})}
}

func (r *resolver) resolve(args any) {
	if r.resolved {
		return
	}
	r.args = args
	r.resolved = true
	close(r.done)
}

// Stub is a recording native layer for tests and dry runs.
// It serves capabilities from memory and answers preview requests without rendering.
type Stub struct {
	mu sync.Mutex

	destinations map[string]destination.Destination
	pageCount    int
	capsErr      error
	previewErr   error
	hold         chan struct{}

	calls     map[Method][]any
	resolvers map[Method]*resolver
}

// NewStub creates a stub that knows the given destinations, or a FooDevice template if none are given.
func NewStub(destinations ...destination.Destination) *Stub {
	if len(destinations) == 0 {
		destinations = []destination.Destination{destination.Template("FooDevice")}
	}

	s := &Stub{
		destinations: make(map[string]destination.Destination, len(destinations)),
		pageCount:    stubPageCount,
		calls:        make(map[Method][]any),
		resolvers:    make(map[Method]*resolver),
	}
	for _, d := range destinations {
		s.destinations[d.ID] = d
	}

	return s
}

func (s *Stub) resolverFor(method Method) *resolver {
	r, ok := s.resolvers[method]
	if !ok {
		r = newResolver()
		s.resolvers[method] = r
	}
	return r
}

func (s *Stub) record(method Method, args any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[method] = append(s.calls[method], args)
	s.resolverFor(method).resolve(args)
}

// WhenCalled blocks until method has been called since the last ResetResolver and returns the call arguments.
func (s *Stub) WhenCalled(ctx context.Context, method Method) (any, error) {
	s.mu.Lock()
	r := s.resolverFor(method)
	s.mu.Unlock()

	select {
	case <-r.done:
		return r.args, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %q: %w", method, ctx.Err())
	}
}

func (s *Stub) ResetResolver(method Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[method] = newResolver()
}

// Calls returns the arguments of every recorded call of the method, in arrival order.
func (s *Stub) Calls(method Method) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.calls[method]...)
}

func (s *Stub) CallCount(method Method) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls[method])
}

func (s *Stub) SetDestinationCapabilities(d destination.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[d.ID] = d
}

func (s *Stub) SetPageCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCount = n
}

// FailCapabilities makes subsequent capability requests fail with err. A nil err clears the failure.
func (s *Stub) FailCapabilities(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capsErr = err
}

// FailPreviews makes subsequent preview requests fail with err. A nil err clears the failure.
func (s *Stub) FailPreviews(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewErr = err
}

// Hold keeps preview requests pending until Release is called or their context is cancelled.
func (s *Stub) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold == nil {
		s.hold = make(chan struct{})
	}
}

func (s *Stub) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

func (s *Stub) Capabilities(ctx context.Context, id string) (destination.Destination, error) {
	s.record(MethodGetPrinterCapabilities, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capsErr != nil {
		return destination.Destination{}, s.capsErr
	}
	if err := ctx.Err(); err != nil {
		return destination.Destination{}, err
	}

	d, ok := s.destinations[id]
	if !ok {
		return destination.Destination{}, fmt.Errorf("%w: %q", destination.ErrUnknownDestination, id)
	}

	return d, nil
}

func (s *Stub) GetPreview(ctx context.Context, req preview.Request) (preview.Response, error) {
	s.record(MethodGetPreview, req)

	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return preview.Response{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.previewErr != nil {
		return preview.Response{}, s.previewErr
	}

	return preview.Response{
		RequestID:   req.RequestID,
		PrintTicket: req.PrintTicket,
		PageCount:   s.pageCount,
		ContentType: StubContentType,
	}, nil
}
