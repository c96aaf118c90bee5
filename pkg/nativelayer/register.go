package nativelayer

import (
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/go-kit/log"

	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/redqueue"
)

type Kind string

const (
	KindStub   Kind = "stub"
	KindChrome Kind = "chrome"
	KindQueue  Kind = "queue"
)

var (
	ErrNilConstructor = fmt.Errorf("renderer constructor is nil")
	ErrUnknownKind    = fmt.Errorf("unknown renderer kind")
)

type Options struct {
	Chrome ChromeOptions             `embed:"" prefix:"chrome."`
	Queue  redqueue.SchedulerOptions `embed:"" prefix:"queue."`
}

type NewRendererFn func(options Options, logger log.Logger) (preview.Renderer, error)

type Registration struct {
	// Function to construct a renderer
	New NewRendererFn

	// Sem-version of the module providing the renderer
	Version string
}

// Registrar of renderer kinds
var (
	kindRegistry = map[Kind]Registration{}
)

func Register(kind Kind, info Registration) error {
	if info.New == nil {
		return ErrNilConstructor
	}

	kindRegistry[kind] = info
	return nil
}

// ListRenderers returns a copy of the registered renderer kinds.
func ListRenderers() map[Kind]Registration {
	result := make(map[Kind]Registration, len(kindRegistry))
	for kind, info := range kindRegistry {
		result[kind] = info
	}

	return result
}

func Kinds() []Kind {
	result := make([]Kind, 0, len(kindRegistry))
	for kind := range kindRegistry {
		result = append(result, kind)
	}
	slices.Sort(result)
	return result
}

// New constructs a renderer of the given kind. The renderer may implement io.Closer.
func New(kind Kind, options Options, logger log.Logger) (preview.Renderer, error) {
	info, ok := kindRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return info.New(options, logger)
}

// Close releases resources held by a renderer, if it holds any.
func Close(r preview.Renderer) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (q *Queue) Close() error {
	if c, ok := q.scheduler.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func init() {
	moduleVersion := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok {
		moduleVersion = strings.Trim(bi.Main.Version, "()")
	}

	_ = Register(KindStub, Registration{
		Version: moduleVersion,
		New: func(_ Options, _ log.Logger) (preview.Renderer, error) {
			return NewStub(), nil
		},
	})

	_ = Register(KindChrome, Registration{
		Version: moduleVersion,
		New: func(options Options, logger log.Logger) (preview.Renderer, error) {
			return NewChrome(options.Chrome, logger), nil
		},
	})

	_ = Register(KindQueue, Registration{
		Version: moduleVersion,
		New: func(options Options, logger log.Logger) (preview.Renderer, error) {
			return NewQueue(redqueue.NewScheduler(options.Queue, logger), logger), nil
		},
	})
}
