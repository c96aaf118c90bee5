package preview

import (
	"context"
	"fmt"

	"github.com/sre-norns/vellum/pkg/ticket"
)

var (
	ErrNotInitialized     = fmt.Errorf("preview session is not initialized")
	ErrAlreadyInitialized = fmt.Errorf("preview session is already initialized")
	ErrSessionClosed      = fmt.Errorf("preview session is closed")
)

// Request asks a renderer to regenerate the preview for a ticket.
type Request struct {
	SessionID   string `json:"sessionID,omitempty"`
	RequestID   int    `json:"requestID"`
	DocumentURL string `json:"documentURL,omitempty"`
	PrintTicket string `json:"printTicket"`
}

// Response is produced once rendering completes. It carries the ticket it was rendered from.
type Response struct {
	RequestID   int    `json:"requestID"`
	PrintTicket string `json:"printTicket"`
	PageCount   int    `json:"pageCount"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data,omitempty"`

	// Set by renderers that hand the work off to a queue
	TaskID string `json:"taskID,omitempty"`
}

type Renderer interface {
	GetPreview(ctx context.Context, req Request) (Response, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, req Request) (Response, error)

func (f RendererFunc) GetPreview(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// InitialSettings describe the document and the destination a session starts with.
type InitialSettings struct {
	PrinterName string `json:"printerName" yaml:"printerName"`
	DocumentURL string `json:"documentURL,omitempty" yaml:"documentURL,omitempty"`

	ticket.Document `yaml:",inline"`

	// Overrides applied on top of the destination defaults. A setting is applied after those whose
	// changes would reset it, so every override that is valid on its own survives.
	Settings map[ticket.Name]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

func DefaultInitialSettings() InitialSettings {
	return InitialSettings{
		PrinterName: "FooDevice",
		Document: ticket.Document{
			Title:             "title",
			PreviewModifiable: true,
			PageCount:         3,
		},
	}
}
