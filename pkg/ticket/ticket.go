package ticket

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sre-norns/vellum/pkg/destination"
)

// Ticket is the serialized snapshot of print settings sent with a preview request.
type Ticket struct {
	RequestID      int    `json:"requestID"`
	IsFirstRequest bool   `json:"isFirstRequest"`
	DeviceName     string `json:"deviceName"`

	MediaSize destination.MediaSize `json:"mediaSize"`
	PageRange []PageRange           `json:"pageRange"`
	PageCount int                   `json:"pageCount"`
	Landscape bool                  `json:"landscape"`
	Color     ColorMode             `json:"color"`

	HeaderFooterEnabled bool          `json:"headerFooterEnabled"`
	MarginsType         MarginsType   `json:"marginsType"`
	MarginsCustom       *MarginPoints `json:"marginsCustom,omitempty"`

	Duplex  DuplexMode `json:"duplex"`
	Copies  int        `json:"copies"`
	Collate bool       `json:"collate"`

	ShouldPrintBackgrounds   bool `json:"shouldPrintBackgrounds"`
	ShouldPrintSelectionOnly bool `json:"shouldPrintSelectionOnly"`
	PreviewModifiable        bool `json:"previewModifiable"`
	RasterizePDF             bool `json:"rasterizePDF"`
	FitToPageEnabled         bool `json:"fitToPageEnabled"`

	ScaleFactor   int `json:"scaleFactor"`
	PagesPerSheet int `json:"pagesPerSheet"`
	DPIHorizontal int `json:"dpiHorizontal"`
	DPIVertical   int `json:"dpiVertical"`
}

// Build derives the ticket for a settings snapshot. It is a pure function of its arguments.
func Build(s Settings, env Env, requestID int) Ticket {
	t := Ticket{
		RequestID:      requestID,
		IsFirstRequest: requestID == 0,
		DeviceName:     env.Destination.ID,

		MediaSize: s.MediaSize,
		PageRange: slices.Clone(s.Ranges),
		PageCount: env.Document.PageCount,
		Landscape: s.Layout,
		Color:     ColorModeOf(s.Color),

		HeaderFooterEnabled: s.HeaderFooter,
		MarginsType:         s.Margins,

		Duplex:  s.Duplex,
		Copies:  s.Copies,
		Collate: s.Collate,

		ShouldPrintBackgrounds:   s.CSSBackground,
		ShouldPrintSelectionOnly: s.SelectionOnly,
		PreviewModifiable:        env.Document.PreviewModifiable,
		RasterizePDF:             s.Rasterize,
		FitToPageEnabled:         s.FitToPage,

		ScaleFactor:   s.ScaleFactor(),
		PagesPerSheet: s.PagesPerSheet,
		DPIHorizontal: s.DPI.HorizontalDPI,
		DPIVertical:   s.DPI.VerticalDPI,
	}

	if t.PageRange == nil {
		t.PageRange = []PageRange{}
	}

	if s.Margins == MarginsCustom {
		margins := s.CustomMargins
		t.MarginsCustom = &margins
	}

	return t
}

func (t Ticket) Marshal() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to serialize print ticket: %w", err)
	}

	return string(data), nil
}

func Parse(data string) (Ticket, error) {
	var result Ticket
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return result, fmt.Errorf("failed to parse print ticket: %w", err)
	}

	return result, nil
}
