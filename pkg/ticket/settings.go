package ticket

import (
	"slices"
	"strconv"

	"github.com/sre-norns/vellum/pkg/destination"
)

const (
	defaultScaling     = "100"
	defaultScaleFactor = 100
)

// Document describes the content being printed.
type Document struct {
	Title             string `json:"title,omitempty" yaml:"title,omitempty"`
	PreviewModifiable bool   `json:"previewModifiable" yaml:"previewModifiable"`
	HasSelection      bool   `json:"hasSelection,omitempty" yaml:"hasSelection,omitempty"`
	PageCount         int    `json:"pageCount" yaml:"pageCount"`
}

// Env is everything besides the settings themselves that validation and ticket
// derivation depend on.
type Env struct {
	Document    Document
	Destination destination.Destination
}

func (e Env) caps() destination.Capabilities {
	return e.Destination.Caps()
}

// Settings is the full mapping of print settings, one field per Name.
type Settings struct {
	Color         bool                  `json:"color" yaml:"color"`
	CSSBackground bool                  `json:"cssBackground" yaml:"cssBackground"`
	FitToPage     bool                  `json:"fitToPage" yaml:"fitToPage"`
	HeaderFooter  bool                  `json:"headerFooter" yaml:"headerFooter"`
	Layout        bool                  `json:"layout" yaml:"layout"`
	Margins       MarginsType           `json:"margins" yaml:"margins"`
	CustomMargins MarginPoints          `json:"customMargins" yaml:"customMargins"`
	MediaSize     destination.MediaSize `json:"mediaSize" yaml:"mediaSize"`
	Ranges        []PageRange           `json:"ranges" yaml:"ranges"`
	Rasterize     bool                  `json:"rasterize" yaml:"rasterize"`
	PagesPerSheet int                   `json:"pagesPerSheet" yaml:"pagesPerSheet"`
	Scaling       string                `json:"scaling" yaml:"scaling"`
	CustomScaling bool                  `json:"customScaling" yaml:"customScaling"`
	SelectionOnly bool                  `json:"selectionOnly" yaml:"selectionOnly"`
	DPI           destination.DPI       `json:"dpi" yaml:"dpi"`
	Copies        int                   `json:"copies" yaml:"copies"`
	Collate       bool                  `json:"collate" yaml:"collate"`
	Duplex        DuplexMode            `json:"duplex" yaml:"duplex"`
}

// Defaults returns the initial settings for a document printed to the environment's destination.
func Defaults(env Env) Settings {
	caps := env.caps()

	s := Settings{
		Color:         caps.DefaultColor(),
		HeaderFooter:  true,
		Layout:        caps.DefaultLandscape(),
		Margins:       MarginsDefault,
		Ranges:        []PageRange{},
		PagesPerSheet: 1,
		Scaling:       defaultScaling,
		Copies:        caps.DefaultCopies(),
		Collate:       caps.DefaultCollate(),
		Duplex:        DuplexModeOf(caps.DefaultDuplex()),
	}

	if size, ok := caps.DefaultMediaSize(); ok {
		s.MediaSize = size
	}
	if dpi, ok := caps.DefaultDPI(); ok {
		s.DPI = dpi
	}

	return s
}

func (s Settings) Clone() Settings {
	result := s
	result.Ranges = slices.Clone(s.Ranges)
	if result.Ranges == nil {
		result.Ranges = []PageRange{}
	}

	return result
}

// ScaleFactor is the effective scale: 100 unless custom scaling is on.
func (s Settings) ScaleFactor() int {
	if !s.CustomScaling {
		return defaultScaleFactor
	}

	value, err := strconv.Atoi(s.Scaling)
	if err != nil {
		return defaultScaleFactor
	}

	return value
}
