package ticket

// Name identifies a print setting. The set of names is closed: every Name
// declared here has exactly one descriptor in the registry.
type Name string

const (
	Color         Name = "color"
	CSSBackground Name = "cssBackground"
	FitToPage     Name = "fitToPage"
	HeaderFooter  Name = "headerFooter"
	Layout        Name = "layout"
	Margins       Name = "margins"
	CustomMargins Name = "customMargins"
	MediaSize     Name = "mediaSize"
	Ranges        Name = "ranges"
	Rasterize     Name = "rasterize"
	PagesPerSheet Name = "pagesPerSheet"
	Scaling       Name = "scaling"
	CustomScaling Name = "customScaling"
	SelectionOnly Name = "selectionOnly"
	DPI           Name = "dpi"
	Copies        Name = "copies"
	Collate       Name = "collate"
	Duplex        Name = "duplex"
)

// DestinationNode is not a setting. It is the graph node that fires when the
// active destination is replaced.
const DestinationNode Name = "destination"

// Names lists every setting in a stable order.
func Names() []Name {
	return []Name{
		Color,
		CSSBackground,
		FitToPage,
		HeaderFooter,
		Layout,
		Margins,
		CustomMargins,
		MediaSize,
		Ranges,
		Rasterize,
		PagesPerSheet,
		Scaling,
		CustomScaling,
		SelectionOnly,
		DPI,
		Copies,
		Collate,
		Duplex,
	}
}

func (n Name) String() string {
	return string(n)
}
