package destination

const defaultMaxCopies = 999

// DefaultMediaSize returns the option marked as default, or the first one listed.
func (c Capabilities) DefaultMediaSize() (MediaSize, bool) {
	if c.MediaSize == nil || len(c.MediaSize.Option) == 0 {
		return MediaSize{}, false
	}

	for _, option := range c.MediaSize.Option {
		if option.IsDefault {
			return option, true
		}
	}

	return c.MediaSize.Option[0], true
}

// FindMediaSize looks up a capability option with the same dimensions as the given size.
func (c Capabilities) FindMediaSize(size MediaSize) (MediaSize, bool) {
	if c.MediaSize == nil {
		return MediaSize{}, false
	}

	for _, option := range c.MediaSize.Option {
		if option.SameSize(size) && (size.Name == "" || option.Name == size.Name) {
			return option, true
		}
	}

	return MediaSize{}, false
}

func (c Capabilities) HasColorChoice() bool {
	return c.SupportsColor(true) && c.SupportsColor(false)
}

// SupportsColor reports whether printing in color (or monochrome if false) is offered.
// A destination without color capability accepts only its default mode.
func (c Capabilities) SupportsColor(color bool) bool {
	if c.Color == nil || len(c.Color.Option) == 0 {
		return color == c.DefaultColor()
	}

	for _, option := range c.Color.Option {
		if (color && option.Type.IsColor()) || (!color && option.Type.IsMonochrome()) {
			return true
		}
	}

	return false
}

func (c Capabilities) DefaultColor() bool {
	if c.Color == nil || len(c.Color.Option) == 0 {
		return true
	}

	var fallback *ColorOption
	for i, option := range c.Color.Option {
		if !option.Type.IsColor() && !option.Type.IsMonochrome() {
			continue
		}
		if option.IsDefault {
			return option.Type.IsColor()
		}
		if fallback == nil {
			fallback = &c.Color.Option[i]
		}
	}

	if fallback == nil {
		return true
	}

	return fallback.Type.IsColor()
}

func (c Capabilities) SupportsDuplex(duplex DuplexType) bool {
	if c.Duplex == nil || len(c.Duplex.Option) == 0 {
		return duplex == DuplexNone
	}

	for _, option := range c.Duplex.Option {
		if option.Type == duplex {
			return true
		}
	}

	return false
}

func (c Capabilities) HasDuplexChoice() bool {
	return c.SupportsDuplex(DuplexLongEdge) || c.SupportsDuplex(DuplexShortEdge)
}

func (c Capabilities) DefaultDuplex() DuplexType {
	if c.Duplex == nil || len(c.Duplex.Option) == 0 {
		return DuplexNone
	}

	for _, option := range c.Duplex.Option {
		if option.IsDefault {
			return option.Type
		}
	}

	return c.Duplex.Option[0].Type
}

func (c Capabilities) DefaultDPI() (DPI, bool) {
	if c.DPI == nil || len(c.DPI.Option) == 0 {
		return DPI{}, false
	}

	for _, option := range c.DPI.Option {
		if option.IsDefault {
			return option, true
		}
	}

	return c.DPI.Option[0], true
}

func (c Capabilities) FindDPI(dpi DPI) (DPI, bool) {
	if c.DPI == nil {
		return DPI{}, false
	}

	for _, option := range c.DPI.Option {
		if option.SameResolution(dpi) {
			return option, true
		}
	}

	return DPI{}, false
}

// DefaultLandscape reports whether the destination prefers landscape orientation.
func (c Capabilities) DefaultLandscape() bool {
	if c.PageOrientation == nil {
		return false
	}

	for _, option := range c.PageOrientation.Option {
		if option.IsDefault {
			return option.Type == OrientationLandscape
		}
	}

	return false
}

func (c Capabilities) DefaultCopies() int {
	if c.Copies == nil || c.Copies.Default < 1 {
		return 1
	}
	return c.Copies.Default
}

func (c Capabilities) MaxCopies() int {
	if c.Copies == nil {
		return 1
	}
	if c.Copies.Max < 1 {
		return defaultMaxCopies
	}
	return c.Copies.Max
}

func (c Capabilities) DefaultCollate() bool {
	return c.Collate != nil && c.Collate.Default
}
