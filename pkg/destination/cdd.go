package destination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

const SupportedCDDVersion = "1.0"

var ErrUnsupportedVersion = fmt.Errorf("unsupported capabilities document version")

type ColorType string

const (
	ColorStandardColor      ColorType = "STANDARD_COLOR"
	ColorStandardMonochrome ColorType = "STANDARD_MONOCHROME"
	ColorCustomColor        ColorType = "CUSTOM_COLOR"
	ColorCustomMonochrome   ColorType = "CUSTOM_MONOCHROME"
	ColorAuto               ColorType = "AUTO"
)

func (t ColorType) IsColor() bool {
	return t == ColorStandardColor || t == ColorCustomColor
}

func (t ColorType) IsMonochrome() bool {
	return t == ColorStandardMonochrome || t == ColorCustomMonochrome
}

type DuplexType string

const (
	DuplexNone      DuplexType = "NO_DUPLEX"
	DuplexLongEdge  DuplexType = "LONG_EDGE"
	DuplexShortEdge DuplexType = "SHORT_EDGE"
)

type OrientationType string

const (
	OrientationPortrait  OrientationType = "PORTRAIT"
	OrientationLandscape OrientationType = "LANDSCAPE"
	OrientationAuto      OrientationType = "AUTO"
)

// MediaSize is both a capability option and the value of the `mediaSize` setting.
type MediaSize struct {
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	WidthMicrons      int    `json:"width_microns" yaml:"width_microns"`
	HeightMicrons     int    `json:"height_microns" yaml:"height_microns"`
	CustomDisplayName string `json:"custom_display_name,omitempty" yaml:"custom_display_name,omitempty"`
	VendorID          string `json:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	IsDefault         bool   `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

func (m MediaSize) SameSize(other MediaSize) bool {
	return m.WidthMicrons == other.WidthMicrons && m.HeightMicrons == other.HeightMicrons
}

func (m MediaSize) DisplayName() string {
	if m.CustomDisplayName != "" {
		return m.CustomDisplayName
	}
	return m.Name
}

type MediaSizeCapability struct {
	Option []MediaSize `json:"option" yaml:"option"`
}

type ColorOption struct {
	Type              ColorType `json:"type" yaml:"type"`
	VendorID          string    `json:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	CustomDisplayName string    `json:"custom_display_name,omitempty" yaml:"custom_display_name,omitempty"`
	IsDefault         bool      `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

type ColorCapability struct {
	Option []ColorOption `json:"option" yaml:"option"`
}

type DuplexOption struct {
	Type      DuplexType `json:"type" yaml:"type"`
	IsDefault bool       `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

type DuplexCapability struct {
	Option []DuplexOption `json:"option" yaml:"option"`
}

type OrientationOption struct {
	Type      OrientationType `json:"type" yaml:"type"`
	IsDefault bool            `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

type PageOrientationCapability struct {
	Option []OrientationOption `json:"option" yaml:"option"`
}

// DPI is both a capability option and the value of the `dpi` setting.
type DPI struct {
	HorizontalDPI int    `json:"horizontal_dpi" yaml:"horizontal_dpi"`
	VerticalDPI   int    `json:"vertical_dpi" yaml:"vertical_dpi"`
	VendorID      string `json:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	IsDefault     bool   `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

func (d DPI) SameResolution(other DPI) bool {
	return d.HorizontalDPI == other.HorizontalDPI && d.VerticalDPI == other.VerticalDPI
}

type DPICapability struct {
	Option []DPI `json:"option" yaml:"option"`
}

type CopiesCapability struct {
	Default int `json:"default,omitempty" yaml:"default,omitempty"`
	Max     int `json:"max,omitempty" yaml:"max,omitempty"`
}

type CollateCapability struct {
	Default bool `json:"default" yaml:"default"`
}

// Capabilities is the printer section of a Cloud Device Description.
// A nil section means the destination does not expose that capability.
type Capabilities struct {
	MediaSize       *MediaSizeCapability       `json:"media_size,omitempty" yaml:"media_size,omitempty"`
	Color           *ColorCapability           `json:"color,omitempty" yaml:"color,omitempty"`
	Duplex          *DuplexCapability          `json:"duplex,omitempty" yaml:"duplex,omitempty"`
	PageOrientation *PageOrientationCapability `json:"page_orientation,omitempty" yaml:"page_orientation,omitempty"`
	DPI             *DPICapability             `json:"dpi,omitempty" yaml:"dpi,omitempty"`
	Copies          *CopiesCapability          `json:"copies,omitempty" yaml:"copies,omitempty"`
	Collate         *CollateCapability         `json:"collate,omitempty" yaml:"collate,omitempty"`
}

// CDD is a Cloud Device Description document
type CDD struct {
	Version string       `json:"version" yaml:"version"`
	Printer Capabilities `json:"printer" yaml:"printer"`
}

// Validate checks that the document version is one this package understands.
func (c CDD) Validate() error {
	version := c.Version
	if version == "" {
		return nil
	}

	v := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: malformed version %q", ErrUnsupportedVersion, version)
	}

	if semver.Major(v) != semver.Major("v"+SupportedCDDVersion) {
		return fmt.Errorf("%w: %q, expected %q", ErrUnsupportedVersion, version, SupportedCDDVersion)
	}

	return nil
}

// ParseCDD decodes a capabilities document given either as JSON or YAML.
func ParseCDD(data []byte) (CDD, error) {
	var result CDD
	if err := decode(data, &result); err != nil {
		return result, fmt.Errorf("failed to parse capabilities document: %w", err)
	}

	if result.Version == "" {
		result.Version = SupportedCDDVersion
	}

	return result, result.Validate()
}

func decode(data []byte, dest any) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return json.Unmarshal(trimmed, dest)
	}

	return yaml.Unmarshal(data, dest)
}
