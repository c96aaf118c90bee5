package ticket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sre-norns/vellum/pkg/destination"
	"gopkg.in/yaml.v3"
)

type ColorMode int

const (
	ColorGray  ColorMode = 1
	ColorColor ColorMode = 2
)

func ColorModeOf(color bool) ColorMode {
	if color {
		return ColorColor
	}
	return ColorGray
}

func (c ColorMode) String() string {
	switch c {
	case ColorGray:
		return "GRAY"
	case ColorColor:
		return "COLOR"
	}
	return fmt.Sprintf("ColorMode(%d)", int(c))
}

type MarginsType int

const (
	MarginsDefault MarginsType = iota
	MarginsNone
	MarginsMinimum
	MarginsCustom
)

var marginsTypeNames = map[MarginsType]string{
	MarginsDefault: "DEFAULT",
	MarginsNone:    "NO_MARGINS",
	MarginsMinimum: "MINIMUM",
	MarginsCustom:  "CUSTOM",
}

func (m MarginsType) String() string {
	if name, ok := marginsTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MarginsType(%d)", int(m))
}

func (m MarginsType) IsValid() bool {
	_, ok := marginsTypeNames[m]
	return ok
}

// ParseMarginsType accepts either a margins type name, such as "MINIMUM", or its numeric value.
func ParseMarginsType(text string) (MarginsType, error) {
	text = strings.TrimSpace(text)
	for value, name := range marginsTypeNames {
		if strings.EqualFold(name, text) {
			return value, nil
		}
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return MarginsDefault, fmt.Errorf("unknown margins type %q", text)
	}

	return MarginsType(n), nil
}

func (m *MarginsType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*m = MarginsType(n)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("margins type must be a number or a name: %w", err)
	}

	value, err := ParseMarginsType(text)
	if err != nil {
		return err
	}

	*m = value
	return nil
}

func (m *MarginsType) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}

	value, err := ParseMarginsType(text)
	if err != nil {
		return err
	}

	*m = value
	return nil
}

type DuplexMode int

const (
	Simplex DuplexMode = iota
	LongEdge
	ShortEdge
)

func DuplexModeOf(t destination.DuplexType) DuplexMode {
	switch t {
	case destination.DuplexLongEdge:
		return LongEdge
	case destination.DuplexShortEdge:
		return ShortEdge
	}
	return Simplex
}

func (d DuplexMode) Type() destination.DuplexType {
	switch d {
	case LongEdge:
		return destination.DuplexLongEdge
	case ShortEdge:
		return destination.DuplexShortEdge
	}
	return destination.DuplexNone
}

func (d DuplexMode) String() string {
	return string(d.Type())
}

// PageRange is an inclusive, 1-based range of document pages.
type PageRange struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// MarginPoints are custom margins expressed in points.
type MarginPoints struct {
	Top    float64 `json:"marginTop" yaml:"marginTop"`
	Right  float64 `json:"marginRight" yaml:"marginRight"`
	Bottom float64 `json:"marginBottom" yaml:"marginBottom"`
	Left   float64 `json:"marginLeft" yaml:"marginLeft"`
}

func (m MarginPoints) isValid() bool {
	return m.Top >= 0 && m.Right >= 0 && m.Bottom >= 0 && m.Left >= 0
}
