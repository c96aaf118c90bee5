package ticket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/sre-norns/vellum/pkg/destination"
	"gopkg.in/yaml.v3"
)

var validPagesPerSheet = []int{1, 2, 4, 6, 9, 16}

const (
	minScaling = 10
	maxScaling = 200
)

type descriptor struct {
	name           Name
	affectsPreview bool

	get    func(s *Settings) any
	assign func(s *Settings, value any, env Env) (bool, error)
	parse  func(text string) (any, error)
}

type fieldRules[T any] struct {
	// Human readable description of the value domain
	expected string
	// Condition under which the setting may be changed at all; nil means always
	available func(env Env) bool
	requires  string
	// Checks the value and returns its canonical form
	validate func(value T, env Env) (T, bool)
}

func field[T any](name Name, affectsPreview bool, ref func(s *Settings) *T, rules fieldRules[T]) descriptor {
	return descriptor{
		name:           name,
		affectsPreview: affectsPreview,
		get: func(s *Settings) any {
			return *ref(s)
		},
		assign: func(s *Settings, value any, env Env) (bool, error) {
			v, err := coerce[T](value)
			if err != nil {
				return false, invalidValue(name, value, rules.expected)
			}

			if rules.available != nil && !rules.available(env) {
				return false, unavailable(name, value, rules.requires)
			}

			if rules.validate != nil {
				var ok bool
				if v, ok = rules.validate(v, env); !ok {
					return false, invalidValue(name, value, rules.expected)
				}
			}

			current := ref(s)
			if reflect.DeepEqual(*current, v) {
				return false, nil
			}

			*current = v
			return true, nil
		},
		parse: func(text string) (any, error) {
			var result T
			if _, ok := any(result).(string); ok {
				return text, nil
			}

			if err := yaml.Unmarshal([]byte(text), &result); err != nil {
				return nil, invalidValue(name, text, rules.expected)
			}
			return result, nil
		},
	}
}

// coerce converts a loosely typed value, such as one decoded from JSON, into T.
func coerce[T any](value any) (T, error) {
	var result T
	if value == nil {
		return result, fmt.Errorf("nil value")
	}

	if v, ok := value.(T); ok {
		return v, nil
	}

	data, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if data, err = json.Marshal(value); err != nil {
			return result, err
		}
	}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return result, fmt.Errorf("null value")
	}

	err := json.Unmarshal(data, &result)
	return result, err
}

func modifiable(env Env) bool {
	return env.Document.PreviewModifiable
}

func notModifiable(env Env) bool {
	return !env.Document.PreviewModifiable
}

var descriptors = newRegistry()

func newRegistry() map[Name]descriptor {
	result := make(map[Name]descriptor, len(Names()))
	register := func(d descriptor) {
		if _, ok := result[d.name]; ok {
			panic(fmt.Sprintf("setting %q registered twice", d.name))
		}
		result[d.name] = d
	}

	register(field(Color, true, func(s *Settings) *bool { return &s.Color }, fieldRules[bool]{
		expected:  "a color mode offered by the destination",
		available: func(env Env) bool { return env.caps().HasColorChoice() },
		requires:  "a destination offering both color and monochrome",
		validate: func(v bool, env Env) (bool, bool) {
			return v, env.caps().SupportsColor(v)
		},
	}))

	register(field(CSSBackground, true, func(s *Settings) *bool { return &s.CSSBackground }, fieldRules[bool]{
		expected:  "a boolean",
		available: modifiable,
		requires:  "a modifiable document",
	}))

	register(field(FitToPage, true, func(s *Settings) *bool { return &s.FitToPage }, fieldRules[bool]{
		expected:  "a boolean",
		available: notModifiable,
		requires:  "a PDF document",
	}))

	register(field(HeaderFooter, true, func(s *Settings) *bool { return &s.HeaderFooter }, fieldRules[bool]{
		expected:  "a boolean",
		available: modifiable,
		requires:  "a modifiable document",
	}))

	register(field(Layout, true, func(s *Settings) *bool { return &s.Layout }, fieldRules[bool]{
		expected: "a boolean, true for landscape",
	}))

	register(field(Margins, true, func(s *Settings) *MarginsType { return &s.Margins }, fieldRules[MarginsType]{
		expected:  "one of DEFAULT, NO_MARGINS, MINIMUM or CUSTOM",
		available: modifiable,
		requires:  "a modifiable document",
		validate: func(v MarginsType, _ Env) (MarginsType, bool) {
			return v, v.IsValid()
		},
	}))

	register(field(CustomMargins, true, func(s *Settings) *MarginPoints { return &s.CustomMargins }, fieldRules[MarginPoints]{
		expected:  "non-negative margins in points",
		available: modifiable,
		requires:  "a modifiable document",
		validate: func(v MarginPoints, _ Env) (MarginPoints, bool) {
			return v, v.isValid()
		},
	}))

	register(field(MediaSize, true, func(s *Settings) *destination.MediaSize { return &s.MediaSize }, fieldRules[destination.MediaSize]{
		expected:  "a media size offered by the destination",
		available: func(env Env) bool { return env.caps().MediaSize != nil },
		requires:  "a destination with media size capability",
		validate: func(v destination.MediaSize, env Env) (destination.MediaSize, bool) {
			return env.caps().FindMediaSize(v)
		},
	}))

	register(field(Ranges, true, func(s *Settings) *[]PageRange { return &s.Ranges }, fieldRules[[]PageRange]{
		expected: "page ranges within the document",
		validate: func(v []PageRange, env Env) ([]PageRange, bool) {
			result := make([]PageRange, 0, len(v))
			for _, r := range v {
				if r.From < 1 || r.To < r.From {
					return nil, false
				}
				if env.Document.PageCount > 0 && r.To > env.Document.PageCount {
					return nil, false
				}
				result = append(result, r)
			}
			return result, true
		},
	}))

	register(field(Rasterize, true, func(s *Settings) *bool { return &s.Rasterize }, fieldRules[bool]{
		expected:  "a boolean",
		available: notModifiable,
		requires:  "a PDF document",
	}))

	register(field(PagesPerSheet, true, func(s *Settings) *int { return &s.PagesPerSheet }, fieldRules[int]{
		expected: fmt.Sprintf("one of %v", validPagesPerSheet),
		validate: func(v int, _ Env) (int, bool) {
			for _, n := range validPagesPerSheet {
				if n == v {
					return v, true
				}
			}
			return v, false
		},
	}))

	register(field(Scaling, true, func(s *Settings) *string { return &s.Scaling }, fieldRules[string]{
		expected: fmt.Sprintf("a whole number between %d and %d as a string", minScaling, maxScaling),
		validate: func(v string, _ Env) (string, bool) {
			n, err := strconv.Atoi(v)
			if err != nil || n < minScaling || n > maxScaling {
				return v, false
			}
			return strconv.Itoa(n), true
		},
	}))

	register(field(CustomScaling, true, func(s *Settings) *bool { return &s.CustomScaling }, fieldRules[bool]{
		expected: "a boolean",
	}))

	register(field(SelectionOnly, true, func(s *Settings) *bool { return &s.SelectionOnly }, fieldRules[bool]{
		expected: "a boolean",
		available: func(env Env) bool {
			return env.Document.PreviewModifiable && env.Document.HasSelection
		},
		requires: "a modifiable document with a selection",
	}))

	register(field(DPI, true, func(s *Settings) *destination.DPI { return &s.DPI }, fieldRules[destination.DPI]{
		expected:  "a resolution offered by the destination",
		available: func(env Env) bool { return env.caps().DPI != nil },
		requires:  "a destination with resolution capability",
		validate: func(v destination.DPI, env Env) (destination.DPI, bool) {
			return env.caps().FindDPI(v)
		},
	}))

	register(field(Copies, false, func(s *Settings) *int { return &s.Copies }, fieldRules[int]{
		expected: "a number of copies the destination can print",
		validate: func(v int, env Env) (int, bool) {
			return v, v >= 1 && v <= env.caps().MaxCopies()
		},
	}))

	register(field(Collate, false, func(s *Settings) *bool { return &s.Collate }, fieldRules[bool]{
		expected:  "a boolean",
		available: func(env Env) bool { return env.caps().Collate != nil },
		requires:  "a destination with collate capability",
	}))

	register(field(Duplex, false, func(s *Settings) *DuplexMode { return &s.Duplex }, fieldRules[DuplexMode]{
		expected:  "a duplex mode offered by the destination",
		available: func(env Env) bool { return env.caps().HasDuplexChoice() },
		requires:  "a duplex capable destination",
		validate: func(v DuplexMode, env Env) (DuplexMode, bool) {
			return v, v >= Simplex && v <= ShortEdge && env.caps().SupportsDuplex(v.Type())
		},
	}))

	return result
}

func lookup(name Name) (descriptor, error) {
	d, ok := descriptors[name]
	if !ok {
		return d, &SettingError{Name: name, Err: ErrUnknownSetting}
	}
	return d, nil
}

// IsKnown reports whether the name identifies a setting.
func IsKnown(name Name) bool {
	_, ok := descriptors[name]
	return ok
}

// Assign validates value against the setting's domain and stores it.
// It reports whether the stored value changed; s is left untouched on error.
func Assign(s *Settings, name Name, value any, env Env) (bool, error) {
	d, err := lookup(name)
	if err != nil {
		return false, err
	}

	return d.assign(s, value, env)
}

// Value returns the current value of the named setting.
func Value(s Settings, name Name) (any, error) {
	d, err := lookup(name)
	if err != nil {
		return nil, err
	}

	return d.get(&s), nil
}

// ParseValue decodes a textual value, as given on a command line, into the setting's type.
func ParseValue(name Name, text string) (any, error) {
	d, err := lookup(name)
	if err != nil {
		return nil, err
	}

	return d.parse(text)
}

// AffectsPreview reports whether a change to any of the names requires a new preview.
func AffectsPreview(names ...Name) bool {
	for _, name := range names {
		if name == DestinationNode {
			return true
		}
		if d, ok := descriptors[name]; ok && d.affectsPreview {
			return true
		}
	}

	return false
}
