package ticket_test

import (
	"encoding/json"
	"testing"

	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/ticket"
	"github.com/stretchr/testify/require"
)

func testEnv(modifiable bool) ticket.Env {
	return ticket.Env{
		Document: ticket.Document{
			Title:             "title",
			PreviewModifiable: modifiable,
			HasSelection:      true,
			PageCount:         3,
		},
		Destination: destination.Template("FooDevice"),
	}
}

func TestRegistryCoversAllNames(t *testing.T) {
	s := ticket.Defaults(testEnv(true))
	for _, name := range ticket.Names() {
		require.True(t, ticket.IsKnown(name), name)
		_, err := ticket.Value(s, name)
		require.NoError(t, err, name)
	}

	require.False(t, ticket.IsKnown(ticket.DestinationNode))
}

func TestDefaults(t *testing.T) {
	s := ticket.Defaults(testEnv(true))

	require.True(t, s.Color)
	require.True(t, s.HeaderFooter)
	require.False(t, s.Layout)
	require.Equal(t, ticket.MarginsDefault, s.Margins)
	require.Equal(t, 1, s.PagesPerSheet)
	require.Equal(t, "100", s.Scaling)
	require.False(t, s.CustomScaling)
	require.Equal(t, 279400, s.MediaSize.HeightMicrons)
	require.Equal(t, 200, s.DPI.HorizontalDPI)
	require.Equal(t, 1, s.Copies)
	require.True(t, s.Collate)
	require.Equal(t, ticket.Simplex, s.Duplex)
	require.NotNil(t, s.Ranges)
	require.Empty(t, s.Ranges)
}

func TestAssign(t *testing.T) {
	testCases := map[string]struct {
		name        ticket.Name
		value       any
		pdf         bool
		expect      any
		expectError error
	}{
		"color": {
			name:   ticket.Color,
			value:  false,
			expect: false,
		},
		"color-from-string": {
			name:        ticket.Color,
			value:       "false",
			expectError: ticket.ErrInvalidSettingValue,
		},
		"margins-typed": {
			name:   ticket.Margins,
			value:  ticket.MarginsMinimum,
			expect: ticket.MarginsMinimum,
		},
		"margins-int": {
			name:   ticket.Margins,
			value:  1,
			expect: ticket.MarginsNone,
		},
		"margins-name": {
			name:   ticket.Margins,
			value:  "CUSTOM",
			expect: ticket.MarginsCustom,
		},
		"margins-out-of-range": {
			name:        ticket.Margins,
			value:       7,
			expectError: ticket.ErrInvalidSettingValue,
		},
		"margins-on-pdf": {
			name:        ticket.Margins,
			value:       ticket.MarginsMinimum,
			pdf:         true,
			expectError: ticket.ErrSettingUnavailable,
		},
		"media-size-square": {
			name:   ticket.MediaSize,
			value:  map[string]any{"width_microns": 215900, "height_microns": 215900},
			expect: destination.Template("FooDevice").Caps().MediaSize.Option[1],
		},
		"media-size-unsupported": {
			name:        ticket.MediaSize,
			value:       destination.MediaSize{WidthMicrons: 210000, HeightMicrons: 297000},
			expectError: ticket.ErrInvalidSettingValue,
		},
		"ranges": {
			name:   ticket.Ranges,
			value:  []map[string]int{{"from": 1, "to": 2}},
			expect: []ticket.PageRange{{From: 1, To: 2}},
		},
		"ranges-past-end": {
			name:        ticket.Ranges,
			value:       []ticket.PageRange{{From: 2, To: 4}},
			expectError: ticket.ErrInvalidSettingValue,
		},
		"ranges-reversed": {
			name:        ticket.Ranges,
			value:       []ticket.PageRange{{From: 2, To: 1}},
			expectError: ticket.ErrInvalidSettingValue,
		},
		"pages-per-sheet": {
			name:   ticket.PagesPerSheet,
			value:  4.0,
			expect: 4,
		},
		"pages-per-sheet-odd": {
			name:        ticket.PagesPerSheet,
			value:       3,
			expectError: ticket.ErrInvalidSettingValue,
		},
		"scaling": {
			name:   ticket.Scaling,
			value:  "90",
			expect: "90",
		},
		"scaling-not-numeric": {
			name:        ticket.Scaling,
			value:       "abc",
			expectError: ticket.ErrInvalidSettingValue,
		},
		"scaling-too-big": {
			name:        ticket.Scaling,
			value:       "201",
			expectError: ticket.ErrInvalidSettingValue,
		},
		"scaling-as-number": {
			name:        ticket.Scaling,
			value:       90,
			expectError: ticket.ErrInvalidSettingValue,
		},
		"fit-to-page-on-html": {
			name:        ticket.FitToPage,
			value:       true,
			expectError: ticket.ErrSettingUnavailable,
		},
		"fit-to-page-on-pdf": {
			name:   ticket.FitToPage,
			value:  true,
			pdf:    true,
			expect: true,
		},
		"rasterize-on-pdf": {
			name:   ticket.Rasterize,
			value:  true,
			pdf:    true,
			expect: true,
		},
		"selection-only": {
			name:   ticket.SelectionOnly,
			value:  true,
			expect: true,
		},
		"dpi": {
			name:   ticket.DPI,
			value:  destination.DPI{HorizontalDPI: 100, VerticalDPI: 100},
			expect: destination.DPI{HorizontalDPI: 100, VerticalDPI: 100},
		},
		"dpi-unsupported": {
			name:        ticket.DPI,
			value:       destination.DPI{HorizontalDPI: 300, VerticalDPI: 300},
			expectError: ticket.ErrInvalidSettingValue,
		},
		"copies": {
			name:   ticket.Copies,
			value:  12,
			expect: 12,
		},
		"copies-zero": {
			name:        ticket.Copies,
			value:       0,
			expectError: ticket.ErrInvalidSettingValue,
		},
		"duplex": {
			name:   ticket.Duplex,
			value:  ticket.LongEdge,
			expect: ticket.LongEdge,
		},
		"nil": {
			name:        ticket.Layout,
			value:       nil,
			expectError: ticket.ErrInvalidSettingValue,
		},
		"json-null": {
			name:        ticket.Layout,
			value:       json.RawMessage("null"),
			expectError: ticket.ErrInvalidSettingValue,
		},
		"json-raw": {
			name:   ticket.Layout,
			value:  json.RawMessage("true"),
			expect: true,
		},
		"unknown": {
			name:        ticket.Name("fooBar"),
			value:       true,
			expectError: ticket.ErrUnknownSetting,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			env := testEnv(!test.pdf)
			s := ticket.Defaults(env)
			before := s.Clone()

			changed, err := ticket.Assign(&s, test.name, test.value, env)
			if test.expectError != nil {
				require.ErrorIs(t, err, test.expectError)
				require.False(t, changed)
				require.Equal(t, before, s)
				return
			}

			require.NoError(t, err)
			require.True(t, changed)

			got, err := ticket.Value(s, test.name)
			require.NoError(t, err)
			require.Equal(t, test.expect, got)
		})
	}
}

func TestAssign_SameValueIsNoop(t *testing.T) {
	env := testEnv(true)
	s := ticket.Defaults(env)

	changed, err := ticket.Assign(&s, ticket.PagesPerSheet, 1, env)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = ticket.Assign(&s, ticket.Ranges, []ticket.PageRange{}, env)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestAssign_MonochromeDestination(t *testing.T) {
	env := testEnv(true)
	env.Destination.Capabilities.Printer.Color = &destination.ColorCapability{
		Option: []destination.ColorOption{{Type: destination.ColorStandardMonochrome, IsDefault: true}},
	}

	s := ticket.Defaults(env)
	require.False(t, s.Color)

	_, err := ticket.Assign(&s, ticket.Color, true, env)
	require.ErrorIs(t, err, ticket.ErrSettingUnavailable)
}

func TestSettingError(t *testing.T) {
	env := testEnv(true)
	s := ticket.Defaults(env)

	_, err := ticket.Assign(&s, ticket.Scaling, "abc", env)

	var settingErr *ticket.SettingError
	require.ErrorAs(t, err, &settingErr)
	require.Equal(t, ticket.Scaling, settingErr.Name)
	require.Equal(t, "scaling=abc", settingErr.WhatHappened())
	require.NotEmpty(t, settingErr.WhatExpected())
	require.NotEmpty(t, settingErr.WhatToDo())
}

func TestParseValue(t *testing.T) {
	testCases := map[string]struct {
		name        ticket.Name
		given       string
		expect      any
		expectError error
	}{
		"bool": {
			name:   ticket.Color,
			given:  "false",
			expect: false,
		},
		"margins-name": {
			name:   ticket.Margins,
			given:  "MINIMUM",
			expect: ticket.MarginsMinimum,
		},
		"margins-number": {
			name:   ticket.Margins,
			given:  "3",
			expect: ticket.MarginsCustom,
		},
		"scaling-stays-text": {
			name:   ticket.Scaling,
			given:  "90",
			expect: "90",
		},
		"media-size": {
			name:   ticket.MediaSize,
			given:  "{width_microns: 215900, height_microns: 215900}",
			expect: destination.MediaSize{WidthMicrons: 215900, HeightMicrons: 215900},
		},
		"ranges": {
			name:   ticket.Ranges,
			given:  "[{from: 1, to: 3}]",
			expect: []ticket.PageRange{{From: 1, To: 3}},
		},
		"pages-per-sheet": {
			name:   ticket.PagesPerSheet,
			given:  "4",
			expect: 4,
		},
		"bad-int": {
			name:        ticket.PagesPerSheet,
			given:       "four",
			expectError: ticket.ErrInvalidSettingValue,
		},
		"unknown": {
			name:        ticket.Name("nope"),
			given:       "1",
			expectError: ticket.ErrUnknownSetting,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			got, err := ticket.ParseValue(test.name, test.given)
			if test.expectError != nil {
				require.ErrorIs(t, err, test.expectError)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expect, got)
		})
	}
}

func TestAffectsPreview(t *testing.T) {
	require.True(t, ticket.AffectsPreview(ticket.Margins))
	require.True(t, ticket.AffectsPreview(ticket.DestinationNode))
	require.True(t, ticket.AffectsPreview(ticket.Copies, ticket.Scaling))
	require.False(t, ticket.AffectsPreview(ticket.Copies, ticket.Collate, ticket.Duplex))
	require.False(t, ticket.AffectsPreview())
}
