package preview_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/nativelayer"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
	"github.com/stretchr/testify/require"
)

type requestLog struct {
	mu       sync.Mutex
	requests []preview.Request
}

func (l *requestLog) record(req preview.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
}

func (l *requestLog) tickets(t *testing.T) []ticket.Ticket {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]ticket.Ticket, 0, len(l.requests))
	for _, req := range l.requests {
		got, err := ticket.Parse(req.PrintTicket)
		require.NoError(t, err)
		require.Equal(t, req.RequestID, got.RequestID)
		result = append(result, got)
	}
	return result
}

func (l *requestLog) last(t *testing.T) ticket.Ticket {
	t.Helper()
	tickets := l.tickets(t)
	require.NotEmpty(t, tickets)
	return tickets[len(tickets)-1]
}

func newTestSession(t *testing.T, init preview.InitialSettings, options ...preview.Option) (*preview.Session, *nativelayer.Stub, *requestLog) {
	t.Helper()

	stub := nativelayer.NewStub(destination.Template("FooDevice"))
	log := &requestLog{}
	session := preview.NewSession(stub, stub, append(options, preview.WithID("test"), preview.WithRequestHandler(log.record))...)
	t.Cleanup(func() { _ = session.Close() })

	first, err := session.Initialize(context.Background(), init)
	require.NoError(t, err)
	require.Equal(t, 0, first.RequestID)
	require.True(t, first.IsFirstRequest)

	return session, stub, log
}

func TestSession_InitialPreview(t *testing.T) {
	session, stub, log := newTestSession(t, preview.DefaultInitialSettings())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	args, err := stub.WhenCalled(ctx, nativelayer.MethodGetPreview)
	require.NoError(t, err)
	require.Equal(t, 0, args.(preview.Request).RequestID)
	require.Equal(t, "test", args.(preview.Request).SessionID)

	require.NoError(t, session.Flush(ctx))
	latest, ok := session.LatestPreview()
	require.True(t, ok)
	require.Equal(t, 0, latest.RequestID)
	require.Equal(t, 3, latest.PageCount)

	got := log.last(t)
	require.Equal(t, "FooDevice", got.DeviceName)
	require.Equal(t, ticket.ColorColor, got.Color)
	require.Equal(t, 100, got.ScaleFactor)
	require.Equal(t, []any{"FooDevice"}, stub.Calls(nativelayer.MethodGetPrinterCapabilities))
}

// Each case changes one setting away from its default and expects the next ticket to carry it.
func TestSession_SettingRegeneratesPreview(t *testing.T) {
	square := destination.MediaSize{WidthMicrons: 215900, HeightMicrons: 215900}

	testCases := map[string]struct {
		pdf   bool
		name  ticket.Name
		value any
		check func(t *testing.T, got ticket.Ticket)
	}{
		"color": {
			name:  ticket.Color,
			value: false,
			check: func(t *testing.T, got ticket.Ticket) { require.Equal(t, ticket.ColorGray, got.Color) },
		},
		"cssBackground": {
			name:  ticket.CSSBackground,
			value: true,
			check: func(t *testing.T, got ticket.Ticket) { require.True(t, got.ShouldPrintBackgrounds) },
		},
		"fitToPage": {
			pdf:   true,
			name:  ticket.FitToPage,
			value: true,
			check: func(t *testing.T, got ticket.Ticket) { require.True(t, got.FitToPageEnabled) },
		},
		"headerFooter": {
			name:  ticket.HeaderFooter,
			value: false,
			check: func(t *testing.T, got ticket.Ticket) { require.False(t, got.HeaderFooterEnabled) },
		},
		"layout": {
			name:  ticket.Layout,
			value: true,
			check: func(t *testing.T, got ticket.Ticket) { require.True(t, got.Landscape) },
		},
		"margins": {
			name:  ticket.Margins,
			value: ticket.MarginsMinimum,
			check: func(t *testing.T, got ticket.Ticket) { require.Equal(t, ticket.MarginsMinimum, got.MarginsType) },
		},
		"mediaSize": {
			name:  ticket.MediaSize,
			value: square,
			check: func(t *testing.T, got ticket.Ticket) {
				require.Equal(t, 215900, got.MediaSize.WidthMicrons)
				require.Equal(t, 215900, got.MediaSize.HeightMicrons)
			},
		},
		"ranges": {
			name:  ticket.Ranges,
			value: []ticket.PageRange{{From: 1, To: 2}},
			check: func(t *testing.T, got ticket.Ticket) {
				require.Equal(t, []ticket.PageRange{{From: 1, To: 2}}, got.PageRange)
			},
		},
		"selectionOnly": {
			name:  ticket.SelectionOnly,
			value: true,
			check: func(t *testing.T, got ticket.Ticket) { require.True(t, got.ShouldPrintSelectionOnly) },
		},
		"pagesPerSheet": {
			name:  ticket.PagesPerSheet,
			value: 4,
			check: func(t *testing.T, got ticket.Ticket) { require.Equal(t, 4, got.PagesPerSheet) },
		},
		"rasterize": {
			pdf:   true,
			name:  ticket.Rasterize,
			value: true,
			check: func(t *testing.T, got ticket.Ticket) { require.True(t, got.RasterizePDF) },
		},
		"dpi": {
			name:  ticket.DPI,
			value: destination.DPI{HorizontalDPI: 100, VerticalDPI: 100},
			check: func(t *testing.T, got ticket.Ticket) {
				require.Equal(t, 100, got.DPIHorizontal)
				require.Equal(t, 100, got.DPIVertical)
			},
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			init := preview.DefaultInitialSettings()
			init.PreviewModifiable = !test.pdf
			init.HasSelection = true
			session, _, log := newTestSession(t, init)

			got, err := session.SetSetting(test.name, test.value)
			require.NoError(t, err)
			require.Equal(t, 1, got.RequestID)
			require.False(t, got.IsFirstRequest)
			test.check(t, got)

			require.Equal(t, got, log.last(t))
			require.Len(t, log.tickets(t), 2)
		})
	}
}

func TestSession_MarginsThenPagesPerSheet(t *testing.T) {
	session, _, log := newTestSession(t, preview.DefaultInitialSettings())

	got, err := session.SetSetting(ticket.Margins, ticket.MarginsMinimum)
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, ticket.MarginsMinimum, got.MarginsType)

	got, err = session.SetSetting(ticket.PagesPerSheet, 4)
	require.NoError(t, err)
	require.Equal(t, 2, got.RequestID)
	require.Equal(t, 4, got.PagesPerSheet)
	require.Equal(t, ticket.MarginsDefault, got.MarginsType)

	value, err := session.GetSettingValue(ticket.Margins)
	require.NoError(t, err)
	require.Equal(t, ticket.MarginsDefault, value)

	require.Len(t, log.tickets(t), 3)
}

func TestSession_MarginsByPagesPerSheet(t *testing.T) {
	session, _, _ := newTestSession(t, preview.DefaultInitialSettings())

	got, err := session.SetSetting(ticket.PagesPerSheet, 2)
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, ticket.MarginsDefault, got.MarginsType)

	got, err = session.SetSetting(ticket.Margins, ticket.MarginsMinimum)
	require.NoError(t, err)
	require.Equal(t, 2, got.RequestID)
	require.Equal(t, ticket.MarginsMinimum, got.MarginsType)

	got, err = session.SetSetting(ticket.PagesPerSheet, 1)
	require.NoError(t, err)
	require.Equal(t, 3, got.RequestID)
	require.Equal(t, ticket.MarginsMinimum, got.MarginsType)
}

func TestSession_Scaling(t *testing.T) {
	session, _, log := newTestSession(t, preview.DefaultInitialSettings())

	got, err := session.SetSetting(ticket.Scaling, "90")
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, 100, got.ScaleFactor)

	got, err = session.SetSetting(ticket.CustomScaling, true)
	require.NoError(t, err)
	require.Equal(t, 2, got.RequestID)
	require.Equal(t, 90, got.ScaleFactor)

	got, err = session.SetSetting(ticket.CustomScaling, false)
	require.NoError(t, err)
	require.Equal(t, 3, got.RequestID)
	require.Equal(t, 100, got.ScaleFactor)

	value, err := session.GetSettingValue(ticket.Scaling)
	require.NoError(t, err)
	require.Equal(t, "90", value)

	got, err = session.SetSetting(ticket.CustomScaling, true)
	require.NoError(t, err)
	require.Equal(t, 4, got.RequestID)
	require.Equal(t, 90, got.ScaleFactor)

	_, err = session.SetSetting(ticket.Scaling, "ninety")
	require.ErrorIs(t, err, ticket.ErrInvalidSettingValue)

	for i, issued := range log.tickets(t) {
		require.Equal(t, i, issued.RequestID)
	}
}

func TestSession_InvalidValuesDoNotIssue(t *testing.T) {
	session, _, log := newTestSession(t, preview.DefaultInitialSettings())

	before, err := session.Ticket()
	require.NoError(t, err)

	got, err := session.SetSetting(ticket.MediaSize, destination.MediaSize{WidthMicrons: 210000, HeightMicrons: 297000})
	require.ErrorIs(t, err, ticket.ErrInvalidSettingValue)
	require.Equal(t, before, got)

	_, err = session.SetSetting("zoom", 2)
	require.ErrorIs(t, err, ticket.ErrUnknownSetting)

	_, err = session.GetSettingValue("zoom")
	require.ErrorIs(t, err, ticket.ErrUnknownSetting)

	_, err = session.SetSetting(ticket.FitToPage, true)
	require.ErrorIs(t, err, ticket.ErrSettingUnavailable)

	after, err := session.Ticket()
	require.NoError(t, err)
	require.Equal(t, 0, after.RequestID)
	require.Len(t, log.tickets(t), 1)
}

func TestSession_SameValueAndPrintOnlySettingsDoNotIssue(t *testing.T) {
	session, _, log := newTestSession(t, preview.DefaultInitialSettings())

	got, err := session.SetSetting(ticket.PagesPerSheet, 1)
	require.NoError(t, err)
	require.Equal(t, 0, got.RequestID)

	got, err = session.SetSetting(ticket.Copies, 2)
	require.NoError(t, err)
	require.Equal(t, 0, got.RequestID)
	require.Equal(t, 2, got.Copies)

	got, err = session.SetSetting(ticket.Duplex, ticket.LongEdge)
	require.NoError(t, err)
	require.Equal(t, 0, got.RequestID)
	require.Equal(t, 2, got.Copies)
	require.Equal(t, ticket.LongEdge, got.Duplex)

	current, err := session.Ticket()
	require.NoError(t, err)
	require.Equal(t, got, current)

	got, err = session.SetSetting(ticket.Layout, true)
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, 2, got.Copies)
	require.Equal(t, ticket.LongEdge, got.Duplex)

	require.Len(t, log.tickets(t), 2)
}

func TestSession_SetSettingJSON(t *testing.T) {
	session, _, _ := newTestSession(t, preview.DefaultInitialSettings())

	got, err := session.SetSettingJSON(ticket.MediaSize, []byte(`{"width_microns":215900,"height_microns":215900}`))
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, "CUSTOM_SQUARE", got.MediaSize.Name)

	got, err = session.SetSettingJSON(ticket.Margins, []byte(`"NO_MARGINS"`))
	require.NoError(t, err)
	require.Equal(t, 2, got.RequestID)
	require.Equal(t, ticket.MarginsNone, got.MarginsType)

	_, err = session.SetSettingJSON(ticket.Color, []byte(`null`))
	require.ErrorIs(t, err, ticket.ErrInvalidSettingValue)
}

func TestSession_Destination(t *testing.T) {
	session, stub, _ := newTestSession(t, preview.DefaultInitialSettings())

	bar := destination.Template("BarDevice")
	bar.Capabilities.Printer.MediaSize = &destination.MediaSizeCapability{
		Option: []destination.MediaSize{
			{Name: "ISO_A4", WidthMicrons: 210000, HeightMicrons: 297000, IsDefault: true},
		},
	}
	stub.SetDestinationCapabilities(bar)

	got, err := session.SetDestination(context.Background(), "BarDevice")
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.Equal(t, "BarDevice", got.DeviceName)
	require.Equal(t, 210000, got.MediaSize.WidthMicrons)
	require.Equal(t, "BarDevice", session.Destination().ID)

	// Letter is no longer offered
	_, err = session.SetSetting(ticket.MediaSize, destination.MediaSize{WidthMicrons: 215900, HeightMicrons: 279400})
	require.ErrorIs(t, err, ticket.ErrInvalidSettingValue)

	got, err = session.SetSetting(ticket.MediaSize, destination.MediaSize{WidthMicrons: 210000, HeightMicrons: 297000})
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)

	// Same destination again is not a mutation
	got, err = session.SetDestination(context.Background(), "BarDevice")
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
}

func TestSession_DestinationFailure(t *testing.T) {
	session, stub, log := newTestSession(t, preview.DefaultInitialSettings())

	_, err := session.SetDestination(context.Background(), "BazDevice")
	require.ErrorIs(t, err, destination.ErrUnknownDestination)

	failure := fmt.Errorf("network down")
	stub.SetDestinationCapabilities(destination.Template("BarDevice"))
	stub.FailCapabilities(failure)
	got, err := session.SetDestination(context.Background(), "BarDevice")
	require.ErrorIs(t, err, failure)
	require.Equal(t, 0, got.RequestID)

	require.Equal(t, "FooDevice", session.Destination().ID)
	require.Len(t, log.tickets(t), 1)

	stub.FailCapabilities(nil)
	got, err = session.SetDestination(context.Background(), "BarDevice")
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
}

func TestSession_SupersededRequestsAreCancelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := preview.NewMetrics(reg)

	var mu sync.Mutex
	var accepted []int
	handler := func(req preview.Request, res preview.Response) {
		mu.Lock()
		defer mu.Unlock()
		accepted = append(accepted, res.RequestID)
	}

	stub := nativelayer.NewStub()
	stub.Hold()
	session := preview.NewSession(stub, stub, preview.WithMetrics(metrics), preview.WithPreviewHandler(handler))
	defer session.Close()

	_, err := session.Initialize(context.Background(), preview.DefaultInitialSettings())
	require.NoError(t, err)

	_, err = session.SetSetting(ticket.Layout, true)
	require.NoError(t, err)
	_, err = session.SetSetting(ticket.Color, false)
	require.NoError(t, err)

	stub.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, session.Flush(ctx))

	latest, ok := session.LatestPreview()
	require.True(t, ok)
	require.Equal(t, 2, latest.RequestID)

	mu.Lock()
	require.Equal(t, []int{2}, accepted)
	mu.Unlock()

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.Issued()))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Finished(preview.OutcomeCompleted)))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Finished(preview.OutcomeCancelled)))
}

func TestSession_FailedPreviewKeepsLatest(t *testing.T) {
	session, stub, _ := newTestSession(t, preview.DefaultInitialSettings())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, session.Flush(ctx))

	stub.FailPreviews(fmt.Errorf("renderer crashed"))
	got, err := session.SetSetting(ticket.Layout, true)
	require.NoError(t, err)
	require.Equal(t, 1, got.RequestID)
	require.NoError(t, session.Flush(ctx))

	latest, ok := session.LatestPreview()
	require.True(t, ok)
	require.Equal(t, 0, latest.RequestID)
}

func TestSession_NotInitialized(t *testing.T) {
	stub := nativelayer.NewStub()
	session := preview.NewSession(stub, stub)
	defer session.Close()

	_, err := session.SetSetting(ticket.Color, false)
	require.ErrorIs(t, err, preview.ErrNotInitialized)

	_, err = session.GetSettingValue(ticket.Color)
	require.ErrorIs(t, err, preview.ErrNotInitialized)

	_, err = session.Ticket()
	require.ErrorIs(t, err, preview.ErrNotInitialized)

	_, err = session.SetDestination(context.Background(), "FooDevice")
	require.ErrorIs(t, err, preview.ErrNotInitialized)

	_, ok := session.LatestPreview()
	require.False(t, ok)
}

func TestSession_Initialize(t *testing.T) {
	stub := nativelayer.NewStub()

	t.Run("unknown-printer", func(t *testing.T) {
		session := preview.NewSession(stub, stub)
		defer session.Close()

		init := preview.DefaultInitialSettings()
		init.PrinterName = "Nope"
		_, err := session.Initialize(context.Background(), init)
		require.ErrorIs(t, err, destination.ErrUnknownDestination)
	})

	t.Run("overrides", func(t *testing.T) {
		session := preview.NewSession(stub, stub)
		defer session.Close()

		init := preview.DefaultInitialSettings()
		init.Settings = map[ticket.Name]any{
			ticket.Margins:       "MINIMUM",
			ticket.PagesPerSheet: 2,
			ticket.Scaling:       "150",
			ticket.CustomScaling: true,
		}
		got, err := session.Initialize(context.Background(), init)
		require.NoError(t, err)
		require.Equal(t, 0, got.RequestID)
		require.Equal(t, 2, got.PagesPerSheet)
		require.Equal(t, ticket.MarginsMinimum, got.MarginsType)
		require.Equal(t, 150, got.ScaleFactor)

		_, err = session.Initialize(context.Background(), init)
		require.ErrorIs(t, err, preview.ErrAlreadyInitialized)
	})

	t.Run("bad-override", func(t *testing.T) {
		session := preview.NewSession(stub, stub)
		defer session.Close()

		init := preview.DefaultInitialSettings()
		init.Settings = map[ticket.Name]any{"zoom": 1}
		_, err := session.Initialize(context.Background(), init)
		require.ErrorIs(t, err, ticket.ErrUnknownSetting)
	})
}

func TestSession_ConcurrentMutationsKeepOrder(t *testing.T) {
	session, _, log := newTestSession(t, preview.DefaultInitialSettings())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = session.SetSetting(ticket.Layout, i%2 == 0)
			_, _ = session.SetSetting(ticket.Color, i%2 == 0)
		}(i)
	}
	wg.Wait()

	for i, issued := range log.tickets(t) {
		require.Equal(t, i, issued.RequestID)
	}
}

func TestSession_Closed(t *testing.T) {
	session, _, _ := newTestSession(t, preview.DefaultInitialSettings())
	require.NoError(t, session.Close())

	_, err := session.SetSetting(ticket.Layout, true)
	require.ErrorIs(t, err, preview.ErrSessionClosed)
}
