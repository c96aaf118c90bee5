package nativelayer

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

const (
	PDFContentType = "application/pdf"

	micronsPerInch = 25400
	pointsPerInch  = 72

	// Chrome's own minimum margins are roughly a quarter of an inch
	minimumMarginInches = 0.25
	defaultMarginInches = 0.4
	// A zero margin is dropped from the request and Chrome falls back to its default
	noMarginInches = 0.0001
)

var ErrNoDocument = fmt.Errorf("no document URL to render")

type ChromeOptions struct {
	ExecPath  string        `help:"Path to the Chrome or Chromium binary, found on PATH when empty" env:"CHROME_PATH"`
	Headless  bool          `help:"Run the browser without a window" default:"true" negatable:""`
	NoSandbox bool          `help:"Disable the Chrome sandbox, required when running as root in a container"`
	Timeout   time.Duration `help:"Maximum time to render one preview" default:"1m"`
}

// Chrome renders previews by printing the document to PDF in a headless browser.
type Chrome struct {
	options ChromeOptions
	logger  log.Logger
}

func NewChrome(options ChromeOptions, logger log.Logger) *Chrome {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Chrome{
		options: options,
		logger:  logger,
	}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.options.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.options.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.options.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.options.ExecPath))
	}

	return opts
}

// PrintParams translates a print ticket into Page.printToPDF parameters.
func PrintParams(t ticket.Ticket) *page.PrintToPDFParams {
	width := float64(t.MediaSize.WidthMicrons) / micronsPerInch
	height := float64(t.MediaSize.HeightMicrons) / micronsPerInch

	params := page.PrintToPDF().
		WithLandscape(t.Landscape).
		WithDisplayHeaderFooter(t.HeaderFooterEnabled).
		WithPrintBackground(t.ShouldPrintBackgrounds).
		WithScale(float64(t.ScaleFactor) / 100).
		WithPageRanges(pageRanges(t.PageRange))

	if width > 0 && height > 0 {
		params = params.WithPaperWidth(width).WithPaperHeight(height)
	}

	switch t.MarginsType {
	case ticket.MarginsNone:
		params = params.
			WithMarginTop(noMarginInches).
			WithMarginRight(noMarginInches).
			WithMarginBottom(noMarginInches).
			WithMarginLeft(noMarginInches)
	case ticket.MarginsMinimum:
		params = params.
			WithMarginTop(minimumMarginInches).
			WithMarginRight(minimumMarginInches).
			WithMarginBottom(minimumMarginInches).
			WithMarginLeft(minimumMarginInches)
	case ticket.MarginsCustom:
		if m := t.MarginsCustom; m != nil {
			params = params.
				WithMarginTop(m.Top / pointsPerInch).
				WithMarginRight(m.Right / pointsPerInch).
				WithMarginBottom(m.Bottom / pointsPerInch).
				WithMarginLeft(m.Left / pointsPerInch)
		}
	default:
		params = params.
			WithMarginTop(defaultMarginInches).
			WithMarginRight(defaultMarginInches).
			WithMarginBottom(defaultMarginInches).
			WithMarginLeft(defaultMarginInches)
	}

	return params
}

func pageRanges(ranges []ticket.PageRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, fmt.Sprintf("%d-%d", r.From, r.To))
	}
	return strings.Join(parts, ",")
}

var pageObjectRegexp = regexp.MustCompile(`/Type\s*/Page[^s]`)

// CountPages estimates the number of pages in a PDF by counting its page objects.
func CountPages(data []byte) int {
	return len(pageObjectRegexp.FindAllIndex(data, -1))
}

// Render navigates to url and prints it to PDF using the ticket's settings.
func (c *Chrome) Render(ctx context.Context, url string, t ticket.Ticket) ([]byte, error) {
	if url == "" {
		return nil, ErrNoDocument
	}

	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	level.Debug(c.logger).Log("msg", "rendering", "url", url, "requestID", t.RequestID)

	var data []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = PrintParams(t).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to print %q: %w", url, err)
	}

	return data, nil
}

func (c *Chrome) GetPreview(ctx context.Context, req preview.Request) (preview.Response, error) {
	t, err := ticket.Parse(req.PrintTicket)
	if err != nil {
		return preview.Response{}, err
	}

	data, err := c.Render(ctx, req.DocumentURL, t)
	if err != nil {
		return preview.Response{}, err
	}

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		level.Warn(c.logger).Log("msg", "renderer returned unexpected content", "requestID", req.RequestID)
	}

	return preview.Response{
		RequestID:   req.RequestID,
		PrintTicket: req.PrintTicket,
		PageCount:   CountPages(data),
		ContentType: PDFContentType,
		Data:        data,
	}, nil
}
