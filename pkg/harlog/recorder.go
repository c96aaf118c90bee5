package harlog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/martian/har"
)

type RecorderOptions struct {
	CaptureRequestBody  bool `help:"Record request payloads in the HAR log" default:"true" negatable:""`
	CaptureResponseBody bool `help:"Record response bodies in the HAR log" default:"false"`
}

// Recorder is an http.RoundTripper that records every exchange into a HAR log.
type Recorder struct {
	next   http.RoundTripper
	logger log.Logger
	har    *har.Logger
	nextID uint64
}

func NewRecorder(next http.RoundTripper, options RecorderOptions, logger log.Logger) *Recorder {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	harLogger := har.NewLogger()
	harLogger.SetOption(har.BodyLogging(options.CaptureResponseBody))
	harLogger.SetOption(har.PostDataLogging(options.CaptureRequestBody))

	return &Recorder{
		next:   next,
		logger: logger,
		har:    harLogger,
	}
}

func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	id := fmt.Sprintf("%d", atomic.AddUint64(&r.nextID, 1))

	if err := r.har.RecordRequest(id, req); err != nil {
		level.Warn(r.logger).Log("msg", "failed to record request", "id", id, "url", req.URL, "err", err)
	}

	res, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := r.har.RecordResponse(id, res); err != nil {
		level.Warn(r.logger).Log("msg", "failed to record response", "id", id, "url", req.URL, "err", err)
	}

	level.Debug(r.logger).Log("msg", "recorded", "id", id, "method", req.Method, "url", req.URL, "status", res.StatusCode)
	return res, nil
}

// Client returns an http.Client that records through r.
func (r *Recorder) Client() *http.Client {
	return &http.Client{
		Transport: r,
	}
}

func (r *Recorder) Export() *har.HAR {
	return r.har.Export()
}

func (r *Recorder) ExportAndReset() *har.HAR {
	return r.har.ExportAndReset()
}

// WriteTo writes the recorded log as HAR JSON and resets the recorder.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(r.ExportAndReset(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to serialize HAR log: %w", err)
	}

	n, err := w.Write(data)
	return int64(n), err
}
