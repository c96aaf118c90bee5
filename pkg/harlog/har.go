package harlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/har"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	httpparser "github.com/sre-norns/vellum/pkg/http-parser"
)

var ErrRequestFailed = fmt.Errorf("request failed")

// PostSummary describes the payload of one recorded request.
type PostSummary struct {
	URL      string        `json:"url" yaml:"url"`
	Method   string        `json:"method" yaml:"method"`
	BodySize int64         `json:"bodySize" yaml:"bodySize"`
	PostData *har.PostData `json:"postData,omitempty" yaml:"postData,omitempty"`
}

func Unmarshal(reader io.Reader) (har.HAR, error) {
	var harLog har.HAR

	dec := json.NewDecoder(reader)
	if err := dec.Decode(&harLog); err != nil {
		return harLog, fmt.Errorf("failed to unmarshal HAR log: %w", err)
	}
	if harLog.Log == nil {
		return harLog, fmt.Errorf("failed to unmarshal HAR log: no log section")
	}

	return harLog, nil
}

// FilterByURLSuffix returns entries whose request URL, without query, ends with the suffix.
func FilterByURLSuffix(entries []*har.Entry, suffix string) []*har.Entry {
	result := make([]*har.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.Request == nil {
			continue
		}

		target := entry.Request.URL
		if u, err := url.Parse(target); err == nil {
			u.RawQuery = ""
			u.Fragment = ""
			target = u.String()
		}
		if strings.HasSuffix(target, suffix) {
			result = append(result, entry)
		}
	}

	return result
}

func SummarizePosts(entries []*har.Entry) []PostSummary {
	result := make([]PostSummary, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.Request == nil || entry.Request.PostData == nil {
			continue
		}

		result = append(result, PostSummary{
			URL:      entry.Request.URL,
			Method:   entry.Request.Method,
			BodySize: entry.Request.BodySize,
			PostData: entry.Request.PostData,
		})
	}

	return result
}

func entryToRequest(request *har.Request) (httpparser.TestRequest, error) {
	if request == nil {
		return httpparser.TestRequest{}, nil
	}

	target, err := url.Parse(request.URL)
	if err != nil {
		return httpparser.TestRequest{}, err
	}

	query := target.Query()
	for _, q := range request.QueryString {
		if !query.Has(q.Name) {
			query.Add(q.Name, q.Value)
		}
	}
	target.RawQuery = query.Encode()

	body := ""
	if request.PostData != nil {
		body = request.PostData.Text
	}

	r, err := http.NewRequest(request.Method, target.String(), strings.NewReader(body))
	if err != nil {
		return httpparser.TestRequest{}, err
	}
	if major, minor, ok := http.ParseHTTPVersion(request.HTTPVersion); ok {
		r.Proto, r.ProtoMajor, r.ProtoMinor = request.HTTPVersion, major, minor
	}

	for _, h := range request.Headers {
		switch http.CanonicalHeaderKey(h.Name) {
		case "Host", "Content-Length":
			continue
		}
		r.Header.Add(h.Name, h.Value)
	}
	if request.PostData != nil && request.PostData.MimeType != "" && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", request.PostData.MimeType)
	}

	return httpparser.TestRequest{
		Request: r,
		Body:    body,
	}, nil
}

// ToRequests converts HAR entries into replayable requests, payloads included.
func ToRequests(entries []*har.Entry) ([]httpparser.TestRequest, error) {
	requests := make([]httpparser.TestRequest, 0, len(entries))

	for i, entry := range entries {
		if entry == nil {
			continue
		}
		r, err := entryToRequest(entry.Request)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if r.Request != nil {
			requests = append(requests, r)
		}
	}

	return requests, nil
}

// Replay sends requests in order with the client, stopping on the first transport error or error status.
func Replay(ctx context.Context, client *http.Client, requests []httpparser.TestRequest, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	for i, req := range requests {
		level.Debug(logger).Log("msg", "sending request", "n", i+1, "of", len(requests), "method", req.Method, "url", req.URL)

		outgoing := req.Request.Clone(ctx)
		outgoing.Body, outgoing.ContentLength = http.NoBody, 0
		if req.Body != "" {
			outgoing.Body = io.NopCloser(strings.NewReader(req.Body))
			outgoing.ContentLength = int64(len(req.Body))
		}

		res, err := client.Do(outgoing)
		if err != nil {
			return fmt.Errorf("request %d of %d: %w", i+1, len(requests), err)
		}

		if _, err := io.Copy(io.Discard, res.Body); err != nil {
			level.Warn(logger).Log("msg", "failed while reading response body", "err", err)
		}
		res.Body.Close()

		level.Info(logger).Log("msg", "response", "n", i+1, "status", res.StatusCode)
		if res.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: request %d of %d: %s", ErrRequestFailed, i+1, len(requests), res.Status)
		}
	}

	return nil
}
