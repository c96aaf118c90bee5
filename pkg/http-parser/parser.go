package httpparser

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrHeaderBeforeRequestLine = fmt.Errorf("header line before request line")
	ErrMalformedHeader         = fmt.Errorf("malformed header line")
	ErrNoHost                  = fmt.Errorf("request has neither an absolute URL nor a Host header")
)

const separator = "###"

// TestRequest is one request of a request script, with its body kept for replay and re-marshaling.
type TestRequest struct {
	*http.Request

	Body string
}

func parseURL(uri string) (*url.URL, error) {
	if !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "//") {
		uri = "//" + uri
	}

	url, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	if url.Scheme == "" {
		url.Scheme = "http"
		if !strings.HasSuffix(url.Host, ":80") && !strings.HasSuffix(url.Host, ":http") {
			url.Scheme = "https"
		}
	}

	return url, nil
}

type parserState int

const (
	expectRequestLine parserState = iota
	readingHeaders
	readingBody
)

type requestParser struct {
	requests []TestRequest
	state    parserState
	line     int

	method       string
	path         string
	protoVersion string
	headers      http.Header
	body         []string
}

func (p *requestParser) Requests() ([]TestRequest, error) {
	if err := p.onFinishRequest(); err != nil {
		return nil, err
	}

	if p.requests == nil {
		return []TestRequest{}, nil
	}
	return p.requests, nil
}

func (p *requestParser) reset() error {
	p.state = expectRequestLine
	p.method = ""
	p.path = ""
	p.protoVersion = ""
	p.headers = make(http.Header)
	p.body = nil

	return nil
}

func (p *requestParser) targetURL() (*url.URL, error) {
	if !strings.HasPrefix(p.path, "/") || strings.HasPrefix(p.path, "//") {
		return parseURL(p.path)
	}

	host := p.headers.Get("Host")
	if host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoHost, p.path)
	}

	return parseURL(host + p.path)
}

func (p *requestParser) onFinishRequest() error {
	if p.path == "" {
		return p.reset()
	}

	targetUrl, err := p.targetURL()
	if err != nil {
		return fmt.Errorf("failed to parse target URL: %w", err)
	}

	if p.method == "" {
		p.method = http.MethodGet
	}

	// Trailing blank lines separate the body from the next request
	for len(p.body) > 0 && strings.TrimSpace(p.body[len(p.body)-1]) == "" {
		p.body = p.body[:len(p.body)-1]
	}
	body := strings.Join(p.body, "\n")

	result, err := http.NewRequest(p.method, targetUrl.String(), strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if p.protoVersion != "" {
		if major, minor, ok := http.ParseHTTPVersion(p.protoVersion); ok {
			result.Proto, result.ProtoMajor, result.ProtoMinor = p.protoVersion, major, minor
		}
	}

	for k, values := range p.headers {
		if k == "Host" {
			continue
		}
		for _, v := range values {
			result.Header.Add(k, v)
		}
	}

	p.requests = append(p.requests, TestRequest{
		Request: result,
		Body:    body,
	})

	return p.reset()
}

// stripComment removes a trailing ` # comment` from request and header lines.
func stripComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func (p *requestParser) onRequestLine(action string) error {
	components := strings.Fields(action)
	switch len(components) {
	case 1: // Short form: just an URL
		p.path = components[0]
	case 2:
		p.method, p.path = strings.ToUpper(components[0]), components[1]
	default:
		p.method, p.path, p.protoVersion = strings.ToUpper(components[0]), components[1], components[2]
	}

	p.state = readingHeaders
	return nil
}

func (p *requestParser) onHeader(action string) error {
	name, value, ok := strings.Cut(action, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%w on line %d: %q", ErrMalformedHeader, p.line, action)
	}

	p.headers.Add(name, strings.TrimSpace(value))
	return nil
}

func (p *requestParser) onLine(line string) error {
	p.line++

	if strings.HasPrefix(strings.TrimSpace(line), separator) {
		return p.onFinishRequest()
	}

	switch p.state {
	case expectRequestLine:
		action := stripComment(line)
		if action == "" {
			return nil
		}
		if isHeaderLine(action) {
			return fmt.Errorf("%w on line %d: %q", ErrHeaderBeforeRequestLine, p.line, action)
		}
		return p.onRequestLine(action)

	case readingHeaders:
		if strings.TrimSpace(line) == "" {
			p.state = readingBody
			return nil
		}
		action := stripComment(line)
		if action == "" {
			return nil
		}
		return p.onHeader(action)

	default:
		p.body = append(p.body, trimIndent(line))
	}

	return nil
}

// isHeaderLine reports if a line is a `Name: value` pair rather than an URL with a port.
func isHeaderLine(action string) bool {
	name, value, ok := strings.Cut(action, ":")
	return ok && !strings.ContainsAny(name, " /.") && strings.HasPrefix(value, " ")
}

func trimIndent(line string) string {
	return strings.TrimLeft(line, "\t")
}

// Parse reads a request script: requests separated by `###` lines, each a request line,
// optional headers and, after a blank line, an optional body.
func Parse(script io.Reader) ([]TestRequest, error) {
	parser := requestParser{}
	parser.reset()
	scanner := bufio.NewScanner(script)

	for scanner.Scan() {
		if err := parser.onLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("failed to parse request script: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading request script: %w", err)
	}

	return parser.Requests()
}
