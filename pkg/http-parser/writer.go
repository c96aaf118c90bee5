package httpparser

import (
	"fmt"
	"io"
	"net/textproto"
	"slices"
	"strings"
)

func (r *TestRequest) Marshal(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%v %v %v\n", r.Method, r.URL.String(), r.Proto); err != nil {
		return err
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	fmt.Fprintf(w, "%v: %v\n", textproto.CanonicalMIMEHeaderKey("Host"), host)

	headers := make([]string, 0, len(r.Header))
	for header := range r.Header {
		if header != textproto.CanonicalMIMEHeaderKey("Host") {
			headers = append(headers, header)
		}
	}
	slices.Sort(headers)

	for _, header := range headers {
		for _, value := range r.Header[header] {
			fmt.Fprintf(w, "%v: %v\n", header, value)
		}
	}

	if r.Body != "" {
		fmt.Fprintf(w, "\n%v\n", strings.TrimRight(r.Body, "\n"))
	}

	return nil
}

// Marshal writes requests as a script that Parse reads back.
func Marshal(w io.Writer, entries []TestRequest) error {
	for i, entry := range entries {
		if err := entry.Marshal(w); err != nil {
			return fmt.Errorf("failed to marshal TestRequest %d out of %d: %w", i+1, len(entries), err)
		}

		if i+1 != len(entries) {
			fmt.Fprint(w, "\n###\n")
		}
	}

	return nil
}
