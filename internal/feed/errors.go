package feed

import (
	"fmt"
	"net/http"
	"net/url"
)

// ErrorKind classifies feed fetch failures.
type ErrorKind string

const (
	KindHTTP       ErrorKind = "http"
	KindNetwork    ErrorKind = "network"
	KindParse      ErrorKind = "parse"
	KindUnexpected ErrorKind = "unexpected"
)

// Severity decides whether a FetchError is logged at WARN or ERROR.
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
)

// FetchError is returned by a Source when the feed could not be read. The
// relay logs it and retries on the next poll; nothing is retried in place.
type FetchError struct {
	Kind       ErrorKind
	Severity   Severity
	StatusCode int
	URL        string // access key redacted
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("feed fetch %s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("feed fetch %s: %v for %s", e.Kind, e.Cause, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ClassifyHTTPStatus builds a FetchError for a non-200 response. Client and
// server errors are expected operational noise; anything else (redirect
// loops, informational codes) is unexpected.
func ClassifyHTTPStatus(status int, rawURL string) *FetchError {
	e := &FetchError{
		Kind:       KindHTTP,
		Severity:   SeverityWarn,
		StatusCode: status,
		URL:        RedactURL(rawURL),
		Cause:      fmt.Errorf("HTTP %d %s", status, http.StatusText(status)),
	}
	if status < 400 || status > 599 {
		e.Kind = KindUnexpected
		e.Severity = SeverityError
	}
	return e
}

// ClassifyNetworkError covers DNS, connect, TLS and timeout failures.
func ClassifyNetworkError(cause error, rawURL string) *FetchError {
	return &FetchError{Kind: KindNetwork, Severity: SeverityWarn, URL: RedactURL(rawURL), Cause: cause}
}

// ClassifyParseError covers bodies that are not a usable Atom document.
func ClassifyParseError(cause error, rawURL string) *FetchError {
	return &FetchError{Kind: KindParse, Severity: SeverityError, URL: RedactURL(rawURL), Cause: cause}
}

// RedactURL hides the feed access key so URLs can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Get("key") == "" {
		return rawURL
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
