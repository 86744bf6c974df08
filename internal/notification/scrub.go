package notification

import (
	"net/url"
	"regexp"
)

// urlPattern finds service URLs, which usually embed tokens, inside error text.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// ScrubMessage replaces every URL in message with its scheme and host.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, redactURL)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "[redacted-url]"
	}
	if u.Host == "" {
		return u.Scheme + "://[redacted]"
	}
	return u.Scheme + "://" + u.Hostname() + "/[redacted]"
}

// sanitizedError hides credentials in the message but keeps the original for errors.Is.
type sanitizedError struct {
	original error
	msg      string
}

func (e *sanitizedError) Error() string { return e.msg }
func (e *sanitizedError) Unwrap() error { return e.original }

func wrapSanitized(err error) error {
	if err == nil {
		return nil
	}
	return &sanitizedError{original: err, msg: ScrubMessage(err.Error())}
}
