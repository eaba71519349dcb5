package validation

import "unicode/utf8"

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed signup request body (10 KB).
	MaxBodySize = 10 * 1024
)

// String element length limits, counted in characters.
const (
	// MaxNameLength is the maximum length of a first or last name.
	MaxNameLength = 100

	// MaxEmailLength is the maximum length of an email address (RFC 5321 path limit).
	MaxEmailLength = 254

	// MaxRequestIDLength is the maximum accepted length of an inbound X-Request-ID.
	MaxRequestIDLength = 128
)

// ExceedsLength reports whether value is longer than max characters.
func ExceedsLength(value string, max int) bool {
	return utf8.RuneCountInString(value) > max
}
