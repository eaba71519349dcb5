package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrBodyTooLarge is returned by ReadBody when the body exceeds the limit.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrInvalidBody covers malformed JSON, non-object payloads, wrong field
	// types and forbidden keys alike, so callers cannot tell them apart.
	ErrInvalidBody = errors.New("invalid request body")
)

// forbiddenKeys are object keys used for prototype pollution by JavaScript
// consumers of the same payload.
var forbiddenKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// ReadBody reads at most maxBytes of the request body. A declared or actual
// length above the limit yields ErrBodyTooLarge.
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.ContentLength > maxBytes {
		return nil, ErrBodyTooLarge
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// DecodeObject decodes a JSON object into target. It rejects anything that is
// not a single JSON object and any forbidden key at any depth.
func DecodeObject(body []byte, target any) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidBody)
	}
	if _, ok := raw.(map[string]any); !ok {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidBody)
	}
	if key, found := findForbiddenKey(raw); found {
		return fmt.Errorf("%w: forbidden key %q", ErrInvalidBody, key)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

func findForbiddenKey(v any) (string, bool) {
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if _, bad := forbiddenKeys[key]; bad {
				return key, true
			}
			if k, found := findForbiddenKey(child); found {
				return k, true
			}
		}
	case []any:
		for _, child := range node {
			if k, found := findForbiddenKey(child); found {
				return k, true
			}
		}
	}
	return "", false
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// PrepareRequest normalizes then validates a request.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
