package inspect

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// FailureReason describes why a token could not be decoded.
// It is rendered verbatim in the inspection report.
type FailureReason string

const (
	// ReasonInvalidFormat is returned when the token does not have exactly three segments.
	ReasonInvalidFormat FailureReason = "Invalid JWT format"

	// ReasonDecodeFailed is returned when the payload is not base64url encoded UTF-8 JSON.
	ReasonDecodeFailed FailureReason = "Failed to decode token"
)

// Error implements the error interface
func (r FailureReason) Error() string {
	return string(r)
}

// Claims is the indented JSON text of a token payload
type Claims string

// String returns the indented payload
func (c Claims) String() string {
	return string(c)
}

const (
	segmentSeparator = "."
	claimsIndent     = "  "
)

// Decode extracts the payload segment of a compact token and re-serializes it
// as indented JSON. Key order of the original payload is preserved.
//
// The returned error is always a FailureReason.
func Decode(token string) (Claims, error) {
	segments := strings.Split(token, segmentSeparator)
	if len(segments) != 3 {
		return "", ReasonInvalidFormat
	}

	payload, err := base64.URLEncoding.DecodeString(pad(segments[1]))
	if err != nil {
		return "", ReasonDecodeFailed
	}
	if !utf8.Valid(payload) || !json.Valid(payload) {
		return "", ReasonDecodeFailed
	}

	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(payload), "", claimsIndent); err != nil {
		return "", ReasonDecodeFailed
	}
	return Claims(out.String()), nil
}

// pad appends '=' until the segment length is a multiple of four
func pad(segment string) string {
	if rem := len(segment) % 4; rem != 0 {
		segment += strings.Repeat("=", 4-rem)
	}
	return segment
}
