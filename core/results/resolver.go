// Package results pulls retrievable document references out of provider
// job results. The provider reports them inside free-form text, so the
// extractors are pattern based; structured fields win when present.
package results

import (
	"regexp"
	"strings"
)

var (
	signedURLPattern    = regexp.MustCompile(`Signed URL: (https?://[^\s]+)`)
	stampedFilePattern  = regexp.MustCompile(`stamped_[A-Za-z0-9-]+_[^,\s]+\.pdf`)
	absoluteURLMatchers = regexp.MustCompile(`(?i)^https?://`)
)

// ExtractSignedReference returns the URL following "Signed URL: " in a
// provider result, or "" when there is none.
func ExtractSignedReference(resultText string) string {
	if resultText == "" {
		return ""
	}
	m := signedURLPattern.FindStringSubmatch(resultText)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractStampedReference returns the first stamped_<doctype>_<token>.pdf
// file name in a provider result, or "" when there is none.
func ExtractStampedReference(resultText string) string {
	if resultText == "" {
		return ""
	}
	return stampedFilePattern.FindString(resultText)
}

// Payload is the subset of a job status the resolver reads.
type Payload struct {
	StructuredRef string // signed_url / document_url / stamped_file, when provided
	Result        string
	Message       string
}

// SignedReference prefers a structured reference and falls back to scanning
// the result text, then the message.
func SignedReference(p Payload) string {
	if ref := strings.TrimSpace(p.StructuredRef); ref != "" {
		return ref
	}
	if ref := ExtractSignedReference(p.Result); ref != "" {
		return ref
	}
	return ExtractSignedReference(p.Message)
}

// StampedReference prefers a structured reference and falls back to
// scanning the result text.
func StampedReference(p Payload) string {
	if ref := strings.TrimSpace(p.StructuredRef); ref != "" {
		return ref
	}
	if ref := ExtractStampedReference(p.Result); ref != "" {
		return ref
	}
	return ExtractStampedReference(p.Message)
}

// IsAbsolute reports whether a reference is already a full URL.
func IsAbsolute(ref string) bool {
	return absoluteURLMatchers.MatchString(ref)
}
