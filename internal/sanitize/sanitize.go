// Package sanitize strips control characters, caps list and string sizes,
// and hashes truncated originals so that forensic comparison stays possible
// without retaining the full payload. Every externally sourced string — DNS
// rdata, email body text, log fields, persisted result JSON — passes through
// here before it is stored, logged, or mailed.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// String strips control characters, collapses runs of whitespace to a
// single space, trims the result, and truncates to max runes with an
// ellipsis marker. Idempotent: String(String(x, max), max) == String(x, max).
func String(s string, max int) string {
	s = controlChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, max)
}

// Host strips control characters and all whitespace (DNS hostnames never
// carry meaningful whitespace) and truncates to max runes.
func Host(s string, max int) string {
	s = controlChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, "")
	return truncate(s, max)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// CappedList is the result of capArray: the first max entries, the
// original count, whether truncation occurred, and (when it did) a
// SHA-256 hash of the pre-truncation values for forensic comparison.
type CappedList struct {
	Values    []string `json:"values"`
	Total     int      `json:"total"`
	Truncated bool     `json:"truncated"`
	Hash      string   `json:"hash,omitempty"`
}

// CapArray returns the first max values of values, flagging truncation and
// attaching a SHA-256 hash (joined with "\n") of the full original set
// whenever truncation occurred — per value or by count.
func CapArray(values []string, max int) CappedList {
	truncated := false
	out := make([]string, 0, len(values))
	for _, v := range values {
		sanitized := Host(v, hostMaxLenForHash)
		if sanitized != v {
			truncated = true
		}
		out = append(out, sanitized)
	}

	total := len(out)
	if total > max {
		truncated = true
		out = out[:max]
	}

	cl := CappedList{Values: out, Total: total, Truncated: truncated}
	if truncated {
		cl.Hash = HashJoined(values)
	}
	return cl
}

// hostMaxLenForHash bounds individual value sanitation inside CapArray
// before the list-level cap is applied; callers needing a different
// per-value cap should sanitize with Host/String first and pass already
// bounded values through CapArrayRaw.
const hostMaxLenForHash = 255

// CapArrayRaw caps an already-sanitized list without re-sanitizing values,
// used when the caller already truncated each entry to its own max length
// (e.g. DNS_MAX_HOST_LENGTH vs DNS_MAX_TXT_LENGTH differ by record type).
func CapArrayRaw(values []string, max int) CappedList {
	total := len(values)
	truncated := total > max
	out := values
	if truncated {
		out = values[:max]
	}
	cl := CappedList{Values: append([]string(nil), out...), Total: total, Truncated: truncated}
	if truncated {
		cl.Hash = HashJoined(values)
	}
	return cl
}

// HashJoined returns the hex-encoded SHA-256 digest of values joined with
// "\n". Used whenever a cap or truncation applies, so the original content
// remains verifiable without persisting it in full. Forensic only — never
// treat this as an integrity check on the request itself.
func HashJoined(values []string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "\n")))
	return hex.EncodeToString(sum[:])
}
