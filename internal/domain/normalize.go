// Package domain implements the target-domain normalization grammar shared
// by the intake handler, the read-only query handler, and the validation
// engine.
package domain

import (
	"errors"
	"net"
	"strings"
)

// ErrInvalidTarget is returned by Normalize when the input does not satisfy
// the domain grammar in spec.md §6.
var ErrInvalidTarget = errors.New("invalid domain target")

const maxTargetLength = 253
const maxLabelLength = 63

// Normalize trims, lowercases, strips a trailing dot, and validates target
// against the domain grammar. It is idempotent on its accepted set: feeding
// an already-normalized value back in returns it unchanged.
func Normalize(raw string) (string, error) {
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", ErrInvalidTarget
		}
	}

	t := strings.TrimSpace(raw)
	t = strings.ToLower(t)
	t = strings.TrimSuffix(t, ".")

	if t == "" || len(t) > maxTargetLength {
		return "", ErrInvalidTarget
	}
	if strings.ContainsAny(t, " \t\n\r/\\?#@:") {
		return "", ErrInvalidTarget
	}
	if strings.Contains(t, "://") {
		return "", ErrInvalidTarget
	}
	for _, r := range t {
		if r > 0x7f {
			return "", ErrInvalidTarget
		}
	}
	if net.ParseIP(t) != nil {
		return "", ErrInvalidTarget
	}

	labels := strings.Split(t, ".")
	if len(labels) < 2 {
		return "", ErrInvalidTarget
	}
	for _, label := range labels {
		if !isValidLabel(label) {
			return "", ErrInvalidTarget
		}
	}

	return t, nil
}

func isValidLabel(label string) bool {
	if len(label) < 1 || len(label) > maxLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeHost applies the same grammar used for DNS-resolved hostnames
// (CNAME targets, MX exchanges): lowercase, trailing-dot stripped, trimmed.
// Unlike Normalize it does not reject the value — resolver output is
// compared, not re-validated as a submittable target.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(h, ".")
}
