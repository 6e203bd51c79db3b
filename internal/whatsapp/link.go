// Package whatsapp builds WhatsApp click-to-chat deep links for review
// follow-up prompts. Nothing here talks to WhatsApp: the service only
// constructs a URI that staff open manually, so every function is pure.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkStyle selects the URI scheme of a generated click-to-chat link.
type LinkStyle string

const (
	// LinkStyleWeb is the universal web link (https://wa.me/...), usable
	// from any browser and the mobile apps.
	LinkStyleWeb LinkStyle = "web"
	// LinkStyleApp is the custom scheme handled by the desktop application
	// (whatsapp://send?...).
	LinkStyleApp LinkStyle = "app"
)

// ParseLinkStyle maps a raw query value to a LinkStyle, defaulting to the
// universal web link for unknown or empty input.
func ParseLinkStyle(s string) LinkStyle {
	if LinkStyle(strings.ToLower(strings.TrimSpace(s))) == LinkStyleApp {
		return LinkStyleApp
	}
	return LinkStyleWeb
}

// Formatter normalizes customer phone numbers and renders outbound message
// text. The zero value is not usable; construct with the country rule the
// store operates under (see config.Config).
//
// The normalization heuristic is tuned to single-country numbering plans
// where subscribers commonly enter local forms ("0712345678") instead of
// E.164. Both knobs are configuration, not constants, so other regions can
// adjust without code changes.
type Formatter struct {
	// DefaultCountryCode is prepended to local-form numbers, digits only,
	// without a leading plus (e.g. "254").
	DefaultCountryCode string
	// LocalLengthThreshold is the maximum digit count of a bare local
	// subscriber number (e.g. 9 for Kenya). Numbers at or below it gain the
	// country code; numbers exactly one digit longer that start with "0"
	// have the trunk zero replaced by the country code.
	LocalLengthThreshold int
}

// NormalizePhone converts a raw phone string as captured at checkout into
// the digits-only international form WhatsApp links require.
//
// Rules, applied to the digit-stripped input:
//   - length <= threshold: prepend the country code, trimming any leading
//     zeros first ("712345678" -> "254712345678").
//   - length == threshold+1 with a leading "0": replace the trunk zero with
//     the country code ("0712345678" -> "254712345678").
//   - anything longer passes through unchanged; it already carries a
//     country code.
func (f Formatter) NormalizePhone(raw string) string {
	digits := stripNonDigits(raw)
	if digits == "" {
		return ""
	}

	switch {
	case len(digits) <= f.LocalLengthThreshold:
		return f.DefaultCountryCode + strings.TrimLeft(digits, "0")
	case len(digits) == f.LocalLengthThreshold+1 && digits[0] == '0':
		return f.DefaultCountryCode + digits[1:]
	default:
		return digits
	}
}

// BuildMessage renders the follow-up greeting for an order: a thank-you
// referencing the order id, the comma-joined product names, and a permalink
// to the first product so the customer lands on its review form.
func BuildMessage(orderID int64, productNames []string, productURL string) string {
	return fmt.Sprintf(
		"Hello! Thank you for your recent order #%d. We hope you're enjoying your %s. We'd love to hear your feedback! %s",
		orderID,
		strings.Join(productNames, ", "),
		productURL,
	)
}

// Link builds a click-to-chat URI for the given style. phone must already be
// normalized (see NormalizePhone); message is percent-encoded here.
func Link(style LinkStyle, phone, message string) string {
	text := url.QueryEscape(message)
	if style == LinkStyleApp {
		return fmt.Sprintf("whatsapp://send?phone=%s&text=%s", phone, text)
	}
	return fmt.Sprintf("https://wa.me/%s?text=%s", phone, text)
}

// stripNonDigits removes every non-digit byte from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
