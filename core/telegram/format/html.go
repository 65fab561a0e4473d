// Package format builds HTML fragments for Telegram messages sent with ParseMode HTML.
package format

import (
	"html"
	"strings"
)

// Escape makes arbitrary user text safe inside an HTML message.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Bold wraps escaped text in <b>.
func Bold(s string) string {
	return "<b>" + Escape(s) + "</b>"
}

// Code wraps escaped text in <code>.
func Code(s string) string {
	return "<code>" + Escape(s) + "</code>"
}

// Lines joins non-empty lines with a newline.
func Lines(lines ...string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Field renders "<b>label:</b> value" with the value escaped and a dash for empty values.
func Field(label, value string) string {
	return "<b>" + Escape(label) + ":</b> " + Escape(OrDash(value))
}

// OrDash returns "-" for blank strings.
func OrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Truncate cuts s to at most max runes, appending an ellipsis when it was cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
