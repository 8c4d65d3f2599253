// Package cli provides shared formatting helpers for the ctrlcfg CLI.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("32", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("33", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("31", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("1", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("2", s) }

// Status colors a run outcome: ok and unchanged green, skipped yellow,
// anything else red.
func Status(s string) string {
	switch strings.ToLower(s) {
	case "ok", "success", "unchanged":
		return Green(s)
	case "skipped", "partial", "changed":
		return Yellow(s)
	}
	return Red(s)
}

// DotPad pads name with dots to the given width.
// Example: DotPad("apic1", 12) → "apic1 ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
