package atcmd

import (
	"fmt"
	"strings"
)

// Type-of-address values for phone numbers (3GPP TS 24.008).
const (
	TOAUnknown       = 129
	TOAInternational = 145
)

// TOA returns the type-of-address of a number.
func TOA(number string) int {
	if strings.HasPrefix(number, "+") {
		return TOAInternational
	}
	return TOAUnknown
}

// ConvertPreDial replaces the dial string separators ',' (pause) and ';'
// (wait) with the dialer's 'P' and 'W'.
func ConvertPreDial(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',':
			return 'P'
		case ';':
			return 'W'
		}
		return r
	}, s)
}

// DialTarget describes how an ATD argument should be dialed.
type DialTarget int

const (
	// DialNumber dials the given number.
	DialNumber DialTarget = iota
	// DialLast redials the last dialed number.
	DialLast
	// DialMemoryUnsupported is a memory dial the gateway rejects.
	DialMemoryUnsupported
)

// ResolveDial interprets the argument of ATD. An empty argument and memory
// dialing (">n") redial the last number, except location ">9999" which is
// rejected. A trailing ';' (voice call) is stripped from plain numbers.
func ResolveDial(arg string) (DialTarget, string) {
	switch {
	case arg == "":
		return DialLast, ""
	case strings.HasPrefix(arg, ">"):
		if strings.HasPrefix(arg, ">9999") {
			return DialMemoryUnsupported, ""
		}
		return DialLast, ""
	}
	arg = strings.TrimSuffix(arg, ";")
	return DialNumber, ConvertPreDial(arg)
}

// FormatCNUM formats the +CNUM subscriber number line for a voice service.
func FormatCNUM(number string) string {
	return fmt.Sprintf("+CNUM: ,\"%s\",%d,,4", number, TOA(number))
}
