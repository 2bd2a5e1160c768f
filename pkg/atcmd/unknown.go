package atcmd

import (
	"strconv"
	"strings"
)

// Command types of an extended AT command, as derived by CommandType.
const (
	TypeUnknown = -1
	TypeRead    = 0
	TypeSet     = 1
	TypeTest    = 2
)

// Vendor specific commands the gateway understands, and the Bluetooth SIG
// company identifiers they are published with.
const (
	VendorXEvent      = "+XEVENT"
	VendorAndroid     = "+ANDROID"
	VendorXAPL        = "+XAPL"
	VendorIPhoneAccEv = "+IPHONEACCEV"

	CompanyPlantronics = 85
	CompanyGoogle      = 224
	CompanyApple       = 76
)

var vendorCompanyIDs = map[string]int{
	VendorXEvent:      CompanyPlantronics,
	VendorAndroid:     CompanyGoogle,
	VendorXAPL:        CompanyApple,
	VendorIPhoneAccEv: CompanyApple,
}

// VendorCompanyID returns the company identifier registered for a vendor
// specific command name such as "+XAPL".
func VendorCompanyID(command string) (int, bool) {
	id, ok := vendorCompanyIDs[command]
	return id, ok
}

// Normalize canonicalizes an AT command the stack could not decode itself:
// everything outside double quotes is upper-cased and stripped of spaces, and
// an unmatched opening quote is closed at the end of the string.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				b.WriteString(s[i:])
				b.WriteByte('"')
				break
			}
			b.WriteString(s[i : i+j+2])
			i += j + 1
			continue
		}
		if c != ' ' {
			if 'a' <= c && c <= 'z' {
				c -= 'a' - 'A'
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CommandType classifies a normalized "+XXXX..." command by the characters
// that follow its five-character name.
func CommandType(s string) int {
	s = strings.TrimSpace(s)
	if len(s) <= 5 {
		return TypeUnknown
	}
	rest := s[5:]
	switch {
	case strings.HasPrefix(rest, "?"):
		return TypeRead
	case strings.HasPrefix(rest, "=?"):
		return TypeTest
	case strings.HasPrefix(rest, "="):
		return TypeSet
	default:
		return TypeUnknown
	}
}

// FindChar returns the index of the first ch in s at or after from that is
// not inside a quoted string, or len(s) if there is none.
func FindChar(ch byte, s string, from int) int {
	for i := from; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				return len(s)
			}
			i += j + 1
			continue
		}
		if c == ch {
			return i
		}
	}
	return len(s)
}

// SplitArgs splits a comma separated argument list, keeping quoted commas
// intact. Arguments that parse as integers become int, the rest stay string.
// An empty input yields a single empty string argument.
func SplitArgs(s string) []any {
	var out []any
	for i := 0; i <= len(s); {
		j := FindChar(',', s, i)
		arg := s[i:j]
		if n, err := strconv.Atoi(arg); err == nil {
			out = append(out, n)
		} else {
			out = append(out, arg)
		}
		i = j + 1
	}
	return out
}

// IsPhonebook reports whether a normalized command belongs to the phonebook
// feature (+CSCS, +CPBS, +CPBR).
func IsPhonebook(s string) bool {
	return strings.HasPrefix(s, "+CSCS") || strings.HasPrefix(s, "+CPBS") || strings.HasPrefix(s, "+CPBR")
}

// Vendor is a decoded vendor specific set command.
type Vendor struct {
	Command   string
	CompanyID int
	Args      []any
}

// ParseVendor decodes a normalized "+CMD=args" vendor command. It reports
// false for commands without '=', for names outside the vendor table and for
// read-style arguments starting with '?'.
func ParseVendor(s string) (Vendor, bool) {
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		return Vendor{}, false
	}
	cmd := s[:eq]
	id, ok := vendorCompanyIDs[cmd]
	if !ok {
		return Vendor{}, false
	}
	arg := s[eq+1:]
	if strings.HasPrefix(arg, "?") {
		return Vendor{}, false
	}
	return Vendor{Command: cmd, CompanyID: id, Args: SplitArgs(arg)}, true
}

// XAPLReply returns the +XAPL answer for an "+XAPL=<vendor-product>,<features>"
// request, or false if the arguments are not (string, int).
func XAPLReply(args []any) (string, bool) {
	if len(args) != 2 {
		return "", false
	}
	if _, ok := args[0].(string); !ok {
		return "", false
	}
	if _, ok := args[1].(int); !ok {
		return "", false
	}
	// Bit 1: battery reporting supported.
	return "+XAPL=iPhone,2", true
}
