package atcmd

import (
	"errors"
	"strconv"
	"strings"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// ErrNotAT is returned by Parse for lines that do not start with "AT".
var ErrNotAT = errors.New("atcmd: not an AT command")

// Command is one AT command received from the hands-free unit.
type Command struct {
	// Raw is the command as received, without the terminator.
	Raw string
	// Name is the upper-cased command name: "A", "D", or "+XXXX".
	Name string
	// Type is TypeRead, TypeSet, TypeTest or TypeUnknown (action).
	Type int
	// Arg is the text after '=' for set commands, or the dial string of ATD.
	Arg string
}

// Parse decodes a single AT command line.
func Parse(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	if len(raw) < 2 || !strings.EqualFold(raw[:2], "AT") {
		return Command{}, ErrNotAT
	}
	body := raw[2:]
	c := Command{Raw: raw, Type: TypeUnknown}
	if body == "" {
		return c, nil
	}
	switch body[0] {
	case 'D', 'd':
		c.Name = "D"
		c.Arg = body[1:]
		return c, nil
	case 'A', 'a':
		if len(body) == 1 {
			c.Name = "A"
			return c, nil
		}
	}
	n := strings.IndexAny(body, "=?")
	if n < 0 {
		c.Name = strings.ToUpper(body)
		return c, nil
	}
	c.Name = strings.ToUpper(body[:n])
	rest := body[n:]
	switch {
	case strings.HasPrefix(rest, "=?"):
		c.Type = TypeTest
	case strings.HasPrefix(rest, "?"):
		c.Type = TypeRead
	default:
		c.Type = TypeSet
		c.Arg = rest[1:]
	}
	return c, nil
}

// Handshake reports whether c is part of the service level connection setup
// that the link layer answers on its own (features exchange, indicator and
// hold capability listing, event reporting, codec and HF indicator lists).
func (c Command) Handshake() bool {
	switch c.Name {
	case "+BRSF", "+CMER", "+CMEE", "+CCWA", "+CLIP", "+BCS", "+BCC":
		return true
	case "+CIND", "+CHLD":
		return c.Type == TypeTest
	case "+BIND":
		return c.Type == TypeTest || c.Type == TypeRead
	case "+COPS":
		return c.Type == TypeSet
	}
	return false
}

// Event converts c into the stack event the gateway core consumes. ok is
// false for handshake commands and for the empty "AT" ping.
func (c Command) Event(device hfp.Address) (ev hfp.StackEvent, ok bool) {
	ev = hfp.StackEvent{Device: device}
	if c.Name == "" || c.Handshake() {
		return ev, false
	}
	unknown := func() (hfp.StackEvent, bool) {
		ev.Type = hfp.EventUnknownAT
		ev.Str = c.Raw[2:]
		return ev, true
	}
	switch c.Name {
	case "A":
		ev.Type = hfp.EventAnswerCall
	case "+CHUP":
		ev.Type = hfp.EventHangupCall
	case "D":
		ev.Type = hfp.EventDialCall
		ev.Str = c.Arg
	case "+BLDN":
		ev.Type = hfp.EventDialCall
	case "+VTS":
		if c.Type != TypeSet || len(c.Arg) != 1 {
			return unknown()
		}
		ev.Type = hfp.EventSendDTMF
		ev.Int1 = int(c.Arg[0])
	case "+NREC":
		v, err := strconv.Atoi(c.Arg)
		if c.Type != TypeSet || err != nil {
			return unknown()
		}
		ev.Type = hfp.EventNoiseReduction
		ev.Int1 = v
	case "+CHLD":
		v, err := strconv.Atoi(c.Arg)
		if c.Type != TypeSet || err != nil {
			return unknown()
		}
		ev.Type = hfp.EventATChld
		ev.Int1 = v
	case "+CNUM":
		ev.Type = hfp.EventSubscriberNumberRequest
	case "+CIND":
		if c.Type != TypeRead {
			return unknown()
		}
		ev.Type = hfp.EventATCind
	case "+COPS":
		if c.Type != TypeRead {
			return unknown()
		}
		ev.Type = hfp.EventATCops
	case "+CLCC":
		ev.Type = hfp.EventATClcc
	case "+BVRA":
		v, err := strconv.Atoi(c.Arg)
		if c.Type != TypeSet || err != nil {
			return unknown()
		}
		ev.Type = hfp.EventVRStateChanged
		ev.Int1 = v
	case "+VGS", "+VGM":
		v, err := strconv.Atoi(c.Arg)
		if c.Type != TypeSet || err != nil {
			return unknown()
		}
		ev.Type = hfp.EventVolumeChanged
		ev.Int1 = int(hfp.VolumeSpeaker)
		if c.Name == "+VGM" {
			ev.Int1 = int(hfp.VolumeMic)
		}
		ev.Int2 = v
	case "+CKPD":
		ev.Type = hfp.EventKeyPressed
	case "+BAC":
		if c.Type != TypeSet {
			return unknown()
		}
		ev.Type = hfp.EventWBS
		ev.Int1 = int(hfp.WBSNo)
		for _, id := range strings.Split(c.Arg, ",") {
			if strings.TrimSpace(id) == "2" {
				ev.Int1 = int(hfp.WBSYes)
			}
		}
	case "+BIND":
		if c.Type != TypeSet {
			return unknown()
		}
		ev.Type = hfp.EventBIND
		ev.Str = c.Arg
	case "+BIEV":
		if c.Type != TypeSet {
			return unknown()
		}
		parts := strings.SplitN(c.Arg, ",", 2)
		if len(parts) != 2 {
			return unknown()
		}
		id, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		val, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return unknown()
		}
		ev.Type = hfp.EventBIEV
		ev.Int1 = id
		ev.Int2 = val
	case "+BIA":
		if c.Type != TypeSet {
			return unknown()
		}
		st, err := ParseBIA(c.Arg)
		if err != nil {
			return unknown()
		}
		ev.Type = hfp.EventBIA
		ev.Indicators = &st
	default:
		return unknown()
	}
	return ev, true
}
