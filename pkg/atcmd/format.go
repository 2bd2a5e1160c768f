package atcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Indicator positions (1-based) in the +CIND list advertised by CINDTest.
const (
	IndCall = iota + 1
	IndCallSetup
	IndService
	IndSignal
	IndRoam
	IndBattChg
	IndCallHeld
)

// CINDTest is the answer to AT+CIND=?.
const CINDTest = `+CIND: ("call",(0,1)),("callsetup",(0-3)),("service",(0-1)),("signal",(0-5)),("roam",(0,1)),("battchg",(0-5)),("callheld",(0-2))`

// CHLDTest is the answer to AT+CHLD=?.
const CHLDTest = "+CHLD: (0,1,2,3)"

// BINDTest is the answer to AT+BIND=?.
const BINDTest = "+BIND: (1,2)"

// AG supported features advertised in +BRSF.
const (
	AGFeatureThreeWay        = 1 << 0
	AGFeatureECNR            = 1 << 1
	AGFeatureVoiceRecog      = 1 << 2
	AGFeatureInbandRing      = 1 << 3
	AGFeatureRejectCall      = 1 << 5
	AGFeatureEnhancedStatus  = 1 << 6
	AGFeatureEnhancedControl = 1 << 7
	AGFeatureExtendedErrors  = 1 << 8
	AGFeatureCodecNegotiate  = 1 << 9
	AGFeatureHFIndicators    = 1 << 10
)

// HF supported features reported in AT+BRSF.
const (
	HFFeatureThreeWay       = 1 << 1
	HFFeatureCodecNegotiate = 1 << 7
	HFFeatureHFIndicators   = 1 << 8
)

// CallSetup maps a call state to the "callsetup" indicator value.
func CallSetup(s hfp.CallState) int {
	switch s {
	case hfp.CallIncoming, hfp.CallWaiting:
		return 1
	case hfp.CallDialing:
		return 2
	case hfp.CallAlerting:
		return 3
	default:
		return 0
	}
}

// CallHeld returns the "callheld" indicator value.
func CallHeld(numActive, numHeld int) int {
	switch {
	case numHeld > 0 && numActive > 0:
		return 1
	case numHeld > 0:
		return 2
	default:
		return 0
	}
}

// CIND is the set of values answered to AT+CIND?.
type CIND struct {
	Service   int
	NumActive int
	NumHeld   int
	CallState hfp.CallState
	Signal    int
	Roam      int
	Battery   int
}

// String formats the +CIND read response in CINDTest order.
func (c CIND) String() string {
	call := 0
	if c.NumActive > 0 {
		call = 1
	}
	return fmt.Sprintf("+CIND: %d,%d,%d,%d,%d,%d,%d",
		call, CallSetup(c.CallState), c.Service, c.Signal, c.Roam, c.Battery, CallHeld(c.NumActive, c.NumHeld))
}

// FormatCIEV formats an indicator event.
func FormatCIEV(ind, value int) string {
	return fmt.Sprintf("+CIEV: %d,%d", ind, value)
}

// FormatCOPS formats the operator name response.
func FormatCOPS(operator string) string {
	return fmt.Sprintf("+COPS: 0,0,\"%s\"", operator)
}

// FormatCLCC formats one +CLCC line.
func FormatCLCC(e hfp.ClccEntry) string {
	mpty := 0
	if e.Multiparty {
		mpty = 1
	}
	s := fmt.Sprintf("+CLCC: %d,%d,%d,%d,%d", e.Index, e.Direction, e.Status, e.Mode, mpty)
	if e.Number != "" {
		s += fmt.Sprintf(",\"%s\",%d", e.Number, e.Type)
	}
	return s
}

// FormatBRSF formats the AG supported features response.
func FormatBRSF(features int) string {
	return "+BRSF: " + strconv.Itoa(features)
}

// FormatVGS formats an unsolicited speaker gain change.
func FormatVGS(volume int) string {
	return "+VGS: " + strconv.Itoa(volume)
}

// FormatVGM formats an unsolicited microphone gain change.
func FormatVGM(volume int) string {
	return "+VGM: " + strconv.Itoa(volume)
}

// FormatBVRA formats an unsolicited voice recognition state change.
func FormatBVRA(started bool) string {
	if started {
		return "+BVRA: 1"
	}
	return "+BVRA: 0"
}

// FormatBSIR formats the in-band ring tone setting.
func FormatBSIR(inband bool) string {
	if inband {
		return "+BSIR: 1"
	}
	return "+BSIR: 0"
}

// FormatBIND formats the enabled state of an HF indicator.
func FormatBIND(ind int, enabled bool) string {
	v := 0
	if enabled {
		v = 1
	}
	return fmt.Sprintf("+BIND: %d,%d", ind, v)
}

// ParseBIA decodes the argument of AT+BIA. Fields are positional in CINDTest
// order; empty fields keep the default (enabled). Call related indicators
// cannot be disabled and are ignored.
func ParseBIA(arg string) (hfp.AgIndicatorEnableState, error) {
	st := hfp.DefaultAgIndicatorEnableState
	for i, f := range strings.Split(arg, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		var on bool
		switch f {
		case "0":
		case "1":
			on = true
		default:
			return st, fmt.Errorf("atcmd: invalid +BIA field %q", f)
		}
		switch i + 1 {
		case IndService:
			st.Service = on
		case IndSignal:
			st.Signal = on
		case IndRoam:
			st.Roam = on
		case IndBattChg:
			st.Battery = on
		}
	}
	return st, nil
}
