package bluez

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

// autoOK lists the commands the link acknowledges itself after handing
// them to the service.
var autoOK = map[string]bool{
	"A":     true,
	"+CHUP": true,
	"+VTS":  true,
	"+NREC": true,
	"+VGS":  true,
	"+VGM":  true,
	"+BAC":  true,
	"+BIND": true,
	"+BIEV": true,
	"+BIA":  true,
	"+CKPD": true,
}

// session is the AT command channel with one hands-free unit.
type session struct {
	device     hfp.Address
	rw         io.ReadWriteCloser
	agFeatures int
	emit       func(hfp.StackEvent)

	wmu sync.Mutex

	mu         sync.Mutex
	hfFeatures int
	cmer       bool
	cmerSeen   bool
	cmee       bool
	clip       bool
	ccwa       bool
	chldTested bool
	bindRead   bool
	slc        bool
	indicators hfp.AgIndicatorEnableState
	// cind holds the last value sent for each indicator, by position.
	cind [atcmd.IndCallHeld + 1]int
	call hfp.CallStateInfo

	closeOnce sync.Once
}

func newSession(device hfp.Address, rw io.ReadWriteCloser, agFeatures int, emit func(hfp.StackEvent)) *session {
	return &session{
		device:     device,
		rw:         rw,
		agFeatures: agFeatures,
		emit:       emit,
		indicators: hfp.DefaultAgIndicatorEnableState,
	}
}

// run reads commands until the channel fails or is closed.
func (s *session) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bluez: session panic", "device", s.device, "panic", r)
		}
	}()
	sc := bufio.NewScanner(s.rw)
	sc.Split(atcmd.Splitter)
	for sc.Scan() {
		s.handle(sc.Text())
	}
	if err := sc.Err(); err != nil {
		slog.Debug("bluez: session read ended", "device", s.device, "error", err)
	}
}

func (s *session) close() error {
	var err error
	s.closeOnce.Do(func() { err = s.rw.Close() })
	return err
}

// send writes each line as one framed result.
func (s *session) send(lines ...string) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, l := range lines {
		slog.Debug("bluez: >>", "device", s.device, "line", l)
		if _, err := s.rw.Write(atcmd.Frame(l)); err != nil {
			slog.Warn("bluez: write failed", "device", s.device, "error", err)
			return false
		}
	}
	return true
}

func (s *session) handle(line string) {
	slog.Debug("bluez: <<", "device", s.device, "line", line)
	cmd, err := atcmd.Parse(line)
	if err != nil {
		s.send(atcmd.ERROR)
		return
	}
	if cmd.Handshake() {
		s.handshake(cmd)
		return
	}
	if cmd.Name == "+BIA" && cmd.Type == atcmd.TypeSet {
		if st, err := atcmd.ParseBIA(cmd.Arg); err == nil {
			s.mu.Lock()
			s.indicators = st
			s.mu.Unlock()
		}
	}
	ev, ok := cmd.Event(s.device)
	if !ok {
		s.send(atcmd.OK)
		return
	}
	s.emit(ev)
	if autoOK[cmd.Name] && ev.Type != hfp.EventUnknownAT {
		s.send(atcmd.OK)
	}
}

// handshake answers the service level connection setup commands.
func (s *session) handshake(cmd atcmd.Command) {
	switch cmd.Name {
	case "+BRSF":
		v, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			s.send(atcmd.ERROR)
			return
		}
		s.mu.Lock()
		s.hfFeatures = v
		s.mu.Unlock()
		s.send(atcmd.FormatBRSF(s.agFeatures), atcmd.OK)
	case "+CIND":
		s.send(atcmd.CINDTest, atcmd.OK)
	case "+CMER":
		fields := strings.Split(cmd.Arg, ",")
		s.mu.Lock()
		s.cmerSeen = true
		s.cmer = len(fields) >= 4 && strings.TrimSpace(fields[3]) == "1"
		s.mu.Unlock()
		s.send(atcmd.OK)
		s.checkSLC()
	case "+CMEE", "+CLIP", "+CCWA":
		on := strings.TrimSpace(cmd.Arg) == "1"
		s.mu.Lock()
		switch cmd.Name {
		case "+CMEE":
			s.cmee = on
		case "+CLIP":
			s.clip = on
		case "+CCWA":
			s.ccwa = on
		}
		s.mu.Unlock()
		s.send(atcmd.OK)
	case "+CHLD":
		s.send(atcmd.CHLDTest, atcmd.OK)
		s.mu.Lock()
		s.chldTested = true
		s.mu.Unlock()
		s.checkSLC()
	case "+BIND":
		if cmd.Type == atcmd.TypeTest {
			s.send(atcmd.BINDTest, atcmd.OK)
			return
		}
		s.send(
			atcmd.FormatBIND(hfp.HFIndicatorEnhancedDriverSafety, true),
			atcmd.FormatBIND(hfp.HFIndicatorBatteryLevel, true),
			atcmd.OK,
		)
		s.mu.Lock()
		s.bindRead = true
		s.mu.Unlock()
		s.checkSLC()
	default:
		s.send(atcmd.OK)
	}
}

// checkSLC reports SLC_CONNECTED once the mandatory part of the handshake
// is done: event reporting, then hold capabilities when both sides support
// three way calling, then HF indicators when both sides support them.
func (s *session) checkSLC() {
	s.mu.Lock()
	both := func(ag, hf int) bool { return s.agFeatures&ag != 0 && s.hfFeatures&hf != 0 }
	done := !s.slc && s.cmerSeen &&
		(!both(atcmd.AGFeatureThreeWay, atcmd.HFFeatureThreeWay) || s.chldTested) &&
		(!both(atcmd.AGFeatureHFIndicators, atcmd.HFFeatureHFIndicators) || s.bindRead)
	if done {
		s.slc = true
	}
	s.mu.Unlock()
	if done {
		slog.Info("bluez: service level connection established", "device", s.device)
		s.emit(hfp.StackEvent{
			Type:   hfp.EventConnectionStateChanged,
			Device: s.device,
			Int1:   int(hfp.StackSLCConnected),
		})
	}
}

func (s *session) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slc
}

// cindResponse answers AT+CIND? and remembers the values as sent.
func (s *session) cindResponse(c atcmd.CIND) bool {
	call := 0
	if c.NumActive > 0 {
		call = 1
	}
	s.mu.Lock()
	s.cind[atcmd.IndCall] = call
	s.cind[atcmd.IndCallSetup] = atcmd.CallSetup(c.CallState)
	s.cind[atcmd.IndService] = c.Service
	s.cind[atcmd.IndSignal] = c.Signal
	s.cind[atcmd.IndRoam] = c.Roam
	s.cind[atcmd.IndBattChg] = c.Battery
	s.cind[atcmd.IndCallHeld] = atcmd.CallHeld(c.NumActive, c.NumHeld)
	s.mu.Unlock()
	return s.send(c.String(), atcmd.OK)
}

// responseCode sends OK or ERROR, or "+CME ERROR: n" when extended errors
// are enabled and a code is given.
func (s *session) responseCode(code hfp.ATResponseCode, errorCode int) bool {
	if code == hfp.ATResponseOK {
		return s.send(atcmd.OK)
	}
	s.mu.Lock()
	cmee := s.cmee
	s.mu.Unlock()
	if cmee && errorCode > 0 {
		return s.send(fmt.Sprintf("+CME ERROR: %d", errorCode))
	}
	return s.send(atcmd.ERROR)
}

// indicatorUpdates returns the +CIEV lines for the indicators whose value
// changed, and records the new values. Nothing is reported before event
// reporting is enabled.
func (s *session) indicatorUpdates(values map[int]int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cmer {
		for ind, v := range values {
			s.cind[ind] = v
		}
		return nil
	}
	var lines []string
	for ind := atcmd.IndCall; ind <= atcmd.IndCallHeld; ind++ {
		v, ok := values[ind]
		if !ok || s.cind[ind] == v {
			continue
		}
		s.cind[ind] = v
		if s.indicatorEnabled(ind) {
			lines = append(lines, atcmd.FormatCIEV(ind, v))
		}
	}
	return lines
}

func (s *session) indicatorEnabled(ind int) bool {
	switch ind {
	case atcmd.IndService:
		return s.indicators.Service
	case atcmd.IndSignal:
		return s.indicators.Signal
	case atcmd.IndRoam:
		return s.indicators.Roam
	case atcmd.IndBattChg:
		return s.indicators.Battery
	default:
		return true
	}
}

func (s *session) deviceStatus(ds hfp.DeviceState) bool {
	lines := s.indicatorUpdates(map[int]int{
		atcmd.IndService: ds.Service,
		atcmd.IndSignal:  ds.Signal,
		atcmd.IndRoam:    ds.Roam,
		atcmd.IndBattChg: ds.BatteryCharge,
	})
	return s.send(lines...)
}

// callStarted records info and reports whether it moves the link into an
// alerting call or its first active call.
func (s *session) callStarted(info hfp.CallStateInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.call
	s.call = info
	if info.CallState == hfp.CallAlerting {
		return prev.CallState != hfp.CallAlerting
	}
	return info.NumActive > 0 && prev.NumActive == 0
}

// phoneState pushes call indicator changes, the ring and caller id of an
// incoming call, and the call waiting notification.
func (s *session) phoneState(info hfp.CallStateInfo) bool {
	call := 0
	if info.NumActive > 0 {
		call = 1
	}
	lines := s.indicatorUpdates(map[int]int{
		atcmd.IndCall:      call,
		atcmd.IndCallSetup: atcmd.CallSetup(info.CallState),
		atcmd.IndCallHeld:  atcmd.CallHeld(info.NumActive, info.NumHeld),
	})
	s.mu.Lock()
	clip, ccwa := s.clip, s.ccwa
	s.mu.Unlock()
	switch info.CallState {
	case hfp.CallIncoming:
		lines = append(lines, "RING")
		if clip && info.Number != "" {
			lines = append(lines, fmt.Sprintf("+CLIP: \"%s\",%d", info.Number, info.Type))
		}
	case hfp.CallWaiting:
		if ccwa && info.Number != "" {
			lines = append(lines, fmt.Sprintf("+CCWA: \"%s\",%d", info.Number, info.Type))
		}
	}
	return s.send(lines...)
}
