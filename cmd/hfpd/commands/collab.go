package commands

import (
	"log/slog"
	"sync"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// callReporter is the part of headset.Service the telephony answers into.
type callReporter interface {
	PhoneStateChanged(info hfp.CallStateInfo)
	ClccResponse(entry hfp.ClccEntry)
}

// idleTelephony is the telephony of a host without a modem: there is never
// a call, and dial, answer and hangup requests are refused. Operator and
// subscriber number come from the context.
//
// Replies are delivered on a new goroutine since the service calls
// Telephony with its lock held.
type idleTelephony struct {
	operator string
	number   string

	mu       sync.Mutex
	reporter callReporter
}

func newIdleTelephony(operator, number string) *idleTelephony {
	return &idleTelephony{operator: operator, number: number}
}

func (t *idleTelephony) attach(r callReporter) {
	t.mu.Lock()
	t.reporter = r
	t.mu.Unlock()
}

func (t *idleTelephony) report(fn func(callReporter)) bool {
	t.mu.Lock()
	r := t.reporter
	t.mu.Unlock()
	if r == nil {
		return false
	}
	go fn(r)
	return true
}

func (t *idleTelephony) AnswerCall(device hfp.Address) bool {
	slog.Info("telephony: no call to answer", "device", device)
	return false
}

func (t *idleTelephony) HangupCall(device hfp.Address) bool {
	slog.Info("telephony: no call to hang up", "device", device)
	return false
}

func (t *idleTelephony) SendDTMF(hfp.Address, int) bool { return false }
func (t *idleTelephony) ProcessChld(int) bool           { return false }

func (t *idleTelephony) ListCurrentCalls() bool {
	return t.report(func(r callReporter) { r.ClccResponse(hfp.TerminatingClcc) })
}

func (t *idleTelephony) QueryPhoneState() bool {
	return t.report(func(r callReporter) {
		r.PhoneStateChanged(hfp.CallStateInfo{CallState: hfp.CallIdle})
	})
}

func (t *idleTelephony) NetworkOperator() string  { return t.operator }
func (t *idleTelephony) SubscriberNumber() string { return t.number }

func (t *idleTelephony) Dial(number string) bool {
	slog.Info("telephony: dial refused, no modem", "number", number)
	return false
}

// logAudio records mixer requests in the log instead of touching a mixer.
type logAudio struct{}

func (logAudio) SetParameters(kv string) {
	slog.Debug("audio: set parameters", "params", kv)
}

func (logAudio) SetStreamVolume(volume int, showUI bool) {
	slog.Debug("audio: set stream volume", "volume", volume, "show_ui", showUI)
}
