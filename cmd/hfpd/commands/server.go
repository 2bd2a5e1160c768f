package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haivivi/hfpag/pkg/headset"
	"github.com/haivivi/hfpag/pkg/hfp"
)

// controller is the part of headset.Service the HTTP API drives.
type controller interface {
	Snapshot() headset.Snapshot
	Connect(device hfp.Address) bool
	Disconnect(device hfp.Address) bool
	SetActiveDevice(device hfp.Address) bool
	SetPriority(ctx context.Context, device hfp.Address, p hfp.Priority) error
	ConnectAudio() bool
	DisconnectAudio() bool
	StartScoUsingVirtualVoiceCall() bool
	StopScoUsingVirtualVoiceCall() bool
	BatteryChanged(level, scale int)
}

// apiServer serves the daemon's status and control endpoints next to the
// event hub.
type apiServer struct {
	ctl controller
	mux *http.ServeMux
}

// actionResult is the body of every control response.
type actionResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

type batteryRequest struct {
	Level int `json:"level"`
	Scale int `json:"scale"`
}

func newAPIServer(ctl controller, events http.Handler) *apiServer {
	s := &apiServer{ctl: ctl, mux: http.NewServeMux()}
	s.setupRoutes(events)
	return s
}

func (s *apiServer) setupRoutes(events http.Handler) {
	if events != nil {
		s.mux.Handle("GET /events", events)
	}
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /devices/{addr}/connect", s.deviceAction(s.ctl.Connect))
	s.mux.HandleFunc("POST /devices/{addr}/disconnect", s.deviceAction(s.ctl.Disconnect))
	s.mux.HandleFunc("POST /devices/{addr}/active", s.deviceAction(s.ctl.SetActiveDevice))
	s.mux.HandleFunc("PUT /devices/{addr}/priority", s.handlePriority)
	s.mux.HandleFunc("POST /audio/connect", s.action(s.ctl.ConnectAudio))
	s.mux.HandleFunc("POST /audio/disconnect", s.action(s.ctl.DisconnectAudio))
	s.mux.HandleFunc("POST /virtual-call/start", s.action(s.ctl.StartScoUsingVirtualVoiceCall))
	s.mux.HandleFunc("POST /virtual-call/stop", s.action(s.ctl.StopScoUsingVirtualVoiceCall))
	s.mux.HandleFunc("POST /battery", s.handleBattery)
}

func (s *apiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Snapshot())
}

func (s *apiServer) action(fn func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, fn())
	}
}

func (s *apiServer) deviceAction(fn func(hfp.Address) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, ok := pathDevice(w, r)
		if !ok {
			return
		}
		writeResult(w, fn(device))
	}
}

func (s *apiServer) handlePriority(w http.ResponseWriter, r *http.Request) {
	device, ok := pathDevice(w, r)
	if !ok {
		return
	}
	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, actionResult{Error: err.Error()})
		return
	}
	p, err := hfp.ParsePriority(req.Priority)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, actionResult{Error: err.Error()})
		return
	}
	if err := s.ctl.SetPriority(r.Context(), device, p); err != nil {
		writeJSON(w, http.StatusInternalServerError, actionResult{Error: err.Error()})
		return
	}
	writeResult(w, true)
}

func (s *apiServer) handleBattery(w http.ResponseWriter, r *http.Request) {
	var req batteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, actionResult{Error: err.Error()})
		return
	}
	if req.Scale <= 0 || req.Level < 0 || req.Level > req.Scale {
		writeJSON(w, http.StatusBadRequest, actionResult{
			Error: fmt.Sprintf("battery level %d/%d out of range", req.Level, req.Scale),
		})
		return
	}
	s.ctl.BatteryChanged(req.Level, req.Scale)
	writeResult(w, true)
}

func pathDevice(w http.ResponseWriter, r *http.Request) (hfp.Address, bool) {
	device, err := hfp.ParseAddress(r.PathValue("addr"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, actionResult{Error: err.Error()})
		return hfp.Address{}, false
	}
	return device, true
}

// writeResult answers 200 when ok and 409 when the service refused.
func writeResult(w http.ResponseWriter, ok bool) {
	if !ok {
		writeJSON(w, http.StatusConflict, actionResult{Error: "request refused in current state"})
		return
	}
	writeJSON(w, http.StatusOK, actionResult{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
