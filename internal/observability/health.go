package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Phase is the stage a scan has reached.
type Phase string

// Scan phases, in order.
const (
	PhaseStarting  Phase = "starting"
	PhaseResolving Phase = "resolving"
	PhaseScanning  Phase = "scanning"
	PhaseMerging   Phase = "merging"
	PhaseDone      Phase = "done"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ScanStatus tracks the current phase for the readiness endpoint.
type ScanStatus struct {
	phase atomic.Value
}

// NewScanStatus returns a status in PhaseStarting.
func NewScanStatus() *ScanStatus {
	st := &ScanStatus{}
	st.phase.Store(PhaseStarting)

	return st
}

// Set moves the status to phase.
func (st *ScanStatus) Set(phase Phase) {
	st.phase.Store(phase)
}

// Phase returns the current phase.
func (st *ScanStatus) Phase() Phase {
	phase, _ := st.phase.Load().(Phase)

	return phase
}

// Ready reports whether the scan has got past database resolution.
func (st *ScanStatus) Ready() bool {
	switch st.Phase() {
	case PhaseScanning, PhaseMerging, PhaseDone:
		return true
	default:
		return false
	}
}

// HealthHandler serves liveness: always 200 {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeStatus(rw, http.StatusOK, map[string]string{"status": healthStatusOK})
	})
}

// ReadyHandler serves readiness: 200 once st is ready, 503 before, with the
// current phase in the body.
func ReadyHandler(st *ScanStatus) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		body := map[string]string{"status": healthStatusOK, "phase": string(st.Phase())}

		if !st.Ready() {
			body["status"] = healthStatusUnavailable
			writeStatus(rw, http.StatusServiceUnavailable, body)

			return
		}

		writeStatus(rw, http.StatusOK, body)
	})
}

func writeStatus(rw http.ResponseWriter, code int, body map[string]string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	data, err := json.Marshal(body)
	if err != nil {
		return
	}

	_, _ = rw.Write(data)
}
