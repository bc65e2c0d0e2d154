package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
)

// handleStatus returns the fleet status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Status())
}

// handleListSessions returns the snapshot of every session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	st := s.fleet.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": st.Sessions,
		"count":    len(st.Sessions),
	})
}

// handleGetSession returns one session by ID or device serial.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sn, ok := s.fleet.Status().Session(id)
	if !ok {
		writeNotFound(w, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// handleSessionCommand returns a handler queueing action for the session
// named in the path. The command is applied by the next control loop pass.
func (s *Server) handleSessionCommand(action fleet.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := s.fleet.Status().Session(id); !ok {
			writeNotFound(w, "session not found")
			return
		}
		s.submit(w, fleet.Command{Action: action, Session: id})
	}
}

// handleFleetCommand returns a handler queueing a fleet-wide action.
func (s *Server) handleFleetCommand(action fleet.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.submit(w, fleet.Command{Action: action})
	}
}

// handleStop fires the shared stop signal.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.submit(w, fleet.Command{Action: fleet.ActionStop})
}

func (s *Server) submit(w http.ResponseWriter, cmd fleet.Command) {
	if err := s.fleet.Submit(cmd); err != nil {
		s.writeDomainError(w, err, "failed to queue command")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"action":  cmd.Action,
		"session": cmd.Session,
		"status":  "queued",
	})
}

// handleGetFrame returns the last captured frame of a session as PNG.
func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		writeUnavailable(w, "frame capture is disabled (debug.keep_frames)")
		return
	}
	sn, ok := s.fleet.Status().Session(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "session not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.frames.WritePNG(w, sn.Device); err != nil {
		w.Header().Del("Content-Type")
		w.Header().Del("Cache-Control")
		s.writeDomainError(w, err, "failed to encode frame")
	}
}
