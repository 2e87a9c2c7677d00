package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/spraybot-team/spraybot/pkg/sequencer"
)

const defaultSpeedPct = 10

type moveRequest struct {
	Distance *float64 `json:"distance"`
	Speed    *int     `json:"speed"`
}

type sprayAngleRequest struct {
	Angle *float64 `json:"angle"`
}

type sprayFireRequest struct {
	Duration *float64 `json:"duration"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *Server) handleMove(direction string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		if req.Distance == nil {
			s.writeBadRequest(w, "distance is required")
			return
		}
		if *req.Distance < 0 {
			s.writeBadRequest(w, "distance must be non-negative")
			return
		}
		speed := defaultSpeedPct
		if req.Speed != nil {
			speed = *req.Speed
		}
		if speed < 0 || speed > 100 {
			s.writeBadRequest(w, "speed must be between 0 and 100")
			return
		}

		status, err := s.actuator.Drive(r.Context(), direction, *req.Distance, speed)
		s.writeResult(w, status, err)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	status, err := s.actuator.Stop(r.Context())
	s.writeResult(w, status, err)
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	direction := mux.Vars(r)["direction"]
	status, err := s.actuator.AimCamera(r.Context(), direction)
	s.writeResult(w, status, err)
}

func (s *Server) handleTurnSpray(w http.ResponseWriter, r *http.Request) {
	var req sprayAngleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if req.Angle == nil {
		s.writeBadRequest(w, "angle is required")
		return
	}
	if *req.Angle < 0 || *req.Angle > 180 {
		s.writeBadRequest(w, "angle must be between 0 and 180 degrees")
		return
	}

	status, err := s.actuator.AimSprayNozzle(r.Context(), *req.Angle)
	s.writeResult(w, status, err)
}

func (s *Server) handleActivateSpray(w http.ResponseWriter, r *http.Request) {
	var req sprayFireRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	duration := sprayDuration(req)
	if duration < 0 {
		s.writeBadRequest(w, "duration must be non-negative")
		return
	}

	status, err := s.actuator.FireSpray(r.Context(), duration)
	s.writeResult(w, status, err)
}

// sprayDuration applies the 5s default when the field is absent or zero.
// Negative values pass through so the handler can reject them.
func sprayDuration(req sprayFireRequest) time.Duration {
	if req.Duration == nil || *req.Duration == 0 {
		return sequencer.DefaultSprayDuration
	}
	return time.Duration(*req.Duration * float64(time.Second))
}

// decodeBody parses an optional JSON body.  An empty body decodes to the
// zero value so endpoints with all-optional fields accept bare POSTs.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.New("invalid request payload")
	}
	return nil
}

func (s *Server) writeResult(w http.ResponseWriter, status string, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, statusResponse{Status: status})
	case errors.Is(err, sequencer.ErrInvalidDirection):
		s.writeBadRequest(w, err.Error())
	case errors.Is(err, sequencer.ErrInterrupted):
		// The command was cut short by /stop or shutdown; its cleanup
		// still ran, so this is not a failure from the caller's side.
		s.writeJSON(w, http.StatusOK, statusResponse{Status: "Command interrupted"})
	default:
		s.logger.Errorw("Command failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Error: err.Error()})
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("Failed to write response", "error", err)
	}
}
