package network

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"liftsim/src/types"
)

type buildingResponse struct {
	types.Building
	Elevators []types.ElevatorView `json:"elevators"`
}

type elevatorUpdate struct {
	ID string `json:"id"`
	types.ElevatorPatch
}

type moveBody struct {
	TargetFloor *int `json:"targetFloor"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, types.ErrInvalidInput)
	}
	return nil
}

// scope returns the buildingId query parameter or the default building.
func (s *Server) scope(r *http.Request) string {
	if id := r.URL.Query().Get("buildingId"); id != "" {
		return id
	}
	return s.buildingID
}

func (s *Server) getBuilding(w http.ResponseWriter, r *http.Request) {
	id := s.scope(r)
	building, err := s.store.GetBuilding(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	elevators, err := s.store.ListElevators(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildingResponse{Building: building, Elevators: elevators})
}

func (s *Server) listElevators(w http.ResponseWriter, r *http.Request) {
	elevators, err := s.store.ListElevators(r.Context(), s.scope(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elevators)
}

func (s *Server) updateElevator(w http.ResponseWriter, r *http.Request) {
	var body elevatorUpdate
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ID == "" {
		writeError(w, fmt.Errorf("id is required: %w", types.ErrInvalidInput))
		return
	}
	elevator, err := s.exec.UpdateElevator(r.Context(), body.ID, body.ElevatorPatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elevator)
}

func (s *Server) moveElevator(w http.ResponseWriter, r *http.Request) {
	var body moveBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.TargetFloor == nil {
		writeError(w, fmt.Errorf("targetFloor is required: %w", types.ErrInvalidInput))
		return
	}
	elevator, err := s.exec.Step(r.Context(), r.PathValue("id"), *body.TargetFloor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elevator)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("limit %q: %w", v, types.ErrInvalidInput))
			return
		}
		limit = min(n, s.limit)
	}
	requests, err := s.store.ListRequests(r.Context(), s.scope(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body types.NewRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.disp.CreateRequest(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) updateRequest(w http.ResponseWriter, r *http.Request) {
	var patch types.RequestPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.exec.UpdateRequest(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.DeleteRequest(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
