package web

import (
	"net/http"

	"github.com/inercia/adkinspect/internal/inspector"
)

// handleInspector returns the caller's session snapshot. With full=1 each
// event is enriched with its trace and graph.
// Route: GET /api/inspector
func (s *Server) handleInspector(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)
	c := s.config.Registry.Get(r.Context(), key)

	var (
		snap inspector.Snapshot
		err  error
	)
	switch r.URL.Query().Get("full") {
	case "1", "true":
		snap, err = s.config.Inspector.Build(r.Context(), c)
	default:
		snap, err = s.config.Inspector.EventsOnly(r.Context(), c)
	}
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSONOK(w, snap)
}

// handleEventTrace returns the decoded trace of one event.
// Route: GET /api/events/{eventID}/trace
func (s *Server) handleEventTrace(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)
	eventID := r.PathValue("eventID")
	c := s.config.Registry.Get(r.Context(), key)

	trace, err := c.GetTrace(r.Context(), eventID)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if trace == nil {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "No trace for event "+eventID)
		return
	}
	writeJSONOK(w, inspector.DecodeTrace(trace, s.logger))
}

// handleEventGraph returns the execution graph of one event.
// Route: GET /api/events/{eventID}/graph
func (s *Server) handleEventGraph(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)
	eventID := r.PathValue("eventID")
	c := s.config.Registry.Get(r.Context(), key)

	graph, err := c.GetGraph(r.Context(), eventID)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if graph == nil {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "No graph for event "+eventID)
		return
	}
	writeJSONOK(w, graph)
}
