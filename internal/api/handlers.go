package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/dhosconnector/internal/epr"
	"github.com/savegress/dhosconnector/internal/inbound"
	"github.com/savegress/dhosconnector/internal/outbound"
	"github.com/savegress/dhosconnector/internal/store"
)

// Handlers implements the seven REST endpoints of spec.md §6.
type Handlers struct {
	Inbound *inbound.Pipeline
	Outbound *outbound.Pipeline
	CDA     *outbound.CDAPipeline
	Store   *store.Store
}

func NewHandlers(in *inbound.Pipeline, out *outbound.Pipeline, cda *outbound.CDAPipeline, st *store.Store) *Handlers {
	return &Handlers{Inbound: in, Outbound: out, CDA: cda, Store: st}
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}

// SubmitMessage is POST /dhos/v1/message.
func (h *Handlers) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := h.Inbound.Submit(r.Context(), req.Content)
	if err != nil {
		var parseErr *inbound.ParseError
		if errors.As(err, &parseErr) {
			respondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"uuid": result.UUID,
		"body": string(result.Body),
		"type": result.Type,
	})
}

// PatchMessage is PATCH /dhos/v1/message/{uuid}.
func (h *Handlers) PatchMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	var req struct {
		IsProcessed *bool `json:"is_processed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	err := h.Store.Update(r.Context(), id, store.Patch{IsProcessed: req.IsProcessed})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitORU is POST /dhos/v1/oru_message.
func (h *Handlers) SubmitORU(w http.ResponseWriter, r *http.Request) {
	var req oruActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Actions) == 0 {
		respondError(w, http.StatusBadRequest, "no actions supplied")
		return
	}
	action := req.Actions[0]

	patient, err := action.Data.Patient.toPatient()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid patient: "+err.Error())
		return
	}
	encounter, err := action.Data.Encounter.toEncounter()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid encounter: "+err.Error())
		return
	}
	clinician := action.Data.Clinician.toClinician()
	set, err := action.Data.ObservationSet.toObservationSet()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid observation_set: "+err.Error())
		return
	}

	_, err = h.Outbound.SendORU(r.Context(), outbound.ORUInput{
		Patient:        patient,
		Encounter:      encounter,
		Clinician:      clinician,
		ObservationSet: set,
	})
	if err != nil {
		if errors.Is(err, outbound.ErrGenerationDisabled) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeDownstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitCDA is POST /dhos/v1/cda_message.
func (h *Handlers) SubmitCDA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	record, err := h.CDA.SendCDA(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, outbound.ErrCDADisabled) {
			respondError(w, http.StatusNotImplemented, "cda transport disabled")
			return
		}
		writeDownstreamError(w, err)
		return
	}
	respond(w, http.StatusCreated, toRecordDTO(record))
}

// GetMessage is GET /dhos/v1/message/{uuid}.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	record, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond(w, http.StatusOK, toRecordDTO(record))
}

// SearchByControlID is GET /dhos/v1/message/search/{control_id}.
func (h *Handlers) SearchByControlID(w http.ResponseWriter, r *http.Request) {
	controlID := chi.URLParam(r, "control_id")
	records, err := h.Store.GetByControlID(r.Context(), controlID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond(w, http.StatusOK, toRecordDTOs(records))
}

// SearchByIdentifier is GET /dhos/v1/message/search?identifier_type=&identifier=.
func (h *Handlers) SearchByIdentifier(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("identifier_type")
	value := r.URL.Query().Get("identifier")
	if kind == "" || value == "" {
		respondError(w, http.StatusBadRequest, "identifier_type and identifier are required")
		return
	}
	records, err := h.Store.SearchByIdentifier(r.Context(), kind, value)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond(w, http.StatusOK, toRecordDTOs(records))
}

func toRecordDTOs(records []*store.Record) []recordDTO {
	out := make([]recordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordDTO(r))
	}
	return out
}

// writeDownstreamError maps a classified epr.SendError (or a raw error
// from a path without one) to the nearest REST status: unavailable
// conditions become 503, everything else a 502 since the dependency
// itself rejected the call.
func writeDownstreamError(w http.ResponseWriter, err error) {
	var sendErr *epr.SendError
	if errors.As(err, &sendErr) && sendErr.Kind == epr.KindUnavailable {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondError(w, http.StatusBadGateway, err.Error())
}
