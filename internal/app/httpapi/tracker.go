package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hangarhq/hangar/internal/app/metrics"
	"github.com/hangarhq/hangar/internal/app/services/features"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/httputil"
	"github.com/hangarhq/hangar/internal/logging"
)

// TrackerHandler bundles the feature-tracking API endpoints.
type TrackerHandler struct {
	features *features.Service
	log      *logging.Logger
}

// NewTrackerRouter builds the tracker API router.
func NewTrackerRouter(featureSvc *features.Service, log *logging.Logger) *mux.Router {
	if log == nil {
		log = logging.Default()
	}
	h := &TrackerHandler{features: featureSvc, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/feature", h.createFeature).Methods(http.MethodPost)
	r.HandleFunc("/api/features", h.findFeatures).Methods(http.MethodGet)
	r.HandleFunc("/api/feature/{id}", h.getFeature).Methods(http.MethodGet)
	r.HandleFunc("/api/feature/{id}", h.updateFeature).Methods(http.MethodPut)
	r.HandleFunc("/api/feature/{id}", h.deleteFeature).Methods(http.MethodDelete)

	return r
}

func (h *TrackerHandler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trackerError is the tracker's wire error shape.
type trackerError struct {
	Err string `json:"err"`
	Des string `json:"des"`
}

// trackerCodes maps service error codes onto the tracker's short kinds.
var trackerCodes = map[errors.ErrorCode]string{
	errors.CodeBadRequest: "invalid_feature",
	errors.CodeConflict:   "feature_conflict",
	errors.CodeNotFound:   "feature_not_found",
}

func (h *TrackerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		h.log.WithContext(r.Context()).WithError(err).Error("tracker request failed")
		httputil.WriteJSON(w, http.StatusInternalServerError,
			trackerError{Err: "internal_error", Des: "something is wrong!"})
		return
	}
	kind, ok := trackerCodes[serviceErr.Code]
	if !ok {
		kind = "internal_error"
	}
	httputil.WriteJSON(w, serviceErr.HTTPStatus, trackerError{Err: kind, Des: serviceErr.Message})
}

func (h *TrackerHandler) createFeature(w http.ResponseWriter, r *http.Request) {
	var in features.CreateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, errors.BadRequest(err.Error()))
		return
	}
	id, err := h.features.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *TrackerHandler) findFeatures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := features.FindOptions{
		BlueprintID: q.Get("blueprintId"),
		Name:        q.Get("name"),
	}
	if tags := q.Get("tags"); tags != "" {
		opts.Tags = strings.Split(tags, ",")
	}
	if opts.BlueprintID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest,
			map[string]string{"error": "no query parameters found"})
		return
	}
	list, err := h.features.Find(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": list})
}

func (h *TrackerHandler) getFeature(w http.ResponseWriter, r *http.Request) {
	f, err := h.features.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

func (h *TrackerHandler) updateFeature(w http.ResponseWriter, r *http.Request) {
	var in features.UpdateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, errors.BadRequest(err.Error()))
		return
	}
	if _, err := h.features.Update(r.Context(), mux.Vars(r)["id"], in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *TrackerHandler) deleteFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.features.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
