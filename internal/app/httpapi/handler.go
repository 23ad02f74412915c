// Package httpapi exposes the distribution and tracker REST APIs.
package httpapi

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/hangarhq/hangar/internal/app"
	"github.com/hangarhq/hangar/internal/app/metrics"
	"github.com/hangarhq/hangar/internal/app/services/clients"
	"github.com/hangarhq/hangar/internal/app/services/platforms"
	"github.com/hangarhq/hangar/internal/app/services/products"
	"github.com/hangarhq/hangar/internal/app/services/users"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/httputil"
	"github.com/hangarhq/hangar/internal/logging"
	"github.com/hangarhq/hangar/internal/middleware"
)

const defaultPageSize = 20

// Handler bundles the distribution API endpoints.
type Handler struct {
	app   *app.Application
	log   *logging.Logger
	audit *auditLog
}

// NewRouter builds the distribution API router. Middleware is chained by
// the caller; the router only maps routes to service calls.
func NewRouter(application *app.Application, log *logging.Logger) *mux.Router {
	if log == nil {
		log = logging.Default()
	}

	var sink auditSink
	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		s, err := newFileAuditSink(path)
		if err != nil {
			log.WithError(err).Warn("configure audit sink")
		} else {
			sink = s
		}
	}
	h := &Handler{app: application, log: log, audit: newAuditLog(0, sink)}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/images/{id}.png", h.productIcon).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.recordAudit)

	api.HandleFunc("/product", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/product", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/product/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/product/{id}", h.updateProduct).Methods(http.MethodPut)
	api.HandleFunc("/product/{id}", h.deleteProduct).Methods(http.MethodDelete)

	api.HandleFunc("/product/{id}/compilation", h.listCompilations).Methods(http.MethodGet)
	api.HandleFunc("/product/{id}/compilation", h.createCompilation).Methods(http.MethodPost)
	api.HandleFunc("/product/{id}/compilation/{cid}", h.deleteCompilation).Methods(http.MethodDelete)
	api.HandleFunc("/product/{id}/compilation/{cid}", h.updateCompilation).Methods(http.MethodPut)
	api.HandleFunc("/product/{id}/compilation/{cid}/download", h.downloadCompilation).Methods(http.MethodGet)
	api.HandleFunc("/product/{id}/compilation/{cid}/plist", h.downloadCompilationPlist).Methods(http.MethodGet)
	api.HandleFunc("/product/{id}/compilation/{cid}/ack", h.uploadAckCompilation).Methods(http.MethodPut)

	api.HandleFunc("/client", h.createClient).Methods(http.MethodPost)
	api.HandleFunc("/client", h.listClients).Methods(http.MethodGet)
	api.HandleFunc("/client/{id}", h.getClient).Methods(http.MethodGet)
	api.HandleFunc("/client/{id}", h.updateClient).Methods(http.MethodPut)
	api.HandleFunc("/client/{id}", h.deleteClient).Methods(http.MethodDelete)
	api.HandleFunc("/domains", h.listDomains).Methods(http.MethodGet)

	api.HandleFunc("/user", h.createUser).Methods(http.MethodPost)
	api.HandleFunc("/user", h.currentUser).Methods(http.MethodGet)
	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/user/{id}", h.deleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/user/subscription/{id}", h.createSubscription).Methods(http.MethodPost)
	api.HandleFunc("/user/subscription/{id}", h.deleteSubscription).Methods(http.MethodDelete)

	api.HandleFunc("/platform", h.createPlatform).Methods(http.MethodPost)
	api.HandleFunc("/platform", h.listPlatforms).Methods(http.MethodGet)
	api.HandleFunc("/platform/{id}", h.getPlatform).Methods(http.MethodGet)
	api.HandleFunc("/platform/{id}", h.updatePlatform).Methods(http.MethodPut)
	api.HandleFunc("/platform/{id}", h.deletePlatform).Methods(http.MethodDelete)

	api.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) viewer(r *http.Request) products.Viewer {
	ctx := r.Context()
	return products.Viewer{
		UserID: middleware.GetUserID(ctx),
		Client: middleware.GetUserClient(ctx),
		Admin:  middleware.IsAdmin(ctx),
	}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in products.CreateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	p, err := h.app.Products.Create(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := products.ListOptions{
		Name:     q.Get("name"),
		Platform: q.Get("platform"),
		Offset:   intQuery(q.Get("offset"), 0),
		PageSize: intQuery(q.Get("pagesize"), defaultPageSize),
	}
	list, err := h.app.Products.List(r.Context(), h.viewer(r), opts)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Products.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	// Subscriber identities are not exposed on the product resource.
	p.Subscriptions = nil
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in products.UpdateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	if _, err := h.app.Products.Update(r.Context(), mux.Vars(r)["id"], in); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Products.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productIcon(w http.ResponseWriter, r *http.Request) {
	icon, err := h.app.Products.Icon(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(icon)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(icon)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var in clients.CreateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	c, err := h.app.Clients.Create(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Clients.List(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Clients.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	var in clients.UpdateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	if _, err := h.app.Clients.Update(r.Context(), mux.Vars(r)["id"], in); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Clients.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.app.Clients.Domains(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"items": domains})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in users.CreateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	u, err := h.app.Users.Create(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": u.ID})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteServiceError(w, r, errors.Unauthorized("Missing caller identity"))
		return
	}
	u, err := h.app.Users.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Users.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteServiceError(w, r, errors.Unauthorized("Missing caller identity"))
		return
	}
	if _, err := h.app.Users.Subscribe(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteServiceError(w, r, errors.Unauthorized("Missing caller identity"))
		return
	}
	p, err := h.app.Users.Unsubscribe(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createPlatform(w http.ResponseWriter, r *http.Request) {
	var in platforms.CreateInput
	if err := httputil.DecodeJSON(r.Body, &in); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	p, err := h.app.Platforms.Create(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Platforms.List(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getPlatform(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Platforms.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updatePlatform(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Versions []string `json:"platformVersions"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	p, err := h.app.Platforms.Update(r.Context(), mux.Vars(r)["id"], payload.Versions)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) deletePlatform(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Platforms.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsAdmin(r.Context()) {
		httputil.WriteServiceError(w, r, errors.Forbidden("Admin access required"))
		return
	}
	limit := intQuery(r.URL.Query().Get("limit"), 0)
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
