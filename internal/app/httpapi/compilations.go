package httpapi

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hangarhq/hangar/internal/app/services/compilations"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/httputil"
	"github.com/hangarhq/hangar/internal/middleware"
)

func (h *Handler) listCompilations(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Compilations.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createCompilation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Compilation compilations.CreateInput `json:"compilation"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteServiceError(w, r, errors.BadRequest(err.Error()))
		return
	}
	result, err := h.app.Compilations.Create(r.Context(), mux.Vars(r)["id"], payload.Compilation)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) deleteCompilation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := h.app.Compilations.Delete(r.Context(), vars["id"], vars["cid"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updateCompilation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	signed, err := h.app.Compilations.Update(r.Context(), vars["id"], vars["cid"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signed)
}

// downloadCompilation redirects to the resolved artifact URL. A caller
// without an authenticated identity may still download when it presents the
// compilation's public token.
func (h *Handler) downloadCompilation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	productID, compilationID := vars["id"], vars["cid"]

	if middleware.GetUserID(r.Context()) == "" {
		token := r.URL.Query().Get("publicToken")
		if token == "" || !h.validPublicToken(r, productID, compilationID, token) {
			httputil.WriteServiceError(w, r,
				errors.Unauthorized("You need to be logged in to download this compilation"))
			return
		}
	}

	signed, err := h.app.Compilations.Download(r.Context(), productID, compilationID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	h.log.WithContext(r.Context()).WithField("url", signed.URL).Info("redirecting download")
	http.Redirect(w, r, signed.URL, http.StatusMovedPermanently)
}

func (h *Handler) validPublicToken(r *http.Request, productID, compilationID, token string) bool {
	p, err := h.app.Products.Get(r.Context(), productID)
	if err != nil {
		return false
	}
	c, ok := p.Compilation(compilationID)
	return ok && c.PublicToken != "" && c.PublicToken == token
}

// downloadCompilationPlist serves the installer manifest. The native
// installer protocol fetches this URL without forwarding headers or
// cookies, so the route carries no identity requirement.
func (h *Handler) downloadCompilationPlist(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plist, err := h.app.Compilations.DownloadPlist(r.Context(), vars["id"], vars["cid"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", plist.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plist.Data)
}

func (h *Handler) uploadAckCompilation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := h.app.Compilations.UploadAck(r.Context(), vars["id"], vars["cid"])
	if err != nil && !stderrors.Is(err, compilations.ErrNotifyFailed) {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if err != nil {
		// The uploaded flag is already committed; failed notification
		// dispatch is reported but does not fail the acknowledgment.
		h.log.WithContext(r.Context()).WithError(err).Warn("compilation ack notification failed")
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
