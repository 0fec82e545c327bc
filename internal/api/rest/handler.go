// Package rest implements the HTTP command surface (§6): list/get/
// install/start/stop/uninstall apps, scan servers, open/close tunnels,
// list URLs, and analytics. Grounded on the teacher's gorilla/mux
// handler-per-route style and its respondJSON/respondError helpers.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/orchestrator"
)

// Handler owns the orchestrator reference every route dispatches into.
type Handler struct {
	orch *orchestrator.Orchestrator
}

func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// SetupRoutes registers every command-surface route on router.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/apps", h.ListApps).Methods("GET")
	router.HandleFunc("/apps/{appId}", h.GetApp).Methods("GET")
	router.HandleFunc("/apps/{appId}/install", h.InstallApp).Methods("POST")
	router.HandleFunc("/apps/{appId}/install", h.CancelInstall).Methods("DELETE")
	router.HandleFunc("/apps/{appId}/start", h.StartApp).Methods("POST")
	router.HandleFunc("/apps/{appId}/stop", h.StopApp).Methods("POST")
	router.HandleFunc("/apps/{appId}/restart", h.RestartApp).Methods("POST")
	router.HandleFunc("/apps/{appId}", h.UninstallApp).Methods("DELETE")

	router.HandleFunc("/servers", h.ScanServers).Methods("GET")

	router.HandleFunc("/apps/{appId}/tunnel", h.OpenTunnel).Methods("POST")
	router.HandleFunc("/tunnels/{tunnelId}", h.CloseTunnel).Methods("DELETE")

	router.HandleFunc("/urls", h.ListURLs).Methods("GET")
	router.HandleFunc("/urls/analytics", h.Analytics).Methods("GET")

	router.HandleFunc("/catalog", h.ListCatalog).Methods("GET")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// httpStatusFor maps the closed error-kind taxonomy to an HTTP status,
// per §7's error-handling design.
func httpStatusFor(err error) int {
	kind, ok := errors.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case errors.KindConfiguration, errors.KindSchemaParse:
		return http.StatusBadRequest
	case errors.KindPlatformUnsupported:
		return http.StatusNotImplemented
	case errors.KindFilesystemPermission:
		return http.StatusForbidden
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	case errors.KindNetworkTransient, errors.KindNetworkPermanent:
		return http.StatusBadGateway
	case errors.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.Store.List())
}

func (h *Handler) GetApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	rec, ok := h.orch.Store.Get(appID)
	if !ok {
		respondError(w, http.StatusNotFound, "app not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type installRequest struct {
	SourceURL string `json:"source_url,omitempty"`
}

func (h *Handler) InstallApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	var req installRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.orch.InstallApp(r.Context(), appID, req.SourceURL); err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "installed"})
}

// CancelInstall always responds 501 Not Implemented. The Installer has
// no per-install cancellation, so this handler stops no installer
// subprocess and leaves an in-flight install running.
func (h *Handler) CancelInstall(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotImplemented, "install cancellation is not yet supported")
}

func (h *Handler) StartApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	handle, err := h.orch.StartApp(r.Context(), appID)
	if err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, handle)
}

func (h *Handler) StopApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	h.orch.StopApp(appID, false)
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) RestartApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	h.orch.StopApp(appID, false)
	handle, err := h.orch.StartApp(r.Context(), appID)
	if err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, handle)
}

func (h *Handler) UninstallApp(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	h.orch.StopApp(appID, true)
	if err := h.orch.Store.Delete(appID); err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "uninstalled"})
}

func (h *Handler) ScanServers(w http.ResponseWriter, r *http.Request) {
	servers := h.orch.ServerScan.Scan(r.Context(), nil)
	respondJSON(w, http.StatusOK, servers)
}

type tunnelRequest struct {
	Provider string `json:"provider,omitempty"`
}

func (h *Handler) OpenTunnel(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	var req tunnelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Provider == "" {
		req.Provider = h.orch.Config.Tunnel.DefaultProvider
	}

	record, err := h.orch.OpenTunnelForApp(r.Context(), appID, req.Provider)
	if err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (h *Handler) CloseTunnel(w http.ResponseWriter, r *http.Request) {
	tunnelID := mux.Vars(r)["tunnelId"]
	h.orch.CloseTunnel(r.Context(), tunnelID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) ListURLs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.URLs.ListActive())
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.URLs.Analytics())
}

func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.Catalog.List())
}
