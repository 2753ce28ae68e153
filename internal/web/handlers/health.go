package handlers

import (
	"net/http"
)

// HealthInfo supplies the dynamic parts of the health response.
type HealthInfo struct {
	GalleryIdentities func() int
	DeviceBusy        func() bool
	Database          func() string
}

// HealthHandler reports service liveness.
type HealthHandler struct {
	info HealthInfo
}

func NewHealthHandler(info HealthInfo) *HealthHandler {
	return &HealthHandler{info: info}
}

// ServeHTTP handles GET /api/v1/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.info.GalleryIdentities != nil {
		resp["gallery_identities"] = h.info.GalleryIdentities()
	}
	if h.info.DeviceBusy != nil {
		resp["device_busy"] = h.info.DeviceBusy()
	}
	if h.info.Database != nil {
		if name := h.info.Database(); name != "" {
			resp["database"] = name
		} else {
			resp["database"] = "none"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
