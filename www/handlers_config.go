package www

import (
	"encoding/json"
	"net/http"
)

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	cfg.Lock()
	defer cfg.Unlock()
	jsonOK(w, cfg)
}

// apiSaveConfig persists edits to the config file. Most changes need a
// process restart to take effect; the response says so.
func (h *Handlers) apiSaveConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()

	// Decode into a copy so a malformed body cannot leave the running
	// config half-updated.
	draft := cfg.Snapshot()
	if err := json.NewDecoder(r.Body).Decode(draft); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.Replace(draft)

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "saved", "note": "restart required for most changes"})
}
