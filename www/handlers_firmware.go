package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sensorhub/firmware"
	"sensorhub/store"
)

// 32 MB in-memory cap for multipart firmware uploads.
const maxUploadMemory = 32 << 20

func (h *Handlers) apiListFirmware(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := urlID(r, "sensorID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	filter := r.URL.Query().Get("show")
	files, err := h.engine.Firmware().List(sensorID, filter)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if files == nil {
		files = []*store.FirmwareFile{}
	}
	jsonOK(w, files)
}

func (h *Handlers) apiUploadFirmware(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := urlID(r, "sensorID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("firmware")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "firmware file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "read upload failed")
		return
	}

	version := r.FormValue("version")
	environment := r.FormValue("environment")

	f, err := h.engine.Firmware().Upload(sensorID, version, environment, data, h.currentUser(r))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonCreated(w, f)
}

// apiDownloadFirmware streams the stored binary. This is also the URL
// published to devices on an OTA trigger, so it stays unauthenticated.
func (h *Handlers) apiDownloadFirmware(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid firmware id")
		return
	}
	data, version, err := h.engine.Firmware().Download(id)
	if err != nil {
		if errors.Is(err, firmware.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "firmware not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "firmware_"+version+".bin"))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// apiPatchFirmware drives soft-delete and restore via {"undelete": bool}.
func (h *Handlers) apiPatchFirmware(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid firmware id")
		return
	}
	var req struct {
		Undelete *bool `json:"undelete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Undelete == nil {
		jsonError(w, http.StatusBadRequest, "undelete flag is required")
		return
	}
	if err := h.engine.Firmware().SetDeletionState(id, *req.Undelete, h.currentUser(r)); err != nil {
		if errors.Is(err, firmware.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "firmware not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "ok"})
}

// apiDeleteFirmware is the environment-conditioned delete: production
// rows are soft-deleted, development rows removed outright.
func (h *Handlers) apiDeleteFirmware(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid firmware id")
		return
	}
	if err := h.engine.Firmware().SetDeletionState(id, false, h.currentUser(r)); err != nil {
		if errors.Is(err, firmware.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "firmware not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "deleted"})
}

func (h *Handlers) apiTriggerOTA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SensorID   int64 `json:"sensor_id"`
		FirmwareID int64 `json:"firmware_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SensorID <= 0 || req.FirmwareID <= 0 {
		jsonError(w, http.StatusBadRequest, "sensor_id and firmware_id are required")
		return
	}
	dispatchID, err := h.engine.OTA().Trigger(req.SensorID, req.FirmwareID, h.currentUser(r))
	if err != nil {
		if errors.Is(err, firmware.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "firmware not found")
			return
		}
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "triggered", "dispatch_id": dispatchID})
}
