package www

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"sensorhub/store"
)

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(h.engine.Uptime().Seconds()),
		"mqtt_connected": h.engine.MsgClient().IsConnected(),
	})
}

// --- Sensors ---

func (h *Handlers) apiListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.engine.DB().ListSensors()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sensors == nil {
		sensors = []*store.Sensor{}
	}
	jsonOK(w, sensors)
}

func (h *Handlers) apiGetSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	sensor, err := h.engine.DB().GetSensor(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "sensor not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, sensor)
}

func (h *Handlers) apiCreateSensor(w http.ResponseWriter, r *http.Request) {
	var s store.Sensor
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.Name == "" {
		jsonError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.engine.CreateSensor(&s); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonCreated(w, s)
}

// apiUpdateSensor patches operator-owned fields. Discovery-owned
// columns (mac/ip/firmware/last_seen) have no write path here.
func (h *Handlers) apiUpdateSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	sensor, err := h.engine.DB().GetSensor(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "sensor not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := json.NewDecoder(r.Body).Decode(sensor); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sensor.ID = id
	if err := h.engine.UpdateSensor(sensor); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updated, err := h.engine.DB().GetSensor(id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, updated)
}

func (h *Handlers) apiDeleteSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	if err := h.engine.DeleteSensor(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "sensor not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "deleted"})
}

// --- Fields ---

func (h *Handlers) apiListFields(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	fields, err := h.engine.DB().ListSensorFields(id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fields == nil {
		fields = []*store.SensorField{}
	}
	jsonOK(w, fields)
}

func (h *Handlers) apiCreateField(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	if _, err := h.engine.DB().GetSensor(id); err != nil {
		jsonError(w, http.StatusNotFound, "sensor not found")
		return
	}
	var f store.SensorField
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if f.FieldName == "" {
		jsonError(w, http.StatusBadRequest, "field_name is required")
		return
	}
	f.SensorID = id
	if err := h.engine.DB().CreateSensorField(&f); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonCreated(w, f)
}

func (h *Handlers) apiUpdateField(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := urlID(r, "fieldID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid field id")
		return
	}
	field, err := h.engine.DB().GetSensorField(fieldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "field not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := json.NewDecoder(r.Body).Decode(field); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	field.ID = fieldID
	if err := h.engine.DB().UpdateSensorField(field); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, field)
}

func (h *Handlers) apiDeleteField(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := urlID(r, "fieldID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid field id")
		return
	}
	if err := h.engine.DB().DeleteSensorField(fieldID); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]string{"status": "deleted"})
}

// --- Measurements ---

func (h *Handlers) apiListMeasurements(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}
	ms, err := h.engine.DB().ListMeasurements(id, limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ms == nil {
		ms = []*store.Measurement{}
	}
	jsonOK(w, ms)
}

func (h *Handlers) apiLatestMeasurement(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	m, err := h.engine.DB().LatestMeasurement(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "no measurements")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, m)
}

// --- Live state ---

func (h *Handlers) apiSensorStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.engine.Live().GetAllSensorStates()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, states)
}

func (h *Handlers) apiSensorState(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	state, err := h.engine.Live().GetSensorState(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, http.StatusNotFound, "sensor not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, state)
}

// --- Audit ---

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := h.engine.DB().ListAuditLog(limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	jsonOK(w, entries)
}
