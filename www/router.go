// Package www is the operator-facing HTTP API: sensor and field CRUD,
// measurement queries, firmware lifecycle, OTA trigger, and live state.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"sensorhub/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
}

func NewRouter(eng *engine.Engine) http.Handler {
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
	}
	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	// Read routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Get("/sensors", h.apiListSensors)
		r.Get("/sensors/state", h.apiSensorStates)
		r.Get("/sensors/{id}", h.apiGetSensor)
		r.Get("/sensors/{id}/fields", h.apiListFields)
		r.Get("/sensors/{id}/measurements", h.apiListMeasurements)
		r.Get("/sensors/{id}/latest", h.apiLatestMeasurement)
		r.Get("/sensors/{id}/state", h.apiSensorState)
		r.Get("/firmware/sensor/{sensorID}", h.apiListFirmware)
		r.Get("/firmware/{id}", h.apiDownloadFirmware)
		r.Get("/audit", h.apiAuditLog)
	})

	// Mutating routes require a session
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/sensors", h.apiCreateSensor)
		r.Patch("/api/sensors/{id}", h.apiUpdateSensor)
		r.Delete("/api/sensors/{id}", h.apiDeleteSensor)
		r.Post("/api/sensors/{id}/fields", h.apiCreateField)
		r.Patch("/api/sensors/{id}/fields/{fieldID}", h.apiUpdateField)
		r.Delete("/api/sensors/{id}/fields/{fieldID}", h.apiDeleteField)
		r.Post("/api/firmware/sensor/{sensorID}", h.apiUploadFirmware)
		r.Patch("/api/firmware/{id}", h.apiPatchFirmware)
		r.Delete("/api/firmware/{id}", h.apiDeleteFirmware)
		r.Post("/api/firmware/ota", h.apiTriggerOTA)
		r.Get("/api/config", h.apiGetConfig)
		r.Post("/api/config", h.apiSaveConfig)
	})

	return r
}
