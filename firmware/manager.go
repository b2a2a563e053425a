// Package firmware governs the firmware binary lifecycle: upload,
// soft-delete with restore for production builds, outright removal for
// development builds, and the OTA update trigger.
package firmware

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"sensorhub/store"
)

var ErrNotFound = errors.New("firmware not found")

// Manager owns the firmware lifecycle state machine. Production rows
// soft-delete (deleted_at set, data retained, restorable); development
// rows are removed outright and cannot come back.
type Manager struct {
	db *store.DB
}

func NewManager(db *store.DB) *Manager {
	return &Manager{db: db}
}

// Upload stores a firmware binary for a sensor. Version and binary are
// required; environment defaults to development when unspecified.
func (m *Manager) Upload(sensorID int64, version, environment string, data []byte, actor string) (*store.FirmwareFile, error) {
	if version == "" {
		return nil, fmt.Errorf("version is required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("firmware binary is required")
	}
	switch environment {
	case "":
		environment = store.EnvDevelopment
	case store.EnvProduction, store.EnvDevelopment:
	default:
		return nil, fmt.Errorf("unknown environment: %s", environment)
	}
	if _, err := m.db.GetSensor(sensorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sensor %d not found", sensorID)
		}
		return nil, err
	}

	f := &store.FirmwareFile{SensorID: sensorID, Version: version, Environment: environment}
	if err := m.db.CreateFirmwareFile(f, data); err != nil {
		return nil, err
	}
	m.audit(f.ID, "uploaded", fmt.Sprintf("version %s (%s), %d bytes", version, environment, len(data)), actor)
	log.Printf("firmware: uploaded version %s (%s) for sensor %d, id %d", version, environment, sensorID, f.ID)
	return f, nil
}

// SetDeletionState drives the delete/restore transitions. restore=true
// clears deleted_at regardless of current state; restore=false
// soft-deletes production rows and removes development rows outright.
func (m *Manager) SetDeletionState(id int64, restore bool, actor string) error {
	f, err := m.db.GetFirmwareFile(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if restore {
		if err := m.db.RestoreFirmware(id); err != nil {
			return err
		}
		m.audit(id, "restored", fmt.Sprintf("version %s", f.Version), actor)
		return nil
	}

	if f.Environment == store.EnvProduction {
		if err := m.db.SoftDeleteFirmware(id); err != nil {
			return err
		}
		m.audit(id, "soft_deleted", fmt.Sprintf("version %s", f.Version), actor)
		return nil
	}

	// Development builds have no grace window.
	if err := m.db.DeleteFirmwareFile(id); err != nil {
		return err
	}
	m.audit(id, "deleted", fmt.Sprintf("version %s (development)", f.Version), actor)
	return nil
}

// HardDelete removes a row unconditionally, regardless of environment
// or soft-delete state.
func (m *Manager) HardDelete(id int64, actor string) error {
	f, err := m.db.GetFirmwareFile(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := m.db.DeleteFirmwareFile(id); err != nil {
		return err
	}
	m.audit(id, "hard_deleted", fmt.Sprintf("version %s", f.Version), actor)
	return nil
}

// List returns a sensor's firmware rows, newest upload first.
// filter is one of "all", "active", "deleted"; empty means all.
func (m *Manager) List(sensorID int64, filter string) ([]*store.FirmwareFile, error) {
	return m.db.ListFirmwareFiles(sensorID, filter)
}

// Get returns a single firmware row's metadata.
func (m *Manager) Get(id int64) (*store.FirmwareFile, error) {
	f, err := m.db.GetFirmwareFile(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// Download returns the stored binary and its version string. A
// hard-deleted row is simply gone.
func (m *Manager) Download(id int64) ([]byte, string, error) {
	data, version, err := m.db.GetFirmwareBinary(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	return data, version, err
}

func (m *Manager) audit(id int64, action, detail, actor string) {
	if err := m.db.AppendAudit("firmware", id, action, detail, actor); err != nil {
		log.Printf("firmware: audit %s on %d: %v", action, id, err)
	}
}
