package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Firmware list filters.
const (
	FirmwareFilterAll     = "all"
	FirmwareFilterActive  = "active"
	FirmwareFilterDeleted = "deleted"
)

// FirmwareFile is the metadata view of a stored firmware binary. The blob
// itself is only loaded by GetFirmwareBinary.
type FirmwareFile struct {
	ID            int64      `json:"id"`
	SensorID      int64      `json:"sensor_id"`
	Version       string     `json:"version"`
	Environment   string     `json:"environment"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	DeletedAt     *time.Time `json:"deleted_at"`
}

const firmwareSelectCols = `id, sensor_id, version, environment, uploaded_at, file_size_bytes, deleted_at`

func scanFirmware(row interface{ Scan(...any) error }) (*FirmwareFile, error) {
	var f FirmwareFile
	var uploadedAt, deletedAt any
	err := row.Scan(&f.ID, &f.SensorID, &f.Version, &f.Environment, &uploadedAt, &f.FileSizeBytes, &deletedAt)
	if err != nil {
		return nil, err
	}
	f.UploadedAt = parseTime(uploadedAt)
	f.DeletedAt = parseTimePtr(deletedAt)
	return &f, nil
}

func (db *DB) CreateFirmwareFile(f *FirmwareFile, data []byte) error {
	id, err := db.insertID(`INSERT INTO sensor_firmware_files
		(sensor_id, version, environment, file_size_bytes, data) VALUES (?, ?, ?, ?, ?)`,
		f.SensorID, f.Version, f.Environment, int64(len(data)), data)
	if err != nil {
		return fmt.Errorf("create firmware file: %w", err)
	}
	f.ID = id
	f.FileSizeBytes = int64(len(data))
	return nil
}

func (db *DB) GetFirmwareFile(id int64) (*FirmwareFile, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensor_firmware_files WHERE id=?`, firmwareSelectCols)), id)
	return scanFirmware(row)
}

// GetFirmwareBinary returns the stored blob and its version string.
func (db *DB) GetFirmwareBinary(id int64) ([]byte, string, error) {
	var data []byte
	var version string
	err := db.QueryRow(db.Q(`SELECT data, version FROM sensor_firmware_files WHERE id=?`), id).
		Scan(&data, &version)
	if err != nil {
		return nil, "", err
	}
	return data, version, nil
}

// ListFirmwareFiles returns a sensor's firmware rows, most recent upload
// first, filtered by soft-delete state.
func (db *DB) ListFirmwareFiles(sensorID int64, filter string) ([]*FirmwareFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM sensor_firmware_files WHERE sensor_id=?`, firmwareSelectCols)
	switch filter {
	case FirmwareFilterActive:
		query += ` AND deleted_at IS NULL`
	case FirmwareFilterDeleted:
		query += ` AND deleted_at IS NOT NULL`
	case FirmwareFilterAll, "":
	default:
		return nil, fmt.Errorf("unknown firmware filter: %s", filter)
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := db.Query(db.Q(query), sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*FirmwareFile
	for rows.Next() {
		f, err := scanFirmware(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (db *DB) SoftDeleteFirmware(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE sensor_firmware_files SET deleted_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (db *DB) RestoreFirmware(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE sensor_firmware_files SET deleted_at=NULL WHERE id=?`), id)
	return err
}

func (db *DB) DeleteFirmwareFile(id int64) error {
	_, err := db.Exec(db.Q(`DELETE FROM sensor_firmware_files WHERE id=?`), id)
	return err
}

// ListExpiredSoftDeleted returns soft-deleted rows whose deleted_at is
// before the cutoff. Only production rows can be soft-deleted, but the
// environment is returned for the reaper's audit trail.
func (db *DB) ListExpiredSoftDeleted(cutoff time.Time) ([]*FirmwareFile, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM sensor_firmware_files
		WHERE deleted_at IS NOT NULL AND deleted_at < ? ORDER BY id`, firmwareSelectCols)),
		cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*FirmwareFile
	for rows.Next() {
		f, err := scanFirmware(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FirmwareExists reports whether a row exists without loading the blob.
func (db *DB) FirmwareExists(id int64) (bool, error) {
	var one int
	err := db.QueryRow(db.Q(`SELECT 1 FROM sensor_firmware_files WHERE id=?`), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
