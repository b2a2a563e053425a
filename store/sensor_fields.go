package store

import (
	"fmt"
	"time"
)

// SensorField declares a telemetry key a sensor is allowed to report.
type SensorField struct {
	ID        int64     `json:"id"`
	SensorID  int64     `json:"sensor_id"`
	FieldName string    `json:"field_name"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const fieldSelectCols = `id, sensor_id, field_name, unit, created_at, updated_at`

func scanField(row interface{ Scan(...any) error }) (*SensorField, error) {
	var f SensorField
	var createdAt, updatedAt any
	err := row.Scan(&f.ID, &f.SensorID, &f.FieldName, &f.Unit, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func (db *DB) CreateSensorField(f *SensorField) error {
	id, err := db.insertID(`INSERT INTO sensor_fields (sensor_id, field_name, unit) VALUES (?, ?, ?)`,
		f.SensorID, f.FieldName, f.Unit)
	if err != nil {
		return fmt.Errorf("create sensor field: %w", err)
	}
	f.ID = id
	return nil
}

func (db *DB) UpdateSensorField(f *SensorField) error {
	_, err := db.Exec(db.Q(`UPDATE sensor_fields SET field_name=?, unit=?, updated_at=datetime('now','localtime') WHERE id=?`),
		f.FieldName, f.Unit, f.ID)
	if err != nil {
		return fmt.Errorf("update sensor field: %w", err)
	}
	return nil
}

func (db *DB) DeleteSensorField(id int64) error {
	_, err := db.Exec(db.Q(`DELETE FROM sensor_fields WHERE id=?`), id)
	return err
}

func (db *DB) GetSensorField(id int64) (*SensorField, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensor_fields WHERE id=?`, fieldSelectCols)), id)
	return scanField(row)
}

func (db *DB) GetFieldByName(sensorID int64, fieldName string) (*SensorField, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensor_fields WHERE sensor_id=? AND field_name=?`, fieldSelectCols)),
		sensorID, fieldName)
	return scanField(row)
}

func (db *DB) ListSensorFields(sensorID int64) ([]*SensorField, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM sensor_fields WHERE sensor_id=? ORDER BY field_name`, fieldSelectCols)), sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fields []*SensorField
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
