package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
)

type Sensor struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	SensorType           string     `json:"sensor_type"`
	MicrocontrollerType  string     `json:"microcontroller_type"`
	Manufacturer         string     `json:"manufacturer"`
	MQTTTopic            string     `json:"mqtt_topic"`
	Status               string     `json:"status"`
	LastSeen             *time.Time `json:"last_seen"`
	CalibrationDate      string     `json:"calibration_date"`
	InstallDate          string     `json:"install_date"`
	MeasurementFrequency string     `json:"measurement_frequency"`
	FirmwareVersion      string     `json:"firmware_version"`
	MACAddress           string     `json:"mac_address"`
	IPAddress            string     `json:"ip_address"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Empty topic and MAC are stored as NULL so the UNIQUE constraints only
// bind real values; COALESCE folds them back to '' on the way out.
const sensorSelectCols = `id, name, sensor_type, microcontroller_type, manufacturer,
	COALESCE(mqtt_topic,''), status, last_seen, calibration_date, install_date,
	measurement_frequency, firmware_version, COALESCE(mac_address,''), ip_address,
	created_at, updated_at`

func scanSensor(row interface{ Scan(...any) error }) (*Sensor, error) {
	var s Sensor
	var lastSeen, createdAt, updatedAt any
	err := row.Scan(&s.ID, &s.Name, &s.SensorType, &s.MicrocontrollerType, &s.Manufacturer,
		&s.MQTTTopic, &s.Status, &lastSeen, &s.CalibrationDate, &s.InstallDate,
		&s.MeasurementFrequency, &s.FirmwareVersion, &s.MACAddress, &s.IPAddress,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.LastSeen = parseTimePtr(lastSeen)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func scanSensors(rows *sql.Rows) ([]*Sensor, error) {
	var sensors []*Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}

func (db *DB) CreateSensor(s *Sensor) error {
	if s.Status == "" {
		s.Status = StatusPending
	}
	id, err := db.insertID(`INSERT INTO sensors
		(name, sensor_type, microcontroller_type, manufacturer, mqtt_topic, status,
		 last_seen, calibration_date, install_date, measurement_frequency, firmware_version,
		 mac_address, ip_address)
		VALUES (?, ?, ?, ?, NULLIF(?,''), ?, ?, ?, ?, ?, ?, NULLIF(?,''), ?)`,
		s.Name, s.SensorType, s.MicrocontrollerType, s.Manufacturer, s.MQTTTopic, s.Status,
		s.LastSeen, s.CalibrationDate, s.InstallDate, s.MeasurementFrequency, s.FirmwareVersion,
		s.MACAddress, s.IPAddress)
	if err != nil {
		return fmt.Errorf("create sensor: %w", err)
	}
	s.ID = id
	return nil
}

// UpdateSensor writes the operator-owned columns. Discovery-owned columns
// (mac, ip, firmware, last_seen) have their own update paths.
func (db *DB) UpdateSensor(s *Sensor) error {
	_, err := db.Exec(db.Q(`UPDATE sensors SET name=?, sensor_type=?, microcontroller_type=?,
		manufacturer=?, mqtt_topic=NULLIF(?,''), status=?, calibration_date=?, install_date=?,
		measurement_frequency=?, updated_at=datetime('now','localtime') WHERE id=?`),
		s.Name, s.SensorType, s.MicrocontrollerType, s.Manufacturer, s.MQTTTopic, s.Status,
		s.CalibrationDate, s.InstallDate, s.MeasurementFrequency, s.ID)
	if err != nil {
		return fmt.Errorf("update sensor: %w", err)
	}
	return nil
}

// TouchSensorSeen marks a sensor alive: last_seen advances and status becomes ACTIVE.
func (db *DB) TouchSensorSeen(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE sensors SET last_seen=datetime('now','localtime'),
		status=?, updated_at=datetime('now','localtime') WHERE id=?`),
		StatusActive, id)
	return err
}

// UpdateSensorDeviceInfo applies a device announcement to an existing sensor.
// Operator-set fields are untouched.
func (db *DB) UpdateSensorDeviceInfo(mac, firmwareVersion, ipAddress string) error {
	_, err := db.Exec(db.Q(`UPDATE sensors SET firmware_version=?, ip_address=?,
		last_seen=datetime('now','localtime'), status=?, updated_at=datetime('now','localtime')
		WHERE mac_address=?`),
		firmwareVersion, ipAddress, StatusActive, mac)
	return err
}

func (db *DB) DeleteSensor(id int64) error {
	_, err := db.Exec(db.Q(`DELETE FROM sensors WHERE id=?`), id)
	return err
}

func (db *DB) GetSensor(id int64) (*Sensor, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensors WHERE id=?`, sensorSelectCols)), id)
	return scanSensor(row)
}

func (db *DB) GetSensorByTopic(topic string) (*Sensor, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensors WHERE mqtt_topic=?`, sensorSelectCols)), topic)
	return scanSensor(row)
}

func (db *DB) GetSensorByMAC(mac string) (*Sensor, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sensors WHERE mac_address=?`, sensorSelectCols)), mac)
	return scanSensor(row)
}

func (db *DB) ListSensors() ([]*Sensor, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM sensors ORDER BY created_at`, sensorSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSensors(rows)
}

// ListSubscribableSensors returns sensors with a telemetry topic assigned.
func (db *DB) ListSubscribableSensors() ([]*Sensor, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM sensors WHERE mqtt_topic IS NOT NULL ORDER BY id`, sensorSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSensors(rows)
}
