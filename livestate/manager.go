package livestate

import (
	"context"
	"log"
	"time"

	"sensorhub/store"
)

// Manager maintains the Redis snapshot as ingestion and discovery
// report activity. SQL remains the source of truth: every read path
// falls back to it, and a dead Redis only costs the fast path.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// UpdateReadings merges freshly stored measurements into the sensor's
// cached snapshot. Implements the ingestion live sink.
func (m *Manager) UpdateReadings(sensorID int64, values map[string]float64, at time.Time) {
	ctx := context.Background()
	state, err := m.redis.GetState(ctx, sensorID)
	if err != nil {
		log.Printf("livestate: read state for sensor %d: %v", sensorID, err)
		return
	}
	if state == nil {
		state, err = m.stateFromSQL(sensorID)
		if err != nil {
			log.Printf("livestate: build state for sensor %d: %v", sensorID, err)
			return
		}
	}

	state.Status = store.StatusActive
	state.LastSeen = &at
	for name, value := range values {
		state.Readings[name] = Reading{Value: value, At: at}
	}
	if err := m.redis.SetState(ctx, state); err != nil {
		log.Printf("livestate: write state for sensor %d: %v", sensorID, err)
	}
}

// MarkSeen refreshes liveness after a device announcement. Discovery
// has just written the row, so the snapshot is rebuilt from SQL to
// pick up fresh ip/firmware values.
func (m *Manager) MarkSeen(sensorID int64, at time.Time) {
	state, err := m.stateFromSQL(sensorID)
	if err != nil {
		log.Printf("livestate: build state for sensor %d: %v", sensorID, err)
		return
	}
	state.LastSeen = &at
	if err := m.redis.SetState(context.Background(), state); err != nil {
		log.Printf("livestate: write state for sensor %d: %v", sensorID, err)
	}
}

// GetSensorState reads from Redis, falling back to SQL.
func (m *Manager) GetSensorState(sensorID int64) (*SensorState, error) {
	state, err := m.redis.GetState(context.Background(), sensorID)
	if err == nil && state != nil {
		return state, nil
	}
	return m.stateFromSQL(sensorID)
}

// GetAllSensorStates returns a snapshot for every known sensor,
// preferring Redis per sensor.
func (m *Manager) GetAllSensorStates() ([]*SensorState, error) {
	sensors, err := m.db.ListSensors()
	if err != nil {
		return nil, err
	}
	states := make([]*SensorState, 0, len(sensors))
	for _, s := range sensors {
		state, err := m.GetSensorState(s.ID)
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// RemoveSensor drops the cached snapshot after a sensor is deleted.
func (m *Manager) RemoveSensor(sensorID int64) {
	if err := m.redis.RemoveSensor(context.Background(), sensorID); err != nil {
		log.Printf("livestate: remove sensor %d: %v", sensorID, err)
	}
}

// SyncRedisFromSQL rebuilds the whole cache from SQL. Called on
// startup so stale snapshots from a previous run don't linger.
func (m *Manager) SyncRedisFromSQL() error {
	ctx := context.Background()
	if err := m.redis.FlushAll(ctx); err != nil {
		return err
	}

	sensors, err := m.db.ListSensors()
	if err != nil {
		return err
	}
	for _, s := range sensors {
		state, err := m.stateFromSQL(s.ID)
		if err != nil {
			log.Printf("livestate: sync sensor %d: %v", s.ID, err)
			continue
		}
		if err := m.redis.SetState(ctx, state); err != nil {
			log.Printf("livestate: sync sensor %d to redis: %v", s.ID, err)
		}
	}
	log.Printf("livestate: synced %d sensors to redis", len(sensors))
	return nil
}

// stateFromSQL builds a snapshot from the sensor row and the latest
// measurement per field.
func (m *Manager) stateFromSQL(sensorID int64) (*SensorState, error) {
	sensor, err := m.db.GetSensor(sensorID)
	if err != nil {
		return nil, err
	}
	state := &SensorState{
		SensorID:        sensor.ID,
		Name:            sensor.Name,
		Status:          sensor.Status,
		LastSeen:        sensor.LastSeen,
		IPAddress:       sensor.IPAddress,
		FirmwareVersion: sensor.FirmwareVersion,
		Readings:        make(map[string]Reading),
	}

	fields, err := m.db.ListSensorFields(sensorID)
	if err != nil {
		return state, nil
	}
	for _, f := range fields {
		latest, err := m.db.LatestFieldMeasurement(sensorID, f.ID)
		if err != nil {
			continue
		}
		state.Readings[f.FieldName] = Reading{Value: latest.Value, At: latest.RecordedAt}
	}
	return state, nil
}
