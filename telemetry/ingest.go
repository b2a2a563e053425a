package telemetry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"sensorhub/store"
)

// LiveSink receives the latest readings for a sensor after they are
// persisted, for the fast-path state cache.
type LiveSink interface {
	UpdateReadings(sensorID int64, values map[string]float64, at time.Time)
}

// ExportSink receives persisted measurements destined for the
// downstream export stream.
type ExportSink interface {
	EnqueueMeasurement(sensorID int64, field string, value float64, at time.Time)
}

// Ingestor decodes telemetry payloads and persists them. A payload is
// a flat JSON object mapping field names to scalar values; only fields
// registered for the sensor are stored.
type Ingestor struct {
	db     *store.DB
	live   LiveSink   // optional
	export ExportSink // optional
}

func NewIngestor(db *store.DB, live LiveSink, export ExportSink) *Ingestor {
	return &Ingestor{db: db, live: live, export: export}
}

// HandleMessage is the registry sink: one call per message, serialized
// per topic. Malformed payloads and unknown topics are logged and
// dropped rather than propagated, since there is no one to return the
// error to.
func (in *Ingestor) HandleMessage(topic string, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("telemetry: malformed payload on %s: %v", topic, err)
		return
	}

	sensor, err := in.db.GetSensorByTopic(topic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("telemetry: message on %s has no sensor, ignoring", topic)
		} else {
			log.Printf("telemetry: lookup sensor for %s: %v", topic, err)
		}
		return
	}

	now := time.Now()
	stored := make(map[string]float64, len(raw))
	for name, v := range raw {
		value, ok := coerceScalar(v)
		if !ok {
			continue
		}
		field, err := in.db.GetFieldByName(sensor.ID, name)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				log.Printf("telemetry: lookup field %s/%s: %v", topic, name, err)
			}
			// Fields the operator hasn't registered are skipped.
			continue
		}
		if _, err := in.db.InsertMeasurement(sensor.ID, field.ID, value); err != nil {
			log.Printf("telemetry: insert %s/%s: %v", topic, name, err)
			continue
		}
		stored[name] = value
	}

	// The device spoke, even if nothing resolved to a stored reading.
	if err := in.db.TouchSensorSeen(sensor.ID); err != nil {
		log.Printf("telemetry: touch sensor %d: %v", sensor.ID, err)
	}

	if len(stored) == 0 {
		return
	}
	if in.live != nil {
		in.live.UpdateReadings(sensor.ID, stored, now)
	}
	if in.export != nil {
		for name, value := range stored {
			in.export.EnqueueMeasurement(sensor.ID, name, value, now)
		}
	}
}

// coerceScalar converts a decoded JSON value to a float64 reading.
// Booleans map to 1/0 and numeric strings are parsed; anything else
// (objects, arrays, null, non-numeric strings) is rejected.
func coerceScalar(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
