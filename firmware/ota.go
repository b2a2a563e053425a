package firmware

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"sensorhub/messaging"
	"sensorhub/store"
)

// Publisher is the slice of the MQTT client the dispatcher needs.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Dispatcher publishes OTA update instructions to devices. The payload
// is the plain download URL; the device fetches the binary itself.
// Fire-and-forget: a publish failure is returned to the caller but the
// dispatcher never retries or tracks device-side application.
type Dispatcher struct {
	db        *store.DB
	pub       Publisher
	publicURL string
	prefix    string
	qos       byte
}

func NewDispatcher(db *store.DB, pub Publisher, publicURL, topicPrefix string, qos byte) *Dispatcher {
	return &Dispatcher{db: db, pub: pub, publicURL: publicURL, prefix: topicPrefix, qos: qos}
}

// Trigger publishes the firmware download URL to the sensor's OTA
// topic. Fails when the sensor is unknown, has no recorded device
// address, or the firmware row does not exist. Returns a dispatch id
// for the audit trail.
func (d *Dispatcher) Trigger(sensorID, firmwareID int64, actor string) (string, error) {
	sensor, err := d.db.GetSensor(sensorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("sensor %d not found", sensorID)
		}
		return "", err
	}
	if sensor.MACAddress == "" {
		return "", fmt.Errorf("sensor %d has no device address", sensorID)
	}

	exists, err := d.db.FirmwareExists(firmwareID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	dispatchID := uuid.NewString()
	topic := messaging.OTATopic(d.prefix, sensor.MACAddress)
	url := fmt.Sprintf("%s/api/firmware/%d", d.publicURL, firmwareID)

	if err := d.pub.Publish(topic, d.qos, []byte(url)); err != nil {
		return "", fmt.Errorf("publish ota to %s: %w", topic, err)
	}

	detail := fmt.Sprintf("dispatch %s: sensor %d (%s) <- firmware %d", dispatchID, sensorID, sensor.MACAddress, firmwareID)
	if err := d.db.AppendAudit("firmware", firmwareID, "ota_triggered", detail, actor); err != nil {
		log.Printf("firmware: audit ota dispatch: %v", err)
	}
	log.Printf("firmware: ota triggered for sensor %d (%s), firmware %d, dispatch %s",
		sensorID, sensor.MACAddress, firmwareID, dispatchID)
	return dispatchID, nil
}
