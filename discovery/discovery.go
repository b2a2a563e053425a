// Package discovery auto-registers devices that announce themselves on
// the device-info topic. Known devices (by MAC) get their runtime info
// refreshed; unknown ones are inserted as pending sensors for an
// operator to name and configure.
package discovery

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sensorhub/messaging"
	"sensorhub/store"
)

// Broker is the slice of the MQTT client discovery needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler messaging.MessageHandler) error
	Unsubscribe(topic string) error
}

// LiveSink mirrors a device's liveness into the fast-path state cache.
type LiveSink interface {
	MarkSeen(sensorID int64, at time.Time)
}

// deviceInfo is the announcement payload published by devices on
// "<prefix>/<mac>/info".
type deviceInfo struct {
	Firmware string `json:"firmware"`
	IP       string `json:"ip"`
}

const queueDepth = 64

// Service consumes device announcements through a single worker, so
// a burst of retained announcements cannot race each other into
// duplicate sensor rows.
type Service struct {
	db     *store.DB
	broker Broker
	live   LiveSink // optional
	filter string
	qos    byte

	mu      sync.Mutex
	queue   chan inbound
	done    chan struct{}
	started bool
}

type inbound struct {
	topic   string
	payload []byte
}

func New(db *store.DB, broker Broker, live LiveSink, filter string, qos byte) *Service {
	return &Service{
		db:     db,
		broker: broker,
		live:   live,
		filter: filter,
		qos:    qos,
	}
}

// Start subscribes to the discovery filter and begins processing
// announcements.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.queue = make(chan inbound, queueDepth)
	s.done = make(chan struct{})
	go s.run()

	err := s.broker.Subscribe(s.filter, s.qos, func(topic string, payload []byte) {
		select {
		case s.queue <- inbound{topic: topic, payload: payload}:
		default:
			log.Printf("discovery: queue full, dropping announcement on %s", topic)
		}
	})
	if err != nil {
		close(s.queue)
		<-s.done
		return fmt.Errorf("subscribe %s: %w", s.filter, err)
	}
	s.started = true
	log.Printf("discovery: subscribed to %s", s.filter)
	return nil
}

func (s *Service) run() {
	for msg := range s.queue {
		s.handle(msg.topic, msg.payload)
	}
	close(s.done)
}

func (s *Service) handle(topic string, payload []byte) {
	mac := messaging.DeviceInfoMAC(s.filter, topic)
	if mac == "" {
		return
	}

	var info deviceInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		log.Printf("discovery: bad announcement from %s: %v", mac, err)
		return
	}

	sensor, err := s.db.GetSensorByMAC(mac)
	switch {
	case err == nil:
		// Known device: refresh runtime info only. Operator-owned
		// fields like the name stay untouched.
		if err := s.db.UpdateSensorDeviceInfo(mac, info.Firmware, info.IP); err != nil {
			log.Printf("discovery: update device %s: %v", mac, err)
			return
		}
		log.Printf("discovery: updated device info for %s", mac)
		if s.live != nil {
			s.live.MarkSeen(sensor.ID, time.Now())
		}
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now()
		pending := &store.Sensor{
			Name:            fmt.Sprintf("Pending Sensor (%s)", mac),
			Status:          store.StatusPending,
			MACAddress:      mac,
			FirmwareVersion: info.Firmware,
			IPAddress:       info.IP,
			LastSeen:        &now,
		}
		if err := s.db.CreateSensor(pending); err != nil {
			log.Printf("discovery: register device %s: %v", mac, err)
			return
		}
		log.Printf("discovery: registered new pending sensor for %s", mac)
		if s.live != nil {
			s.live.MarkSeen(pending.ID, now)
		}
	default:
		log.Printf("discovery: lookup device %s: %v", mac, err)
	}
}

// Stop unsubscribes and drains the queue.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	if err := s.broker.Unsubscribe(s.filter); err != nil {
		log.Printf("discovery: unsubscribe %s: %v", s.filter, err)
	}
	close(s.queue)
	<-s.done
}
