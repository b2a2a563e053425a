// Package engine owns the long-lived service objects and coordinates
// sensor mutations against the broker subscription state, so the topic
// set always tracks the sensor table.
package engine

import (
	"log"
	"time"

	"sensorhub/config"
	"sensorhub/discovery"
	"sensorhub/export"
	"sensorhub/firmware"
	"sensorhub/livestate"
	"sensorhub/messaging"
	"sensorhub/store"
	"sensorhub/telemetry"
)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Live       *livestate.Manager
	MsgClient  *messaging.Client
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	live       *livestate.Manager
	msgClient  *messaging.Client

	registry  *telemetry.Registry
	ingestor  *telemetry.Ingestor
	discovery *discovery.Service
	firmware  *firmware.Manager
	ota       *firmware.Dispatcher
	reaper    *firmware.Reaper
	drainer   *export.Drainer
	stopChan  chan struct{}
	startedAt time.Time
}

func New(c Config) *Engine {
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		live:       c.Live,
		msgClient:  c.MsgClient,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() error {
	e.startedAt = time.Now()

	if e.live != nil {
		if err := e.live.SyncRedisFromSQL(); err != nil {
			log.Printf("engine: livestate sync: %v", err)
		}
	}

	var exportSink telemetry.ExportSink
	if e.cfg.Export.Enabled {
		exportSink = export.NewEnqueuer(e.db, e.cfg.Export.Topic)
		e.drainer = export.NewDrainer(e.db, &e.cfg.Export)
		e.drainer.Start()
	}

	var liveSink telemetry.LiveSink
	var discoveryLive discovery.LiveSink
	if e.live != nil {
		liveSink = e.live
		discoveryLive = e.live
	}

	e.ingestor = telemetry.NewIngestor(e.db, liveSink, exportSink)
	e.registry = telemetry.NewRegistry(e.msgClient, e.cfg.MQTT.QoS, e.ingestor.HandleMessage)

	// Every sensor with a topic gets its subscription back on startup.
	sensors, err := e.db.ListSubscribableSensors()
	if err != nil {
		return err
	}
	for _, s := range sensors {
		if err := e.registry.EnsureSubscribed(s.MQTTTopic); err != nil {
			log.Printf("engine: subscribe %s for sensor %d: %v", s.MQTTTopic, s.ID, err)
		}
	}
	log.Printf("engine: subscribed %d sensor topics", len(sensors))

	e.discovery = discovery.New(e.db, e.msgClient, discoveryLive, e.cfg.MQTT.DiscoveryTopic, e.cfg.MQTT.QoS)
	if err := e.discovery.Start(); err != nil {
		log.Printf("engine: discovery start: %v", err)
	}

	e.firmware = firmware.NewManager(e.db)
	e.ota = firmware.NewDispatcher(e.db, e.msgClient, e.cfg.Web.PublicURL, e.cfg.MQTT.OTATopicPrefix, e.cfg.MQTT.QoS)
	e.reaper = firmware.NewReaper(e.db, e.firmware, e.cfg.Firmware.RetentionDays, e.cfg.Firmware.SweepInterval)
	e.reaper.Start()

	log.Printf("engine: started")
	return nil
}

func (e *Engine) Stop() {
	if e.discovery != nil {
		e.discovery.Stop()
	}
	if e.registry != nil {
		e.registry.Close()
	}
	if e.reaper != nil {
		e.reaper.Stop()
	}
	if e.drainer != nil {
		e.drainer.Stop()
	}
	log.Printf("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                 { return e.db }
func (e *Engine) AppConfig() *config.Config     { return e.cfg }
func (e *Engine) ConfigPath() string            { return e.configPath }
func (e *Engine) Firmware() *firmware.Manager   { return e.firmware }
func (e *Engine) OTA() *firmware.Dispatcher     { return e.ota }
func (e *Engine) Live() *livestate.Manager      { return e.live }
func (e *Engine) Registry() *telemetry.Registry { return e.registry }
func (e *Engine) MsgClient() *messaging.Client  { return e.msgClient }
func (e *Engine) Uptime() time.Duration         { return time.Since(e.startedAt) }

// CreateSensor persists a sensor and installs its subscription when it
// carries a topic.
func (e *Engine) CreateSensor(s *store.Sensor) error {
	if err := e.db.CreateSensor(s); err != nil {
		return err
	}
	if err := e.registry.EnsureSubscribed(s.MQTTTopic); err != nil {
		log.Printf("engine: subscribe %s for new sensor %d: %v", s.MQTTTopic, s.ID, err)
	}
	return nil
}

// UpdateSensor persists operator edits. A topic change atomically
// retires the old subscription and installs the new one.
func (e *Engine) UpdateSensor(s *store.Sensor) error {
	old, err := e.db.GetSensor(s.ID)
	if err != nil {
		return err
	}
	if err := e.db.UpdateSensor(s); err != nil {
		return err
	}
	if err := e.registry.Rebind(old.MQTTTopic, s.MQTTTopic); err != nil {
		log.Printf("engine: rebind %s -> %s for sensor %d: %v", old.MQTTTopic, s.MQTTTopic, s.ID, err)
	}
	return nil
}

// DeleteSensor removes a sensor, its subscription, and its cached
// live state. Measurements and firmware go with it by FK cascade.
func (e *Engine) DeleteSensor(id int64) error {
	s, err := e.db.GetSensor(id)
	if err != nil {
		return err
	}
	if err := e.db.DeleteSensor(id); err != nil {
		return err
	}
	if err := e.registry.Release(s.MQTTTopic); err != nil {
		log.Printf("engine: release %s for sensor %d: %v", s.MQTTTopic, id, err)
	}
	if e.live != nil {
		e.live.RemoveSensor(id)
	}
	return nil
}
