// Package export streams stored measurements to a downstream Kafka
// topic through a durable outbox, so a broker outage never loses or
// blocks ingestion.
package export

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"sensorhub/config"
	"sensorhub/store"
)

// Record is the wire format of one exported measurement.
type Record struct {
	SensorID   int64     `json:"sensor_id"`
	Field      string    `json:"field"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Enqueuer writes measurement records to the outbox. Implements the
// ingestion export sink.
type Enqueuer struct {
	db    *store.DB
	topic string
}

func NewEnqueuer(db *store.DB, topic string) *Enqueuer {
	return &Enqueuer{db: db, topic: topic}
}

func (e *Enqueuer) EnqueueMeasurement(sensorID int64, field string, value float64, at time.Time) {
	payload, err := json.Marshal(Record{SensorID: sensorID, Field: field, Value: value, RecordedAt: at})
	if err != nil {
		log.Printf("export: marshal record: %v", err)
		return
	}
	if err := e.db.EnqueueExport(e.topic, payload); err != nil {
		log.Printf("export: enqueue: %v", err)
	}
}

// Drainer periodically pushes pending outbox rows to Kafka. A row that
// keeps failing is retried up to the configured budget, then left
// behind for inspection.
type Drainer struct {
	db       *store.DB
	writer   *kafka.Writer
	cfg      *config.ExportConfig
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewDrainer(db *store.DB, cfg *config.ExportConfig) *Drainer {
	return &Drainer{
		db: db,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (d *Drainer) Start() {
	go d.run()
}

func (d *Drainer) run() {
	defer close(d.doneChan)
	interval := d.cfg.DrainInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

func (d *Drainer) drain() {
	msgs, err := d.db.ListPendingExports(50, d.cfg.MaxRetries)
	if err != nil {
		log.Printf("export: list pending: %v", err)
		return
	}
	for _, msg := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := d.writer.WriteMessages(ctx, kafka.Message{Topic: msg.Topic, Value: msg.Payload})
		cancel()
		if err != nil {
			log.Printf("export: publish to %s failed: %v", msg.Topic, err)
			if err := d.db.IncrementExportRetries(msg.ID); err != nil {
				log.Printf("export: bump retries for %d: %v", msg.ID, err)
			}
			continue
		}
		if err := d.db.AckExport(msg.ID); err != nil {
			log.Printf("export: ack %d: %v", msg.ID, err)
		}
	}
}

func (d *Drainer) Stop() {
	close(d.stopChan)
	<-d.doneChan
	if err := d.writer.Close(); err != nil {
		log.Printf("export: close writer: %v", err)
	}
}
