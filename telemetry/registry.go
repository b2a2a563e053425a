package telemetry

import (
	"log"
	"sync"

	"sensorhub/messaging"
)

// Broker is the slice of the MQTT client the registry needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler messaging.MessageHandler) error
	Unsubscribe(topic string) error
}

const queueDepth = 256

type inbound struct {
	topic   string
	payload []byte
}

type topicWorker struct {
	mu     sync.Mutex
	closed bool
	queue  chan inbound
	done   chan struct{}
}

// enqueue is safe against a worker that has already been stopped; the
// broker can deliver a few messages after Unsubscribe returns.
func (w *topicWorker) enqueue(msg inbound) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- msg:
		return true
	default:
		return false
	}
}

func (w *topicWorker) stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

// Registry tracks which sensor topics are subscribed and pushes each
// topic's messages through a single worker goroutine, so readings for
// one sensor are always processed in arrival order.
type Registry struct {
	mu     sync.Mutex
	broker Broker
	qos    byte
	sink   messaging.MessageHandler
	subs   map[string]*topicWorker
}

// NewRegistry creates a registry that delivers inbound messages to
// sink, one at a time per topic.
func NewRegistry(broker Broker, qos byte, sink messaging.MessageHandler) *Registry {
	return &Registry{
		broker: broker,
		qos:    qos,
		sink:   sink,
		subs:   make(map[string]*topicWorker),
	}
}

// EnsureSubscribed subscribes to topic if it isn't already. Calling it
// again for a subscribed topic is a no-op, so callers don't need to
// track subscription state themselves.
func (r *Registry) EnsureSubscribed(topic string) error {
	if topic == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeLocked(topic)
}

func (r *Registry) subscribeLocked(topic string) error {
	if _, ok := r.subs[topic]; ok {
		return nil
	}

	w := &topicWorker{
		queue: make(chan inbound, queueDepth),
		done:  make(chan struct{}),
	}
	go func() {
		for msg := range w.queue {
			r.sink(msg.topic, msg.payload)
		}
		close(w.done)
	}()

	err := r.broker.Subscribe(topic, r.qos, func(t string, payload []byte) {
		if !w.enqueue(inbound{topic: t, payload: payload}) {
			log.Printf("telemetry: dropping message on %s", t)
		}
	})
	if err != nil {
		w.stop()
		return err
	}
	r.subs[topic] = w
	return nil
}

// Release unsubscribes from topic and stops its worker. Messages still
// queued are drained before the worker exits.
func (r *Registry) Release(topic string) error {
	if topic == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(topic)
}

func (r *Registry) releaseLocked(topic string) error {
	w, ok := r.subs[topic]
	if !ok {
		return nil
	}
	delete(r.subs, topic)
	err := r.broker.Unsubscribe(topic)
	w.stop()
	return err
}

// Rebind atomically moves a subscription from oldTopic to newTopic,
// used when an operator edits a sensor's topic. Either side may be
// empty: "" old means plain subscribe, "" new means plain release.
func (r *Registry) Rebind(oldTopic, newTopic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldTopic == newTopic {
		return nil
	}
	if oldTopic != "" {
		if err := r.releaseLocked(oldTopic); err != nil {
			log.Printf("telemetry: release %s during rebind: %v", oldTopic, err)
		}
	}
	if newTopic == "" {
		return nil
	}
	return r.subscribeLocked(newTopic)
}

// Subscribed reports whether topic currently has an active subscription.
func (r *Registry) Subscribed(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[topic]
	return ok
}

// Topics returns the currently subscribed topic set.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for t := range r.subs {
		out = append(out, t)
	}
	return out
}

// Close releases every subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.subs {
		if err := r.releaseLocked(topic); err != nil {
			log.Printf("telemetry: release %s on close: %v", topic, err)
		}
	}
}
