package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sensorhub/config"
)

// MessageHandler receives the raw payload of an inbound message along
// with the concrete topic it arrived on.
type MessageHandler func(topic string, payload []byte)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client wraps the MQTT connection. Subscriptions are tracked in a
// handlers map so a broker reconnect restores the full topic set.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MQTTConfig
	conn     mqtt.Client
	handlers map[string]subscription
}

func NewClient(cfg *config.MQTTConfig) *Client {
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]subscription),
	}
}

// Connect establishes the broker connection. The connection retries in
// the background until the broker is reachable.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client := mqtt.NewClient(c.clientOptions())
	c.conn = client

	// With connect retry enabled the token only completes on success,
	// so don't hold up startup on an unreachable broker; OnConnect
	// installs subscriptions once the connection lands.
	token := client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("messaging: connect: %v", err)
		}
	}()
	return nil
}

// clientOptions builds the paho options. Ordered dispatch is left at
// the default so back-to-back messages on one topic reach their handler
// in broker delivery order; handlers must not block.
func (c *Client) clientOptions() *mqtt.ClientOptions {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.Broker, c.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: connection lost: %v", err)
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	return opts
}

// onConnect re-issues every registered subscription. The broker drops
// subscriptions on a non-persistent session, so a reconnect without
// this would leave the client deaf.
func (c *Client) onConnect(conn mqtt.Client) {
	c.mu.RLock()
	handlers := make(map[string]subscription, len(c.handlers))
	for topic, sub := range c.handlers {
		handlers[topic] = sub
	}
	c.mu.RUnlock()

	for topic, sub := range handlers {
		if token := conn.Subscribe(topic, sub.qos, wrapHandler(sub.handler)); token.Wait() && token.Error() != nil {
			log.Printf("messaging: re-subscribe %s: %v", topic, token.Error())
		}
	}
	if len(handlers) > 0 {
		log.Printf("messaging: restored %d subscription(s) after connect", len(handlers))
	}
}

func wrapHandler(h MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// Publish sends a message to the given topic at the given QoS.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := conn.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

// Subscribe registers a handler for the topic filter and subscribes
// immediately if connected. The registration survives reconnects.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.handlers[topic] = subscription{qos: qos, handler: handler}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		// Registered; OnConnect installs it when the broker is up.
		return nil
	}
	token := conn.Subscribe(topic, qos, wrapHandler(handler))
	token.Wait()
	return token.Error()
}

// Unsubscribe removes the topic filter and drops its registration.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	token := conn.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Disconnect(1000)
		c.conn = nil
	}
}
