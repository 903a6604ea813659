package heat

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes reduced point sets and reduction stats to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *ReductionResult
	mu            sync.RWMutex
}

// reducedMessage is the payload of {prefix}/reduced
type reducedMessage struct {
	Points    []WeightedPoint `json:"points"`
	Timestamp int64           `json:"timestamp"`
}

// NewPublisher creates a publisher. A nil client disables publishing.
// MQTT_PUBLISH_PREFIX overrides prefix; both empty fall back to "heatmesh".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "heatmesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current set
	}
}

// PublishReduced publishes the point set to {prefix}/reduced and the
// result to {prefix}/stats
func (p *Publisher) PublishReduced(points []WeightedPoint, result ReductionResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if points == nil {
		points = []WeightedPoint{}
	}

	if err := p.publishJSON("reduced", reducedMessage{Points: points, Timestamp: time.Now().Unix()}); err != nil {
		log.Printf("[MQTT] error publishing reduced set: %v", err)
		return err
	}
	if err := p.publishJSON("stats", result); err != nil {
		log.Printf("[MQTT] error publishing stats: %v", err)
		return err
	}

	p.mu.Lock()
	p.last = &result
	p.mu.Unlock()

	log.Printf("[MQTT] published %d points (%s from %d)", len(points), result.Strategy, result.InputCount)
	return nil
}

func (p *Publisher) publishJSON(suffix string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastPublished returns the result of the last successful publish
func (p *Publisher) LastPublished() (ReductionResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return ReductionResult{}, false
	}
	return *p.last, true
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
