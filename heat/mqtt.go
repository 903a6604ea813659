package heat

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler is called for every point batch received from a source.
// points is nil and err set when the payload could not be decoded.
type MessageHandler func(sourceID string, points []WeightedPoint, err error)

// MQTTClient manages the broker connection and one subscription per source
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	isConnected    bool
	mu             sync.RWMutex
}

// brokerSetting resolves a setting, preferring the environment over config
func brokerSetting(envKey, configured, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	return fallback
}

// InitMQTT connects to the configured broker and subscribes to every source
// topic. MQTT_BROKER overrides config.MQTT.Broker; with neither set MQTT is
// disabled and InitMQTT returns nil, nil.
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	var configured MQTTConfig
	if config != nil {
		configured = config.MQTT
	}

	broker := brokerSetting("MQTT_BROKER", configured.Broker, "")
	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Sources) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no sources configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(brokerSetting("MQTT_CLIENT_ID", configured.ClientID, "heatmesh"))

	if username := brokerSetting("MQTT_USERNAME", configured.Username, ""); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(brokerSetting("MQTT_PASSWORD", configured.Password, ""))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep subscriptions across reconnects
	opts.SetOrderMatters(true)  // batches from one source must arrive in order

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] reconnecting...")
	})

	client.client = mqtt.NewClient(opts)
	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to all source topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	for _, source := range c.config.Sources {
		if source.Topic == "" {
			continue
		}

		token := client.Subscribe(source.Topic, 0, c.createMessageHandler(source.ID))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] error subscribing to %s: %v", source.Topic, token.Error())
		} else {
			log.Printf("[MQTT] subscribed to %s for source %s", source.Topic, source.ID)
		}
	}
}

// onConnectionLost is called when the connection drops; auto-reconnect retries
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// createMessageHandler creates the subscription callback for one source
func (c *MQTTClient) createMessageHandler(sourceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("[MQTT] received %d bytes for %s on %s", len(payload), sourceID, msg.Topic())

		points, err := DecodePointData(payload)
		if err != nil {
			log.Printf("[MQTT] error decoding points for %s: %v", sourceID, err)
		}
		if c.messageHandler != nil {
			c.messageHandler(sourceID, points, err)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetSourceByTopic returns the source ID subscribed to a topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	for _, source := range c.config.Sources {
		if source.Topic == topic {
			return source.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wires an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
