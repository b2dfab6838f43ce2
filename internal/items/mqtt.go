package items

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the MQTT registry. Topic patterns contain one %s for the item name.
type MQTTConfig struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	StateTopic   string // default "openhab/out/%s/state"
	CommandTopic string // default "openhab/in/%s/command"
	QoS          byte
}

// ErrInvalidTopic is returned for a topic pattern without exactly one %s placeholder.
var ErrInvalidTopic = errors.New("topic pattern must contain exactly one %s")

// ValidateTopicPattern checks that pattern has a single %s and no other verbs.
func ValidateTopicPattern(pattern string) error {
	if strings.Count(pattern, "%s") != 1 || strings.Count(pattern, "%") != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	return nil
}

// Validate checks the topic patterns after defaults are applied.
func (c MQTTConfig) Validate() error {
	c.setDefaults()
	if err := ValidateTopicPattern(c.StateTopic); err != nil {
		return fmt.Errorf("state topic: %w", err)
	}
	if err := ValidateTopicPattern(c.CommandTopic); err != nil {
		return fmt.Errorf("command topic: %w", err)
	}
	return nil
}

func (c *MQTTConfig) setDefaults() {
	if c.StateTopic == "" {
		c.StateTopic = "openhab/out/%s/state"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "openhab/in/%s/command"
	}
	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("lightcycle-%d", time.Now().Unix())
	}
}

// MQTT is a registry backed by an MQTT event bus. States are learned from (retained) state
// topics; commands are published to command topics.
type MQTT struct {
	cfg    MQTTConfig
	client pahomqtt.Client

	mu       sync.RWMutex
	states   map[string]string
	onChange ChangeFunc

	statePrefix, stateSuffix string
}

// NewMQTT creates an MQTT registry. Call Connect before use.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	r := &MQTT{
		cfg:    cfg,
		states: make(map[string]string),
	}
	r.statePrefix, r.stateSuffix, _ = strings.Cut(cfg.StateTopic, "%s")

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		// Resubscribe after reconnects; clean sessions drop subscriptions.
		if err := r.subscribe(); err != nil {
			log.Error().Err(err).Msg("Failed to subscribe to item states")
		}
	}
	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	r.client = pahomqtt.NewClient(opts)
	return r, nil
}

// OnChange sets the hook fired after a state change.
func (r *MQTT) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Connect connects to the broker.
func (r *MQTT) Connect(ctx context.Context) error {
	log.Info().Str("broker", r.cfg.Broker).Msg("Connecting to MQTT broker")

	token := r.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// IsConnected reports whether the client is connected.
func (r *MQTT) IsConnected() bool {
	return r.client.IsConnected()
}

// Close disconnects from the broker.
func (r *MQTT) Close() {
	r.client.Disconnect(250)
}

func (r *MQTT) stateWildcard() string {
	return fmt.Sprintf(r.cfg.StateTopic, "+")
}

func (r *MQTT) commandTopic(name string) string {
	return fmt.Sprintf(r.cfg.CommandTopic, name)
}

func (r *MQTT) subscribe() error {
	topic := r.stateWildcard()
	token := r.client.Subscribe(topic, r.cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		name, ok := r.itemFromTopic(msg.Topic())
		if !ok {
			return
		}
		r.update(name, string(msg.Payload()))
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	log.Debug().Str("topic", topic).Msg("Subscribed to item states")
	return nil
}

func (r *MQTT) itemFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, r.statePrefix) || !strings.HasSuffix(topic, r.stateSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(topic, r.statePrefix), r.stateSuffix)
	return name, name != ""
}

// State returns the last state seen for the item.
func (r *MQTT) State(_ context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	return state, nil
}

// SendCommand publishes value to the item's command topic.
func (r *MQTT) SendCommand(ctx context.Context, name, value string) error {
	topic := r.commandTopic(name)
	token := r.client.Publish(topic, r.cfg.QoS, false, []byte(value))

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Debug().Str("item", name).Str("value", value).Msg("Sent item command")

	// The echoed state may lag; assume the command took effect.
	r.update(name, value)
	return nil
}

// SendCommandIfDifferent sends value unless the item already has it.
func (r *MQTT) SendCommandIfDifferent(ctx context.Context, name, value string) (bool, error) {
	return sendIfDifferent(ctx, r, name, value)
}

func (r *MQTT) update(name, state string) {
	r.mu.Lock()
	prev, existed := r.states[name]
	r.states[name] = state
	hook := r.onChange
	r.mu.Unlock()

	if hook != nil && (!existed || prev != state) {
		hook(name, prev, state)
	}
}
