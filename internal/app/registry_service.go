package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/config"
	"github.com/dokzlo13/lightcycle/internal/eventbus"
	"github.com/dokzlo13/lightcycle/internal/items"
)

// changeNotifier is implemented by registries that report item state changes.
type changeNotifier interface {
	OnChange(fn items.ChangeFunc)
}

// RegistryService owns the item registry and forwards state changes to the bus.
type RegistryService struct {
	cfg *config.Config

	// Registry is what the controller talks to (rate limited when configured).
	Registry items.Registry

	mqtt *items.MQTT
}

// NewRegistryService builds the configured registry. Nothing connects until Start.
func NewRegistryService(cfg *config.Config, bus *eventbus.Bus) (*RegistryService, error) {
	s := &RegistryService{cfg: cfg}

	var base items.Registry
	switch cfg.Registry.Kind {
	case "memory":
		base = items.NewMemory(cfg.Registry.Memory.Initial)
	case "mqtt":
		m, err := items.NewMQTT(cfg.Registry.MQTT.Options())
		if err != nil {
			return nil, err
		}
		s.mqtt = m
		base = m
	case "rest":
		client := &http.Client{Timeout: cfg.Registry.REST.Timeout.Duration()}
		base = items.NewREST(cfg.Registry.REST.URL, cfg.Registry.REST.Token, client)
	default:
		return nil, fmt.Errorf("unknown registry kind %q", cfg.Registry.Kind)
	}

	if n, ok := base.(changeNotifier); ok {
		n.OnChange(func(name, previous, state string) {
			bus.Publish(eventbus.ItemChanged(name, previous, state))
		})
	}

	s.Registry = base
	if rps := cfg.Registry.RateLimitRPS; rps > 0 {
		s.Registry = items.NewLimited(base, rps)
	}

	log.Info().
		Str("kind", cfg.Registry.Kind).
		Float64("rate_limit_rps", cfg.Registry.RateLimitRPS).
		Msg("Item registry configured")

	return s, nil
}

// Start connects to the broker when the registry is MQTT-backed.
func (s *RegistryService) Start(ctx context.Context) error {
	if s.mqtt == nil {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.Registry.MQTT.ConnectTimeout.Duration())
	defer cancel()
	return s.mqtt.Connect(connectCtx)
}

// Connected reports registry connectivity. Only MQTT can be disconnected.
func (s *RegistryService) Connected() bool {
	if s.mqtt == nil {
		return true
	}
	return s.mqtt.IsConnected()
}

// Close disconnects from the broker.
func (s *RegistryService) Close() {
	if s.mqtt != nil {
		s.mqtt.Close()
	}
}
