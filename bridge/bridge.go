// Package bridge connects the vehicle state kept by the fleet coordinator to
// the MQTT broker: facet snapshots go out as retained topics, Home Assistant
// discovery configs register the entities, and inbound command topics are
// routed back to the coordinator.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vocbridge/voc2mqtt/core/fleet"
	"github.com/vocbridge/voc2mqtt/core/logger"
	"github.com/vocbridge/voc2mqtt/core/vehicle"
)

// Publisher is the broker surface the bridge needs. infra/mqtt implements it
// with Paho; tests use a recording mock.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
}

// CommandHandler routes an inbound command topic. Implemented by
// fleet.Coordinator.
type CommandHandler interface {
	HandleCommand(ctx context.Context, topic string, payload []byte) error
}

// FleetView exposes the currently known vehicles for full republication.
type FleetView interface {
	Vehicles() []*vehicle.Refresher
}

// Config holds the bridge's topic layout.
type Config struct {
	// Namespace prefixes every vehicle topic, e.g. "voc".
	Namespace string
	// DiscoveryEnabled toggles Home Assistant discovery publication.
	DiscoveryEnabled bool
	// DiscoveryPrefix is Home Assistant's discovery topic root.
	DiscoveryPrefix string
	// StatusTopic is Home Assistant's availability topic; any message on it
	// triggers full re-discovery and republication.
	StatusTopic string
}

// Bridge publishes vehicle state and discovery configs and feeds commands
// back into the fleet.
type Bridge struct {
	pub     Publisher
	cfg     Config
	log     logger.Logger
	handler CommandHandler
	fleet   FleetView

	mu         sync.Mutex
	discovered map[string]bool // DiscoveryRegistry: vehicle ids already announced
	commands   []string        // currently subscribed command topics
}

// New creates a Bridge. The command handler and fleet view are attached
// afterwards to break the construction cycle with the coordinator.
func New(pub Publisher, cfg Config, log logger.Logger) *Bridge {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	return &Bridge{
		pub:        pub,
		cfg:        cfg,
		log:        log,
		discovered: make(map[string]bool),
	}
}

// SetHandler attaches the command router.
func (b *Bridge) SetHandler(h CommandHandler) { b.handler = h }

// SetFleet attaches the fleet view used for full republication.
func (b *Bridge) SetFleet(f FleetView) { b.fleet = f }

// Start subscribes to the Home Assistant status topic. Any payload on it
// signals a Home Assistant restart: the discovery registry is cleared and
// everything is published again.
func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.StatusTopic == "" {
		return nil
	}
	return b.pub.Subscribe(b.cfg.StatusTopic, func(_ string, _ []byte) {
		b.log.Infof("home assistant restart signalled, republishing")
		b.OnHomeAssistantRestart(ctx)
	})
}

// OnVehicleAdded attaches the bridge to a new vehicle's event bus. It runs
// until the vehicle's bus is closed by the fleet diff.
func (b *Bridge) OnVehicleAdded(r *vehicle.Refresher) {
	events := r.Events().Subscribe()
	go func() {
		for ev := range events {
			b.publishFacet(r, ev.Facet)
			b.maybePublishDiscovery(r)
		}
	}()
}

// OnHomeAssistantRestart clears the discovery registry and republishes
// discovery configs and every cached facet for every vehicle. Retained
// configs are overwritten idempotently on the broker side.
func (b *Bridge) OnHomeAssistantRestart(_ context.Context) {
	b.mu.Lock()
	b.discovered = make(map[string]bool)
	b.mu.Unlock()
	if b.fleet == nil {
		return
	}
	for _, r := range b.fleet.Vehicles() {
		b.maybePublishDiscovery(r)
		for _, facet := range []vehicle.Facet{
			vehicle.FacetAttributes,
			vehicle.FacetStatus,
			vehicle.FacetPosition,
			vehicle.FacetChargeLocations,
			vehicle.FacetDistances,
		} {
			b.publishFacet(r, facet)
		}
	}
}

// ResetSubscriptions implements fleet.CommandSubscriber: the complete
// command subscription set is replaced so it always matches the account
// membership.
func (b *Bridge) ResetSubscriptions(vehicleIDs []string) error {
	b.mu.Lock()
	previous := b.commands
	b.commands = nil
	b.mu.Unlock()

	if len(previous) > 0 {
		if err := b.pub.Unsubscribe(previous...); err != nil {
			b.log.Errorf("unsubscribe command topics: %v", err)
		}
	}

	var topics []string
	for _, id := range vehicleIDs {
		for _, cmd := range fleet.CommandTopics {
			topics = append(topics, b.cfg.Namespace+"/"+id+"/"+cmd)
		}
	}
	// Record each topic as it succeeds so a mid-loop failure still leaves
	// the partial set tracked for the next reset to unsubscribe.
	var subscribed []string
	for _, topic := range topics {
		if err := b.pub.Subscribe(topic, b.onCommand); err != nil {
			b.mu.Lock()
			b.commands = subscribed
			b.mu.Unlock()
			return err
		}
		subscribed = append(subscribed, topic)
	}
	b.mu.Lock()
	b.commands = subscribed
	b.mu.Unlock()
	return nil
}

func (b *Bridge) onCommand(topic string, payload []byte) {
	if b.handler == nil {
		return
	}
	if err := b.handler.HandleCommand(context.Background(), topic, payload); err != nil {
		b.log.Warnf("command %s dropped: %v", topic, err)
	}
}

func (b *Bridge) publishFacet(r *vehicle.Refresher, facet vehicle.Facet) {
	base := b.cfg.Namespace + "/" + r.ID()
	switch facet {
	case vehicle.FacetAttributes:
		b.publishJSON(base+"/attributes", r.Attributes())
	case vehicle.FacetStatus:
		b.publishJSON(base+"/status", r.Status())
	case vehicle.FacetPosition:
		b.publishJSON(base+"/position", r.Position())
	case vehicle.FacetDistances:
		b.publishJSON(base+"/distances", r.Distances())
	case vehicle.FacetChargeLocations:
		for id, loc := range r.ChargeLocations() {
			payload := loc.Raw
			if payload == nil {
				payload = map[string]any{"name": loc.Name, "position": loc.Position}
			}
			b.publishJSON(base+"/charge_locations/"+id, payload)
		}
	}
}

func (b *Bridge) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Errorf("marshal %s: %v", topic, err)
		return
	}
	if err := b.pub.Publish(topic, payload, true); err != nil {
		b.log.Errorf("publish %s: %v", topic, err)
	}
}

func (b *Bridge) maybePublishDiscovery(r *vehicle.Refresher) {
	if !b.cfg.DiscoveryEnabled || !r.Ready() {
		return
	}
	b.mu.Lock()
	if b.discovered[r.ID()] {
		b.mu.Unlock()
		return
	}
	b.discovered[r.ID()] = true
	b.mu.Unlock()

	for _, entity := range b.discoveryEntities(r) {
		topic := b.cfg.DiscoveryPrefix + "/" + entity.component + "/" + entity.objectID + "/config"
		b.publishJSON(topic, entity.config)
	}
	b.log.Infof("published discovery for %s", r.ID())
}
