// Package fleet owns the set of known vehicles: it diffs periodic account
// listings, drives the per-facet refresh schedules and routes inbound MQTT
// commands to the right vehicle.
package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/logger"
	"github.com/vocbridge/voc2mqtt/core/vehicle"
)

// CommandSubscriber keeps the broker's command-topic subscriptions aligned
// with the current account membership.
type CommandSubscriber interface {
	// ResetSubscriptions replaces the complete command subscription set with
	// the topics of the given vehicle ids (remove-then-add).
	ResetSubscriptions(vehicleIDs []string) error
}

// Config holds the refresh schedule. Zero intervals disable the respective
// ticker.
type Config struct {
	// CarStatus forces a status refresh from the vehicle itself.
	CarStatus time.Duration
	// CloudStatus re-reads the cloud's cached status snapshot.
	CloudStatus time.Duration
	// ChargeLocations re-reads the saved charging spots.
	ChargeLocations time.Duration
	// Position re-reads the vehicle position (position-capable vehicles only).
	Position time.Duration
	// Fleet re-lists the vehicles on the account.
	Fleet time.Duration
}

// Coordinator owns the fleet map and its refresh schedules.
type Coordinator struct {
	client  cloud.Client
	invoker vehicle.Invoker
	subs    CommandSubscriber
	cfg     Config
	log     logger.Logger

	// onAdded is invoked for every newly constructed vehicle before its
	// initial fetches, so the bridge can attach to its event bus first.
	onAdded func(*vehicle.Refresher)

	newRefresher func(id string) *vehicle.Refresher

	mu       sync.Mutex
	vehicles map[string]*vehicle.Refresher
}

// New creates a Coordinator. onAdded may be nil.
func New(client cloud.Client, invoker vehicle.Invoker, subs CommandSubscriber, cfg Config, log logger.Logger, onAdded func(*vehicle.Refresher)) *Coordinator {
	c := &Coordinator{
		client:   client,
		invoker:  invoker,
		subs:     subs,
		cfg:      cfg,
		log:      log,
		onAdded:  onAdded,
		vehicles: make(map[string]*vehicle.Refresher),
	}
	c.newRefresher = func(id string) *vehicle.Refresher {
		return vehicle.New(id, client, invoker, log, nil)
	}
	return c
}

// WithRefresherFactory overrides vehicle construction, used by the service
// wiring to attach metrics and per-vehicle loggers.
func (c *Coordinator) WithRefresherFactory(f func(id string) *vehicle.Refresher) *Coordinator {
	c.newRefresher = f
	return c
}

// Vehicles returns the currently known refreshers, ordered by id.
func (c *Coordinator) Vehicles() []*vehicle.Refresher {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*vehicle.Refresher, 0, len(c.vehicles))
	for _, r := range c.vehicles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Vehicle returns the refresher for the given id, or nil.
func (c *Coordinator) Vehicle(id string) *vehicle.Refresher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vehicles[id]
}

// RefreshFleet lists the account's vehicles and reconciles the fleet map:
// vehicles gone from the listing are torn down, new ones are constructed and
// given their initial fetches, surviving ones are left untouched. The
// command subscription set is republished after every diff.
func (c *Coordinator) RefreshFleet(ctx context.Context) error {
	ids, err := c.client.ListVehicles(ctx)
	if err != nil {
		c.log.Errorf("list vehicles: %v", err)
		return err
	}
	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}

	var added []*vehicle.Refresher
	c.mu.Lock()
	for id, r := range c.vehicles {
		if !listed[id] {
			c.log.Infof("vehicle %s removed from account", id)
			r.Close()
			delete(c.vehicles, id)
		}
	}
	for _, id := range ids {
		if _, known := c.vehicles[id]; known {
			continue
		}
		c.log.Infof("vehicle %s added to account", id)
		r := c.newRefresher(id)
		c.vehicles[id] = r
		added = append(added, r)
	}
	current := make([]string, 0, len(c.vehicles))
	for id := range c.vehicles {
		current = append(current, id)
	}
	c.mu.Unlock()
	sort.Strings(current)

	for _, r := range added {
		if c.onAdded != nil {
			c.onAdded(r)
		}
		// Initial fetches: attributes cascade into charge locations,
		// position and distances; status completes discovery readiness.
		if err := r.RefreshAttributes(ctx); err == nil {
			_ = r.RefreshStatusFromCloud(ctx)
		}
	}

	if err := c.subs.ResetSubscriptions(current); err != nil {
		c.log.Errorf("reset command subscriptions: %v", err)
	}
	return nil
}

// Run drives the refresh schedules until the context is canceled. Each tick
// applies its refresh to every currently known vehicle; vehicles run
// concurrently so one slow invocation never stalls the rest of the fleet.
func (c *Coordinator) Run(ctx context.Context) error {
	carStatus := newTicker(c.cfg.CarStatus)
	cloudStatus := newTicker(c.cfg.CloudStatus)
	chargeLocations := newTicker(c.cfg.ChargeLocations)
	position := newTicker(c.cfg.Position)
	fleet := newTicker(c.cfg.Fleet)
	defer carStatus.Stop()
	defer cloudStatus.Stop()
	defer chargeLocations.Stop()
	defer position.Stop()
	defer fleet.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fleet.C:
			_ = c.RefreshFleet(ctx)
		case <-carStatus.C:
			c.forEach(ctx, func(ctx context.Context, r *vehicle.Refresher) {
				_ = r.RefreshStatusFromCar(ctx)
			})
		case <-cloudStatus.C:
			c.forEach(ctx, func(ctx context.Context, r *vehicle.Refresher) {
				_ = r.RefreshStatusFromCloud(ctx)
			})
		case <-chargeLocations.C:
			c.forEach(ctx, func(ctx context.Context, r *vehicle.Refresher) {
				_ = r.RefreshChargeLocations(ctx)
			})
		case <-position.C:
			c.forEach(ctx, func(ctx context.Context, r *vehicle.Refresher) {
				_ = r.RefreshPosition(ctx)
			})
		}
	}
}

func (c *Coordinator) forEach(ctx context.Context, op func(context.Context, *vehicle.Refresher)) {
	for _, r := range c.Vehicles() {
		go op(ctx, r)
	}
}

// newTicker returns a ticker that never fires for non-positive intervals.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}
