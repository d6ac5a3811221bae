// Package vehicle owns the cached state of a single vehicle and the refresh
// operations that keep it in sync with the cloud. Each facet refresh
// replaces the cached value wholesale and publishes a typed update event;
// a static derivation table triggers dependent refreshes (attributes feed
// charge locations and position, which feed the derived distances).
package vehicle

import (
	"context"
	"sort"
	"sync"

	"github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/logger"
	"github.com/vocbridge/voc2mqtt/core/metrics"
	"github.com/vocbridge/voc2mqtt/core/model"
	"github.com/vocbridge/voc2mqtt/internal/eventbus"
)

// Facet names one cached state facet of a vehicle.
type Facet string

const (
	FacetAttributes      Facet = "attributes"
	FacetStatus          Facet = "status"
	FacetChargeLocations Facet = "charge_locations"
	FacetPosition        Facet = "position"
	FacetDistances       Facet = "distances"
)

// Event notifies subscribers that one facet of a vehicle was replaced.
type Event struct {
	VehicleID string
	Facet     Facet
}

// Invoker executes a remote action and awaits its terminal outcome.
type Invoker interface {
	Invoke(ctx context.Context, vehicleID string, action cloud.Action, payload any) error
}

// Refresher owns the cached facets of one vehicle. All cached state is
// replaced wholesale by the corresponding refresh operation; concurrent
// refreshes converge on last-write-wins since every fetch is an idempotent
// snapshot.
type Refresher struct {
	id      string
	client  cloud.Client
	invoker Invoker
	bus     *eventbus.Bus[Event]
	log     logger.Logger
	sink    metrics.Sink

	mu              sync.Mutex
	attributes      model.Attributes
	caps            model.Capabilities
	status          model.Status
	chargeLocations map[string]model.ChargeLocation
	position        model.Position
	distances       []model.Distance

	// deps is the static derivation table: which refreshes a facet update
	// triggers. Declared once in New so the fan-out order is auditable.
	deps map[Facet][]func(context.Context)
}

// New creates a Refresher for the given vehicle id. A nil sink disables
// metrics.
func New(id string, client cloud.Client, invoker Invoker, log logger.Logger, sink metrics.Sink) *Refresher {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	r := &Refresher{
		id:      id,
		client:  client,
		invoker: invoker,
		bus:     eventbus.New[Event](),
		log:     log,
		sink:    sink,
	}
	r.deps = map[Facet][]func(context.Context){
		FacetAttributes: {
			func(ctx context.Context) { _ = r.RefreshChargeLocations(ctx) },
			func(ctx context.Context) { _ = r.RefreshPosition(ctx) },
		},
		FacetChargeLocations: {r.RecomputeDistances},
		FacetPosition:        {r.RecomputeDistances},
	}
	return r
}

// ID returns the vehicle identifier.
func (r *Refresher) ID() string { return r.id }

// Events returns the bus carrying this vehicle's facet update events.
func (r *Refresher) Events() *eventbus.Bus[Event] { return r.bus }

// Close tears down the vehicle's event subscriptions. Called when the fleet
// listing no longer contains the vehicle.
func (r *Refresher) Close() { r.bus.Close() }

// Capabilities returns the typed capability flags derived from the last
// attribute fetch. All false until attributes have been fetched.
func (r *Refresher) Capabilities() model.Capabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps
}

// Attributes returns the cached attribute document.
func (r *Refresher) Attributes() model.Attributes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attributes
}

// Status returns the cached telemetry snapshot.
func (r *Refresher) Status() model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Position returns the cached position.
func (r *Refresher) Position() model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// ChargeLocations returns the cached charge location map.
func (r *Refresher) ChargeLocations() map[string]model.ChargeLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.ChargeLocation, len(r.chargeLocations))
	for k, v := range r.chargeLocations {
		out[k] = v
	}
	return out
}

// Distances returns the derived distance list.
func (r *Refresher) Distances() []model.Distance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Distance, len(r.distances))
	copy(out, r.distances)
	return out
}

// Ready reports whether the vehicle has enough cached state for discovery
// publication: status and attributes, plus charge locations when charging
// is supported.
func (r *Refresher) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.status) == 0 || len(r.attributes) == 0 {
		return false
	}
	if r.caps.Charging && len(r.chargeLocations) == 0 {
		return false
	}
	return true
}

func (r *Refresher) publish(facet Facet) {
	r.bus.Publish(Event{VehicleID: r.id, Facet: facet})
}

func (r *Refresher) runDependents(ctx context.Context, facet Facet) {
	for _, dep := range r.deps[facet] {
		dep(ctx)
	}
}

// RefreshAttributes fetches the attribute document and recomputes the
// capability flags from it.
func (r *Refresher) RefreshAttributes(ctx context.Context) error {
	attrs, err := r.client.GetAttributes(ctx, r.id)
	if err != nil {
		r.sink.RecordRefresh(r.id, string(FacetAttributes), metrics.OutcomeError)
		r.log.Errorf("refresh attributes for %s: %v", r.id, err)
		return err
	}
	r.sink.RecordRefresh(r.id, string(FacetAttributes), metrics.OutcomeSuccess)
	caps := model.CapabilitiesFrom(attrs)
	r.mu.Lock()
	r.attributes = attrs
	r.caps = caps
	r.mu.Unlock()
	r.publish(FacetAttributes)
	r.runDependents(ctx, FacetAttributes)
	return nil
}

// RefreshStatusFromCloud fetches the cloud-known telemetry snapshot.
func (r *Refresher) RefreshStatusFromCloud(ctx context.Context) error {
	status, err := r.client.GetStatus(ctx, r.id)
	if err != nil {
		r.sink.RecordRefresh(r.id, string(FacetStatus), metrics.OutcomeError)
		r.log.Errorf("refresh status for %s: %v", r.id, err)
		return err
	}
	r.sink.RecordRefresh(r.id, string(FacetStatus), metrics.OutcomeSuccess)
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	r.publish(FacetStatus)
	return nil
}

// RefreshStatusFromCar asks the cloud to refresh its snapshot from the
// vehicle itself, then re-reads the cloud snapshot. When the request fails,
// the cached status stays untouched and no follow-up fetch occurs.
func (r *Refresher) RefreshStatusFromCar(ctx context.Context) error {
	if err := r.invoker.Invoke(ctx, r.id, cloud.Action{Name: cloud.ActionRefreshStatus}, nil); err != nil {
		r.log.Errorf("status refresh from car %s: %v", r.id, err)
		return err
	}
	return r.RefreshStatusFromCloud(ctx)
}

// RefreshChargeLocations fetches the account's saved charging spots for the
// vehicle. No-op unless charging is a supported capability.
func (r *Refresher) RefreshChargeLocations(ctx context.Context) error {
	if !r.Capabilities().Charging {
		return nil
	}
	docs, err := r.client.GetChargeLocations(ctx, r.id)
	if err != nil {
		r.sink.RecordRefresh(r.id, string(FacetChargeLocations), metrics.OutcomeError)
		r.log.Errorf("refresh charge locations for %s: %v", r.id, err)
		return err
	}
	r.sink.RecordRefresh(r.id, string(FacetChargeLocations), metrics.OutcomeSuccess)
	locations := make(map[string]model.ChargeLocation, len(docs))
	for _, doc := range docs {
		id := model.LocationID(doc.Resource)
		locations[id] = model.ChargeLocation{
			ID:       id,
			Name:     model.LocationDisplayName(doc.Name, doc.Position),
			Position: doc.Position,
			Raw:      doc.Raw,
		}
	}
	r.mu.Lock()
	r.chargeLocations = locations
	r.mu.Unlock()
	r.publish(FacetChargeLocations)
	r.runDependents(ctx, FacetChargeLocations)
	return nil
}

// RefreshPosition fetches the latest geocoordinate and heading. No-op unless
// position is a supported capability.
func (r *Refresher) RefreshPosition(ctx context.Context) error {
	if !r.Capabilities().Position {
		return nil
	}
	pos, err := r.client.GetPosition(ctx, r.id)
	if err != nil {
		r.sink.RecordRefresh(r.id, string(FacetPosition), metrics.OutcomeError)
		r.log.Errorf("refresh position for %s: %v", r.id, err)
		return err
	}
	r.sink.RecordRefresh(r.id, string(FacetPosition), metrics.OutcomeSuccess)
	r.mu.Lock()
	r.position = pos
	r.mu.Unlock()
	r.publish(FacetPosition)
	r.runDependents(ctx, FacetPosition)
	return nil
}

// RecomputeDistances derives the distance from the current position to each
// charge location. No-op unless a valid position and at least one charge
// location are cached; the list is always replaced as a whole.
func (r *Refresher) RecomputeDistances(_ context.Context) {
	r.mu.Lock()
	pos := r.position
	locations := r.chargeLocations
	r.mu.Unlock()
	if !pos.Valid() || len(locations) == 0 {
		return
	}
	distances := make([]model.Distance, 0, len(locations))
	for id, loc := range locations {
		distances = append(distances, model.Distance{
			ChargeLocationID: id,
			DistanceKm: model.DistanceKm(pos.Latitude, pos.Longitude,
				loc.Position.Latitude, loc.Position.Longitude),
		})
	}
	sort.Slice(distances, func(i, j int) bool {
		return distances[i].ChargeLocationID < distances[j].ChargeLocationID
	})
	r.mu.Lock()
	r.distances = distances
	r.mu.Unlock()
	r.publish(FacetDistances)
}
