package vehicle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/model"
	"github.com/vocbridge/voc2mqtt/infra/logger"
)

// fakeCloud counts facet fetches and serves canned payloads.
type fakeCloud struct {
	attributes model.Attributes
	status     model.Status
	locations  []cloud.ChargeLocationDoc
	position   model.Position

	attributeCalls int
	statusCalls    int
	locationCalls  int
	positionCalls  int
}

func (f *fakeCloud) Login(context.Context) error                 { return nil }
func (f *fakeCloud) ListVehicles(context.Context) ([]string, error) { return nil, nil }

func (f *fakeCloud) GetAttributes(context.Context, string) (model.Attributes, error) {
	f.attributeCalls++
	return f.attributes, nil
}

func (f *fakeCloud) GetStatus(context.Context, string) (model.Status, error) {
	f.statusCalls++
	return f.status, nil
}

func (f *fakeCloud) GetChargeLocations(context.Context, string) ([]cloud.ChargeLocationDoc, error) {
	f.locationCalls++
	return f.locations, nil
}

func (f *fakeCloud) GetPosition(context.Context, string) (model.Position, error) {
	f.positionCalls++
	return f.position, nil
}

func (f *fakeCloud) SubmitAction(context.Context, string, cloud.Action, any) (cloud.SubmitResult, error) {
	return cloud.SubmitResult{Terminal: true, Status: cloud.StatusSuccessful}, nil
}

func (f *fakeCloud) PollInvocation(context.Context, string, string) (cloud.PollResult, error) {
	return cloud.PollResult{Status: cloud.StatusSuccessful}, nil
}

// fakeInvoker records invoked actions and fails those listed in failures.
type fakeInvoker struct {
	invoked  []cloud.Action
	payloads []any
	failures map[string]error
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, action cloud.Action, payload any) error {
	if err, ok := f.failures[action.Name]; ok {
		return err
	}
	f.invoked = append(f.invoked, action)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeInvoker) actionNames() []string {
	names := make([]string, len(f.invoked))
	for i, a := range f.invoked {
		names[i] = a.Name
	}
	return names
}

func newTestRefresher(fc *fakeCloud, fi *fakeInvoker) *Refresher {
	return New("V1", fc, fi, logger.NopLogger{}, nil)
}

func chargingAttributes() model.Attributes {
	return model.Attributes{"highVoltageBatterySupported": true, "carLocatorSupported": true}
}

func TestRefreshChargeLocationsGatedOnCapability(t *testing.T) {
	fc := &fakeCloud{locations: []cloud.ChargeLocationDoc{{Resource: "loc/1"}}}
	r := newTestRefresher(fc, &fakeInvoker{})

	require.NoError(t, r.RefreshChargeLocations(context.Background()))
	assert.Zero(t, fc.locationCalls, "no cloud call without charging capability")
	assert.Empty(t, r.ChargeLocations())
}

func TestRefreshPositionGatedOnCapability(t *testing.T) {
	fc := &fakeCloud{position: model.Position{Latitude: 57.7, Longitude: 11.9}}
	r := newTestRefresher(fc, &fakeInvoker{})

	require.NoError(t, r.RefreshPosition(context.Background()))
	assert.Zero(t, fc.positionCalls, "no cloud call without position capability")
	assert.False(t, r.Position().Valid())
}

func TestRefreshAttributesCascades(t *testing.T) {
	fc := &fakeCloud{
		attributes: chargingAttributes(),
		locations: []cloud.ChargeLocationDoc{
			{
				Name:     "Home",
				Resource: "https://host/chargeLocations/1234",
				Position: model.GeoPosition{Latitude: 57.7, Longitude: 11.9, StreetAddress: "Main St"},
			},
		},
		position: model.Position{Latitude: 57.71, Longitude: 11.91},
	}
	r := newTestRefresher(fc, &fakeInvoker{})

	require.NoError(t, r.RefreshAttributes(context.Background()))

	assert.Equal(t, 1, fc.locationCalls, "attribute update must trigger the charge location fetch")
	assert.Equal(t, 1, fc.positionCalls, "attribute update must trigger the position fetch")

	locations := r.ChargeLocations()
	require.Contains(t, locations, "1234")
	assert.Equal(t, "Home, Main St", locations["1234"].Name)

	distances := r.Distances()
	require.Len(t, distances, 1, "one distance entry per charge location")
	assert.Equal(t, "1234", distances[0].ChargeLocationID)
	assert.InDelta(t, 1.25, distances[0].DistanceKm, 1.0)
}

func TestRefreshCapabilitiesReplacedWholesale(t *testing.T) {
	fc := &fakeCloud{attributes: chargingAttributes()}
	r := newTestRefresher(fc, &fakeInvoker{})
	require.NoError(t, r.RefreshAttributes(context.Background()))
	assert.True(t, r.Capabilities().Charging)

	// The next fetch drops the flag entirely: no merging with prior values.
	fc.attributes = model.Attributes{"modelYear": 2021}
	require.NoError(t, r.RefreshAttributes(context.Background()))
	assert.False(t, r.Capabilities().Charging)
}

func TestRefreshStatusIdempotent(t *testing.T) {
	fc := &fakeCloud{status: model.Status{"odometer": 42000.0}}
	r := newTestRefresher(fc, &fakeInvoker{})

	require.NoError(t, r.RefreshStatusFromCloud(context.Background()))
	first := r.Status()
	require.NoError(t, r.RefreshStatusFromCloud(context.Background()))
	assert.Equal(t, first, r.Status(), "same cloud response must yield the same cached status")
	assert.Equal(t, 2, fc.statusCalls)
}

func TestUnnamedLocationDisplayName(t *testing.T) {
	fc := &fakeCloud{
		attributes: chargingAttributes(),
		locations: []cloud.ChargeLocationDoc{
			{
				Resource: "https://host/chargeLocations/77",
				Position: model.GeoPosition{StreetAddress: "Main St", PostalCode: "12345", City: "Town"},
			},
		},
	}
	r := newTestRefresher(fc, &fakeInvoker{})
	require.NoError(t, r.RefreshAttributes(context.Background()))
	assert.Equal(t, "Main St, 12345 Town", r.ChargeLocations()["77"].Name)
}

func TestRecomputeDistancesRequiresBothInputs(t *testing.T) {
	fc := &fakeCloud{
		attributes: model.Attributes{"carLocatorSupported": true},
		position:   model.Position{Latitude: 57.7, Longitude: 11.9},
	}
	r := newTestRefresher(fc, &fakeInvoker{})
	require.NoError(t, r.RefreshAttributes(context.Background()))
	assert.Empty(t, r.Distances(), "no distances without charge locations")
}

func TestHeaterFallsBackToPreclimatization(t *testing.T) {
	fc := &fakeCloud{attributes: model.Attributes{"preclimatizationSupported": true}}
	fi := &fakeInvoker{}
	r := newTestRefresher(fc, fi)
	require.NoError(t, r.RefreshAttributes(context.Background()))

	require.NoError(t, r.StartHeater(context.Background()))
	require.NotEmpty(t, fi.invoked)
	assert.Equal(t, cloud.ActionStartPreclimatization, fi.invoked[0].Name)
}

func TestHeaterPrefersRemoteHeater(t *testing.T) {
	fc := &fakeCloud{attributes: model.Attributes{
		"remoteHeaterSupported":     true,
		"preclimatizationSupported": true,
	}}
	fi := &fakeInvoker{}
	r := newTestRefresher(fc, fi)
	require.NoError(t, r.RefreshAttributes(context.Background()))

	require.NoError(t, r.StopHeater(context.Background()))
	require.NotEmpty(t, fi.invoked)
	assert.Equal(t, cloud.ActionStopHeater, fi.invoked[0].Name)
}

func TestHeaterDroppedWithoutCapability(t *testing.T) {
	fi := &fakeInvoker{}
	r := newTestRefresher(&fakeCloud{}, fi)
	require.NoError(t, r.StartHeater(context.Background()))
	assert.Empty(t, fi.invoked, "unsupported heater command must be dropped silently")
}

func TestEngineStartGatedOnCapability(t *testing.T) {
	fi := &fakeInvoker{}
	r := newTestRefresher(&fakeCloud{}, fi)
	require.NoError(t, r.StartEngine(context.Background()))
	require.NoError(t, r.StopEngine(context.Background()))
	assert.Empty(t, fi.invoked, "unsupported engine commands must be dropped silently")
}

func TestEngineStartCarriesRuntime(t *testing.T) {
	fc := &fakeCloud{attributes: model.Attributes{"engineStartSupported": true}}
	fi := &fakeInvoker{}
	r := newTestRefresher(fc, fi)
	require.NoError(t, r.RefreshAttributes(context.Background()))

	require.NoError(t, r.StartEngine(context.Background()))
	require.NotEmpty(t, fi.invoked)
	assert.Equal(t, cloud.ActionStartEngine, fi.invoked[0].Name)
	payload, ok := fi.payloads[0].(cloud.EngineStartRequest)
	require.True(t, ok)
	assert.Positive(t, payload.Runtime)
}

func TestLockTriggersCarStatusRefresh(t *testing.T) {
	fc := &fakeCloud{status: model.Status{"carLocked": true}}
	fi := &fakeInvoker{}
	r := newTestRefresher(fc, fi)

	require.NoError(t, r.Lock(context.Background()))
	assert.Equal(t, []string{cloud.ActionLock, cloud.ActionRefreshStatus}, fi.actionNames())
	assert.Equal(t, 1, fc.statusCalls, "successful action must re-read the cloud status")
}

func TestDelayChargingRefreshesCloudStatusDirectly(t *testing.T) {
	fc := &fakeCloud{status: model.Status{}}
	fi := &fakeInvoker{}
	r := newTestRefresher(fc, fi)

	schedule := cloud.DelaySchedule{Enabled: true, StartTime: "22:00", StopTime: "06:00"}
	require.NoError(t, r.DelayCharging(context.Background(), "1234", schedule))

	require.Len(t, fi.invoked, 1)
	assert.Equal(t, cloud.ActionDelayCharging, fi.invoked[0].Name)
	assert.Equal(t, "1234", fi.invoked[0].Target)
	payload, ok := fi.payloads[0].(cloud.DelayChargingRequest)
	require.True(t, ok)
	assert.Equal(t, "Accepted", payload.Status)
	assert.Equal(t, schedule, payload.DelayCharging)
	assert.Equal(t, 1, fc.statusCalls, "delay charging re-reads the cloud snapshot without asking the car")
}

func TestFailedActionLeavesStateUntouched(t *testing.T) {
	fc := &fakeCloud{status: model.Status{"carLocked": false}}
	fi := &fakeInvoker{failures: map[string]error{cloud.ActionLock: errors.New("rejected")}}
	r := newTestRefresher(fc, fi)

	require.Error(t, r.Lock(context.Background()))
	assert.Zero(t, fc.statusCalls, "a failed action must not trigger a status refresh")
	assert.Empty(t, r.Status())
}

func TestFacetEventsPublished(t *testing.T) {
	fc := &fakeCloud{attributes: chargingAttributes(), status: model.Status{"odometer": 1.0}}
	r := newTestRefresher(fc, &fakeInvoker{})
	events := r.Events().Subscribe()

	require.NoError(t, r.RefreshStatusFromCloud(context.Background()))
	ev := <-events
	assert.Equal(t, Event{VehicleID: "V1", Facet: FacetStatus}, ev)
}

func TestReady(t *testing.T) {
	fc := &fakeCloud{
		attributes: chargingAttributes(),
		status:     model.Status{"odometer": 1.0},
		locations:  []cloud.ChargeLocationDoc{{Resource: "loc/9"}},
	}
	r := newTestRefresher(fc, &fakeInvoker{})
	assert.False(t, r.Ready(), "not ready before any fetch")

	require.NoError(t, r.RefreshAttributes(context.Background()))
	assert.False(t, r.Ready(), "not ready without status")

	require.NoError(t, r.RefreshStatusFromCloud(context.Background()))
	assert.True(t, r.Ready())
}
