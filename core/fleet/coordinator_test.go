package fleet

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

type fakeCloud struct {
	vehicles []string
	listErr  error
}

func (f *fakeCloud) Login(context.Context) error { return nil }

func (f *fakeCloud) ListVehicles(context.Context) ([]string, error) {
	return f.vehicles, f.listErr
}

func (f *fakeCloud) GetAttributes(context.Context, string) (model.Attributes, error) {
	return model.Attributes{
		"highVoltageBatterySupported": true,
		"engineStartSupported":        true,
	}, nil
}

func (f *fakeCloud) GetStatus(context.Context, string) (model.Status, error) {
	return model.Status{"odometer": 1.0}, nil
}

func (f *fakeCloud) GetChargeLocations(context.Context, string) ([]cloud.ChargeLocationDoc, error) {
	return []cloud.ChargeLocationDoc{{Resource: "chargeLocations/1", Name: "Home"}}, nil
}

func (f *fakeCloud) GetPosition(context.Context, string) (model.Position, error) {
	return model.Position{}, nil
}

func (f *fakeCloud) SubmitAction(context.Context, string, cloud.Action, any) (cloud.SubmitResult, error) {
	return cloud.SubmitResult{Terminal: true, Status: cloud.StatusSuccessful}, nil
}

func (f *fakeCloud) PollInvocation(context.Context, string, string) (cloud.PollResult, error) {
	return cloud.PollResult{Status: cloud.StatusSuccessful}, nil
}

type fakeInvoker struct {
	invoked []cloud.Action
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, action cloud.Action, _ any) error {
	f.invoked = append(f.invoked, action)
	return nil
}

type fakeSubscriber struct {
	resets [][]string
	err    error
}

func (f *fakeSubscriber) ResetSubscriptions(ids []string) error {
	cp := make([]string, len(ids))
	copy(cp, ids)
	f.resets = append(f.resets, cp)
	return f.err
}

func newTestCoordinator(fc *fakeCloud, subs *fakeSubscriber) *Coordinator {
	return New(fc, &fakeInvoker{}, subs, Config{}, logger.NopLogger{}, nil)
}

func TestRefreshFleetDiff(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"A", "B"}}
	subs := &fakeSubscriber{}
	c := newTestCoordinator(fc, subs)

	require.NoError(t, c.RefreshFleet(context.Background()))
	require.NotNil(t, c.Vehicle("A"))
	require.NotNil(t, c.Vehicle("B"))
	kept := c.Vehicle("B")

	fc.vehicles = []string{"B", "C"}
	require.NoError(t, c.RefreshFleet(context.Background()))

	assert.Nil(t, c.Vehicle("A"), "A must be torn down")
	assert.Same(t, kept, c.Vehicle("B"), "B must not be reconstructed")
	assert.NotNil(t, c.Vehicle("C"), "C must be constructed fresh")

	require.Len(t, subs.resets, 2)
	assert.Equal(t, []string{"B", "C"}, subs.resets[1], "subscription set must match the new listing")
}

func TestRefreshFleetTearsDownListeners(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"A"}}
	c := newTestCoordinator(fc, &fakeSubscriber{})
	require.NoError(t, c.RefreshFleet(context.Background()))

	events := c.Vehicle("A").Events().Subscribe()

	fc.vehicles = nil
	require.NoError(t, c.RefreshFleet(context.Background()))

	_, open := <-events
	assert.False(t, open, "removed vehicle's event bus must be closed")
}

func TestRefreshFleetListErrorKeepsFleet(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"A"}}
	subs := &fakeSubscriber{}
	c := newTestCoordinator(fc, subs)
	require.NoError(t, c.RefreshFleet(context.Background()))

	fc.listErr = errors.New("unreachable")
	require.Error(t, c.RefreshFleet(context.Background()))
	assert.NotNil(t, c.Vehicle("A"), "a failed listing must not tear anything down")
	assert.Len(t, subs.resets, 1, "no subscription churn on a failed listing")
}

func TestRefreshFleetInitialFetches(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"A"}}
	c := newTestCoordinator(fc, &fakeSubscriber{})
	require.NoError(t, c.RefreshFleet(context.Background()))

	r := c.Vehicle("A")
	assert.True(t, r.Capabilities().Charging, "initial attribute fetch must have run")
	assert.NotEmpty(t, r.Status(), "initial status fetch must have run")
	assert.NotEmpty(t, r.ChargeLocations(), "attribute cascade must have fetched charge locations")
}

func TestHandleCommandRouting(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"V1"}}
	fi := &fakeInvoker{}
	c := New(fc, fi, &fakeSubscriber{}, Config{}, logger.NopLogger{}, nil)
	require.NoError(t, c.RefreshFleet(context.Background()))
	ctx := context.Background()

	require.NoError(t, c.HandleCommand(ctx, "voc/V1/startCharging", nil))
	require.NoError(t, c.HandleCommand(ctx, "voc/V1/lock", []byte("LOCK")))
	require.NoError(t, c.HandleCommand(ctx, "voc/V1/lock", []byte("UNLOCK")))
	require.NoError(t, c.HandleCommand(ctx, "voc/V1/delayCharging",
		[]byte(`{"chargeLocation":"1234","startTime":"22:00","stopTime":"06:00"}`)))
	require.NoError(t, c.HandleCommand(ctx, "voc/V1/engine", []byte("ON")))
	require.NoError(t, c.HandleCommand(ctx, "voc/V1/engine", []byte("OFF")))

	var names []string
	for _, a := range fi.invoked {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, cloud.ActionStartCharging)
	assert.Contains(t, names, cloud.ActionLock)
	assert.Contains(t, names, cloud.ActionUnlock)
	assert.Contains(t, names, cloud.ActionDelayCharging)
	assert.Contains(t, names, cloud.ActionStartEngine)
	assert.Contains(t, names, cloud.ActionStopEngine)
}

func TestHandleCommandDelayChargingDefaultsEnabled(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"V1"}}
	fi := &fakeInvoker{}
	c := New(fc, fi, &fakeSubscriber{}, Config{}, logger.NopLogger{}, nil)
	require.NoError(t, c.RefreshFleet(context.Background()))

	require.NoError(t, c.HandleCommand(context.Background(), "voc/V1/delayCharging",
		[]byte(`{"chargeLocation":"1234"}`)))

	var delay cloud.Action
	for _, a := range fi.invoked {
		if a.Name == cloud.ActionDelayCharging {
			delay = a
		}
	}
	assert.Equal(t, "1234", delay.Target)
}

func TestHandleCommandErrors(t *testing.T) {
	fc := &fakeCloud{vehicles: []string{"V1"}}
	c := newTestCoordinator(fc, &fakeSubscriber{})
	require.NoError(t, c.RefreshFleet(context.Background()))
	ctx := context.Background()

	tests := []struct {
		name    string
		topic   string
		payload string
		want    error
	}{
		{"unknown vehicle", "voc/NOPE/lock", "LOCK", ErrUnknownVehicle},
		{"unknown command", "voc/V1/selfDestruct", "", ErrUnknownCommand},
		{"short topic", "lock", "", ErrMalformedCommand},
		{"bad lock payload", "voc/V1/lock", "SIDEWAYS", ErrMalformedCommand},
		{"bad heater payload", "voc/V1/heater", "MAYBE", ErrMalformedCommand},
		{"bad engine payload", "voc/V1/engine", "MAYBE", ErrMalformedCommand},
		{"bad delay payload", "voc/V1/delayCharging", "{not json", ErrMalformedCommand},
		{"delay without location", "voc/V1/delayCharging", "{}", ErrMalformedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.HandleCommand(ctx, tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
