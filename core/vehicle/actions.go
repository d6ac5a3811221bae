package vehicle

import (
	"context"

	"github.com/vocbridge/voc2mqtt/core/cloud"
)

// followUp selects which status refresh runs after a successful action.
type followUp int

const (
	followCar followUp = iota
	followCloud
	followNone
)

func (r *Refresher) execute(ctx context.Context, action cloud.Action, payload any, follow followUp) error {
	if err := r.invoker.Invoke(ctx, r.id, action, payload); err != nil {
		// Cached state stays untouched: a failed action publishes nothing.
		r.log.Errorf("command %s on %s: %v", action.Name, r.id, err)
		return err
	}
	switch follow {
	case followCar:
		return r.RefreshStatusFromCar(ctx)
	case followCloud:
		return r.RefreshStatusFromCloud(ctx)
	}
	return nil
}

// Lock locks the vehicle.
func (r *Refresher) Lock(ctx context.Context) error {
	return r.execute(ctx, cloud.Action{Name: cloud.ActionLock}, nil, followCar)
}

// Unlock unlocks the vehicle.
func (r *Refresher) Unlock(ctx context.Context) error {
	return r.execute(ctx, cloud.Action{Name: cloud.ActionUnlock}, nil, followCar)
}

// StartCharging overrides a delayed-charging schedule and starts charging
// immediately.
func (r *Refresher) StartCharging(ctx context.Context) error {
	return r.execute(ctx, cloud.Action{Name: cloud.ActionStartCharging}, nil, followCar)
}

// DelayCharging updates the delayed-charging window of one charge location.
// The cloud reflects the new schedule directly, so the follow-up reads the
// cloud snapshot instead of asking the car.
func (r *Refresher) DelayCharging(ctx context.Context, locationID string, schedule cloud.DelaySchedule) error {
	payload := cloud.DelayChargingRequest{Status: "Accepted", DelayCharging: schedule}
	action := cloud.Action{Name: cloud.ActionDelayCharging, Target: locationID}
	return r.execute(ctx, action, payload, followCloud)
}

// StartHeater turns cabin heating on, preferring the remote heater and
// falling back to preclimatization. Vehicles supporting neither drop the
// command silently.
func (r *Refresher) StartHeater(ctx context.Context) error {
	return r.heater(ctx, cloud.ActionStartHeater, cloud.ActionStartPreclimatization)
}

// StopHeater turns cabin heating off, with the same capability dispatch as
// StartHeater.
func (r *Refresher) StopHeater(ctx context.Context) error {
	return r.heater(ctx, cloud.ActionStopHeater, cloud.ActionStopPreclimatization)
}

func (r *Refresher) heater(ctx context.Context, heaterAction, preclimatizationAction string) error {
	caps := r.Capabilities()
	switch {
	case caps.RemoteHeater:
		return r.execute(ctx, cloud.Action{Name: heaterAction}, nil, followCar)
	case caps.Preclimatization:
		return r.execute(ctx, cloud.Action{Name: preclimatizationAction}, nil, followCar)
	default:
		r.log.Debugf("heater command dropped: %s supports neither heater nor preclimatization", r.id)
		return nil
	}
}

// engineRuntimeMinutes is how long a remotely started engine keeps running.
const engineRuntimeMinutes = 15

// StartEngine starts the engine remotely for a fixed runtime. Dropped
// silently when the vehicle does not support remote engine start.
func (r *Refresher) StartEngine(ctx context.Context) error {
	if !r.Capabilities().EngineStart {
		r.log.Debugf("engine command dropped: %s does not support remote engine start", r.id)
		return nil
	}
	payload := cloud.EngineStartRequest{Runtime: engineRuntimeMinutes}
	return r.execute(ctx, cloud.Action{Name: cloud.ActionStartEngine}, payload, followCar)
}

// StopEngine stops a remotely started engine, with the same capability gate
// as StartEngine.
func (r *Refresher) StopEngine(ctx context.Context) error {
	if !r.Capabilities().EngineStart {
		r.log.Debugf("engine command dropped: %s does not support remote engine start", r.id)
		return nil
	}
	return r.execute(ctx, cloud.Action{Name: cloud.ActionStopEngine}, nil, followCar)
}

// HonkAndBlink honks the horn and flashes the lights. Dropped silently when
// unsupported.
func (r *Refresher) HonkAndBlink(ctx context.Context) error {
	if !r.Capabilities().HonkAndBlink {
		r.log.Debugf("honk command dropped: %s does not support honk and blink", r.id)
		return nil
	}
	return r.execute(ctx, cloud.Action{Name: cloud.ActionHonkAndBlink}, nil, followNone)
}
