package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vocbridge/voc2mqtt/core/cloud"
)

// Command topic suffixes understood by the router.
const (
	CommandStartCharging = "startCharging"
	CommandDelayCharging = "delayCharging"
	CommandLock          = "lock"
	CommandHeater        = "heater"
	CommandEngine        = "engine"
	CommandHonkAndBlink  = "honkAndBlink"
)

// CommandTopics lists the command suffixes subscribed per vehicle.
var CommandTopics = []string{
	CommandStartCharging,
	CommandDelayCharging,
	CommandLock,
	CommandHeater,
	CommandEngine,
	CommandHonkAndBlink,
}

// Routing failures. None of them is fatal: the caller logs and drops.
var (
	ErrUnknownVehicle   = errors.New("command for unknown vehicle")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
)

// delayChargingCommand is the inbound MQTT payload of a delayCharging
// command.
type delayChargingCommand struct {
	ChargeLocation  string `json:"chargeLocation"`
	DelayedCharging *bool  `json:"delayedCharging"`
	StartTime       string `json:"startTime"`
	StopTime        string `json:"stopTime"`
}

// HandleCommand decodes a `<ns>/<vehicleId>/<command>` topic and dispatches
// to the named vehicle's action method. Unknown vehicles or commands are
// reported as errors for the caller to log; they never crash the process.
func (c *Coordinator) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	segments := strings.Split(topic, "/")
	if len(segments) < 3 {
		return fmt.Errorf("%w: topic %q", ErrMalformedCommand, topic)
	}
	vehicleID := segments[len(segments)-2]
	command := segments[len(segments)-1]

	r := c.Vehicle(vehicleID)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}

	switch command {
	case CommandStartCharging:
		return r.StartCharging(ctx)
	case CommandDelayCharging:
		var cmd delayChargingCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: delayCharging payload: %v", ErrMalformedCommand, err)
		}
		if cmd.ChargeLocation == "" {
			return fmt.Errorf("%w: delayCharging without chargeLocation", ErrMalformedCommand)
		}
		schedule := cloud.DelaySchedule{
			Enabled:   cmd.DelayedCharging == nil || *cmd.DelayedCharging,
			StartTime: cmd.StartTime,
			StopTime:  cmd.StopTime,
		}
		return r.DelayCharging(ctx, cmd.ChargeLocation, schedule)
	case CommandLock:
		switch strings.TrimSpace(string(payload)) {
		case "LOCK":
			return r.Lock(ctx)
		case "UNLOCK":
			return r.Unlock(ctx)
		default:
			return fmt.Errorf("%w: lock payload %q", ErrMalformedCommand, payload)
		}
	case CommandHeater:
		switch strings.TrimSpace(string(payload)) {
		case "ON":
			return r.StartHeater(ctx)
		case "OFF":
			return r.StopHeater(ctx)
		default:
			return fmt.Errorf("%w: heater payload %q", ErrMalformedCommand, payload)
		}
	case CommandEngine:
		switch strings.TrimSpace(string(payload)) {
		case "ON":
			return r.StartEngine(ctx)
		case "OFF":
			return r.StopEngine(ctx)
		default:
			return fmt.Errorf("%w: engine payload %q", ErrMalformedCommand, payload)
		}
	case CommandHonkAndBlink:
		return r.HonkAndBlink(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
