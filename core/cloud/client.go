// Package cloud defines the contract against the vehicle telematics cloud
// API. The bridge consumes it as a collaborator: implementations live in
// infra/cloud, tests use hand-written fakes.
package cloud

import (
	"context"

	"github.com/vocbridge/voc2mqtt/core/model"
)

// InvocationStatus is the terminal-state classification of a remote service
// invocation as reported by the cloud.
type InvocationStatus int

const (
	// StatusPending covers every non-terminal status string the cloud may
	// report (Queued, Started, MessageDelivered, ...).
	StatusPending InvocationStatus = iota
	StatusSuccessful
	StatusFailed
)

// ParseInvocationStatus maps the cloud's literal status string to a typed
// status. Anything neither successful nor failed keeps the invocation
// pending.
func ParseInvocationStatus(s string) InvocationStatus {
	switch s {
	case "Successful":
		return StatusSuccessful
	case "Failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (s InvocationStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Action identifies a remote vehicle action. Target optionally narrows the
// action to a sub-resource, such as the charge location a delayed-charging
// schedule applies to.
type Action struct {
	Name   string
	Target string
}

// Remote action names understood by the cloud.
const (
	ActionLock                  = "lock"
	ActionUnlock                = "unlock"
	ActionStartHeater           = "heater/start"
	ActionStopHeater            = "heater/stop"
	ActionStartPreclimatization = "preclimatization/start"
	ActionStopPreclimatization  = "preclimatization/stop"
	ActionStartCharging         = "batterycharge/overridedelaycharging"
	ActionDelayCharging         = "chargeLocations"
	ActionStartEngine           = "engine/start"
	ActionStopEngine            = "engine/stop"
	ActionRefreshStatus         = "updatestatus"
	ActionHonkAndBlink          = "honk_and_blink"
)

// EngineStartRequest is the payload of a remote engine start: how long the
// engine keeps running, in minutes.
type EngineStartRequest struct {
	Runtime int `json:"runtime"`
}

// SubmitResult is the cloud's answer to an action submission: either an
// invocation to poll, or — for idempotent updates the cloud recognizes as
// already applied — an immediate terminal result without an invocation id.
type SubmitResult struct {
	InvocationID string
	Terminal     bool
	Status       InvocationStatus
	Reason       string
}

// PollResult is one poll of an outstanding invocation.
type PollResult struct {
	Status InvocationStatus
	Reason string
}

// ChargeLocationDoc is the wire form of one saved charging spot.
type ChargeLocationDoc struct {
	Name     string
	Resource string
	Position model.GeoPosition
	Raw      map[string]any
}

// DelayChargingRequest is the payload of a delayed-charging update, targeted
// at one charge location.
type DelayChargingRequest struct {
	Status        string        `json:"status"`
	DelayCharging DelaySchedule `json:"delayCharging"`
}

// DelaySchedule is the charging window of a delayed-charging update.
type DelaySchedule struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"`
	StopTime  string `json:"stopTime"`
}

// Client is the operation surface of the telematics cloud. Every call
// carries the account credentials and device identifier configured on the
// implementation; failures surface as TransportError or AuthError.
type Client interface {
	// Login verifies the account credentials.
	Login(ctx context.Context) error
	// ListVehicles returns the ids (VINs) of all vehicles on the account.
	ListVehicles(ctx context.Context) ([]string, error)
	GetAttributes(ctx context.Context, vehicleID string) (model.Attributes, error)
	GetStatus(ctx context.Context, vehicleID string) (model.Status, error)
	GetChargeLocations(ctx context.Context, vehicleID string) ([]ChargeLocationDoc, error)
	GetPosition(ctx context.Context, vehicleID string) (model.Position, error)
	// SubmitAction submits a remote action and returns either an invocation
	// id to poll or an immediate terminal result.
	SubmitAction(ctx context.Context, vehicleID string, action Action, payload any) (SubmitResult, error)
	// PollInvocation reports the current status of an outstanding invocation.
	PollInvocation(ctx context.Context, vehicleID, invocationID string) (PollResult, error)
}
