// Package invoke implements the remote command invocation protocol: submit
// an action to the cloud, then poll its service invocation for a terminal
// status within a bounded attempt budget.
package invoke

import (
	"context"
	"time"

	"github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/logger"
	"github.com/vocbridge/voc2mqtt/core/metrics"
)

// Config bounds the polling loop.
type Config struct {
	// PollInterval is the fixed delay between status polls.
	PollInterval time.Duration
	// MaxAttempts is the poll attempt budget before giving up.
	MaxAttempts int
}

// SetDefaults applies the standard budget of 15 polls at one-second
// intervals.
func (c *Config) SetDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 15
	}
}

// Sleeper waits for the given duration or until the context is canceled.
// Tests inject a no-op sleeper to run the loop without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Invoker issues remote vehicle actions and awaits their terminal status.
// It never mutates vehicle state; callers trigger a status refresh after a
// successful invocation.
type Invoker struct {
	client cloud.Client
	cfg    Config
	sleep  Sleeper
	log    logger.Logger
	sink   metrics.Sink
}

// New creates an Invoker. A nil sink disables metrics.
func New(client cloud.Client, cfg Config, log logger.Logger, sink metrics.Sink) *Invoker {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Invoker{client: client, cfg: cfg, sleep: defaultSleeper, log: log, sink: sink}
}

// WithSleeper replaces the sleeper used between polls.
func (i *Invoker) WithSleeper(s Sleeper) *Invoker {
	i.sleep = s
	return i
}

// Invoke submits the action and waits for a terminal outcome.
//
// An immediate terminal result — the cloud recognized an idempotent update
// as already applied — resolves without polling and is trusted as-is.
// Otherwise the invocation is polled at the configured interval until it
// reports Successful or Failed, or the attempt budget runs out
// (cloud.ErrInvocationTimeout). Transport errors during submission or
// polling abort the invocation immediately; the submission is never retried.
func (i *Invoker) Invoke(ctx context.Context, vehicleID string, action cloud.Action, payload any) error {
	res, err := i.client.SubmitAction(ctx, vehicleID, action, payload)
	if err != nil {
		i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeError)
		return err
	}
	if res.Terminal {
		return i.resolveTerminal(vehicleID, action, res.Status, res.Reason)
	}
	if res.InvocationID == "" {
		i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeError)
		return cloud.ErrMissingInvocationID
	}

	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		if err := i.sleep(ctx, i.cfg.PollInterval); err != nil {
			return err
		}
		poll, err := i.client.PollInvocation(ctx, vehicleID, res.InvocationID)
		if err != nil {
			i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeError)
			return err
		}
		i.sink.RecordInvocationPoll(vehicleID, action.Name)
		switch poll.Status {
		case cloud.StatusSuccessful, cloud.StatusFailed:
			return i.resolveTerminal(vehicleID, action, poll.Status, poll.Reason)
		default:
			i.log.Debugw("invocation still pending", map[string]any{
				"vehicle": vehicleID,
				"action":  action.Name,
				"attempt": attempt,
			})
		}
	}
	i.log.Warnf("no terminal status for %s on %s within %d attempts",
		action.Name, vehicleID, i.cfg.MaxAttempts)
	i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeTimeout)
	return cloud.ErrInvocationTimeout
}

func (i *Invoker) resolveTerminal(vehicleID string, action cloud.Action, status cloud.InvocationStatus, reason string) error {
	if status == cloud.StatusFailed {
		if reason != "" {
			i.log.Errorf("action %s on %s failed: %s", action.Name, vehicleID, reason)
		} else {
			i.log.Errorf("action %s on %s failed", action.Name, vehicleID)
		}
		i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeFailed)
		return &cloud.InvocationFailedError{Reason: reason}
	}
	i.log.Infof("action %s on %s succeeded", action.Name, vehicleID)
	i.sink.RecordCommand(vehicleID, action.Name, metrics.OutcomeSuccess)
	return nil
}
