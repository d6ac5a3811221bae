package invoke

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/model"
	"github.com/vocbridge/voc2mqtt/infra/logger"
)

// fakeCloud scripts SubmitAction and PollInvocation responses.
type fakeCloud struct {
	submit    cloud.SubmitResult
	submitErr error
	polls     []cloud.PollResult
	pollErr   error
	pollCount int
}

func (f *fakeCloud) Login(context.Context) error                 { return nil }
func (f *fakeCloud) ListVehicles(context.Context) ([]string, error) { return nil, nil }
func (f *fakeCloud) GetAttributes(context.Context, string) (model.Attributes, error) {
	return nil, nil
}
func (f *fakeCloud) GetStatus(context.Context, string) (model.Status, error) { return nil, nil }
func (f *fakeCloud) GetChargeLocations(context.Context, string) ([]cloud.ChargeLocationDoc, error) {
	return nil, nil
}
func (f *fakeCloud) GetPosition(context.Context, string) (model.Position, error) {
	return model.Position{}, nil
}

func (f *fakeCloud) SubmitAction(_ context.Context, _ string, _ cloud.Action, _ any) (cloud.SubmitResult, error) {
	return f.submit, f.submitErr
}

func (f *fakeCloud) PollInvocation(context.Context, string, string) (cloud.PollResult, error) {
	if f.pollErr != nil {
		return cloud.PollResult{}, f.pollErr
	}
	f.pollCount++
	if f.pollCount > len(f.polls) {
		return cloud.PollResult{Status: cloud.StatusPending}, nil
	}
	return f.polls[f.pollCount-1], nil
}

func newTestInvoker(c cloud.Client) *Invoker {
	inv := New(c, Config{}, logger.NopLogger{}, nil)
	return inv.WithSleeper(func(context.Context, time.Duration) error { return nil })
}

func TestInvokeSucceedsOnThirdPoll(t *testing.T) {
	fc := &fakeCloud{
		submit: cloud.SubmitResult{InvocationID: "inv-1"},
		polls: []cloud.PollResult{
			{Status: cloud.StatusPending},
			{Status: cloud.StatusPending},
			{Status: cloud.StatusSuccessful},
		},
	}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, fc.pollCount, "polling must stop at the first terminal status")
}

func TestInvokeTimesOutAfterBudget(t *testing.T) {
	fc := &fakeCloud{submit: cloud.SubmitResult{InvocationID: "inv-1"}}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.ErrorIs(t, err, cloud.ErrInvocationTimeout)
	assert.Equal(t, 15, fc.pollCount)
}

func TestInvokeStopsOnFailure(t *testing.T) {
	fc := &fakeCloud{
		submit: cloud.SubmitResult{InvocationID: "inv-1"},
		polls: []cloud.PollResult{
			{Status: cloud.StatusPending},
			{Status: cloud.StatusFailed, Reason: "vehicle unreachable"},
		},
	}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionUnlock}, nil)
	var failed *cloud.InvocationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "vehicle unreachable", failed.Reason)
	assert.Equal(t, 2, fc.pollCount, "polling must stop immediately on failure")
}

func TestInvokeImmediateTerminalSkipsPolling(t *testing.T) {
	fc := &fakeCloud{
		submit: cloud.SubmitResult{Terminal: true, Status: cloud.StatusSuccessful},
	}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionDelayCharging, Target: "1234"}, nil)
	require.NoError(t, err)
	assert.Zero(t, fc.pollCount)
}

func TestInvokeImmediateFailure(t *testing.T) {
	fc := &fakeCloud{
		submit: cloud.SubmitResult{Terminal: true, Status: cloud.StatusFailed, Reason: "rejected"},
	}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	var failed *cloud.InvocationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Zero(t, fc.pollCount)
}

func TestInvokeMissingInvocationID(t *testing.T) {
	fc := &fakeCloud{submit: cloud.SubmitResult{}}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.ErrorIs(t, err, cloud.ErrMissingInvocationID)
	assert.Zero(t, fc.pollCount, "a missing invocation id must be rejected without polling")
}

func TestInvokeSubmitErrorAborts(t *testing.T) {
	boom := &cloud.TransportError{Op: "submit", Err: errors.New("connection refused")}
	fc := &fakeCloud{submitErr: boom}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, fc.pollCount)
}

func TestInvokePollErrorAborts(t *testing.T) {
	boom := &cloud.TransportError{Op: "poll", Err: errors.New("timeout")}
	fc := &fakeCloud{submit: cloud.SubmitResult{InvocationID: "inv-1"}, pollErr: boom}
	inv := newTestInvoker(fc)
	err := inv.Invoke(context.Background(), "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.ErrorIs(t, err, boom)
}

func TestInvokeCanceledContext(t *testing.T) {
	fc := &fakeCloud{submit: cloud.SubmitResult{InvocationID: "inv-1"}}
	inv := New(fc, Config{}, logger.NopLogger{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := inv.Invoke(ctx, "V1", cloud.Action{Name: cloud.ActionLock}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fc.pollCount)
}
