package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herodispatch/internal/types"
)

// recordingTransport captures envelopes and optionally fails for selected recipients.
type recordingTransport struct {
	mu   sync.Mutex
	envs []Envelope
	fail map[types.ID]bool
}

func (r *recordingTransport) Deliver(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[env.Recipient.ID] {
		return errors.New("device unreachable")
	}
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingTransport) recipients() []types.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ID, 0, len(r.envs))
	for _, e := range r.envs {
		out = append(out, e.Recipient.ID)
	}
	return out
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func newTestScheduler() (*Scheduler, *clock.Mock, *recordingTransport) {
	clk := clock.NewMock()
	rt := &recordingTransport{fail: map[types.ID]bool{}}
	return NewScheduler(clk, rt, zerolog.Nop()), clk, rt
}

var testSummary = Summary{IncidentID: "inc-1", Type: "medical", Severity: "moderate", RadiusKm: 0.5}

// ---------------------------------------------------------------------------
// Timing
// ---------------------------------------------------------------------------

func TestScheduleWave_ImmediateAlertsDeliveredSynchronously(t *testing.T) {
	s, _, rt := newTestScheduler()

	h := s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "doc", Tier: "Medical", Delay: 0},
		{ResponderID: "cop", Tier: "Police", Delay: 10 * time.Second},
	})

	assert.Equal(t, []types.ID{"doc"}, rt.recipients())
	assert.Equal(t, 1, h.Pending())
}

func TestScheduleWave_DelayedAlertsFireInOrder(t *testing.T) {
	s, clk, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "all", Tier: "All Citizens", Delay: 15 * time.Second},
		{ResponderID: "fire", Tier: "Fire", Delay: 5 * time.Second},
		{ResponderID: "cop", Tier: "Police", Delay: 10 * time.Second},
	})

	clk.Add(4999 * time.Millisecond)
	assert.Empty(t, rt.recipients())

	clk.Add(time.Millisecond)
	assert.Equal(t, []types.ID{"fire"}, rt.recipients())

	clk.Add(10 * time.Second)
	assert.Equal(t, []types.ID{"fire", "cop", "all"}, rt.recipients())
}

func TestScheduleWave_PayloadVariants(t *testing.T) {
	s, _, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 2, testSummary, []Alert{
		{ResponderID: "r1", Tier: "Blood Match", Resource: "O-", DistanceKm: 1.2},
		{ResponderID: "r1", Tier: "Medical", DistanceKm: 1.2},
	})

	require.Equal(t, 2, rt.count())
	res, ok := rt.envs[0].Event.(ResourceAlert)
	require.True(t, ok, "expected ResourceAlert, got %T", rt.envs[0].Event)
	assert.Equal(t, "O-", res.Resource)
	assert.Equal(t, 2, res.Wave)

	tier, ok := rt.envs[1].Event.(TierAlert)
	require.True(t, ok, "expected TierAlert, got %T", rt.envs[1].Event)
	assert.Equal(t, "Medical", tier.Tier)
	assert.Equal(t, types.ID("inc-1"), tier.IncidentID)
	assert.Equal(t, AudienceUser, rt.envs[1].Recipient.Audience)
}

// ---------------------------------------------------------------------------
// Cancellation and supersession
// ---------------------------------------------------------------------------

func TestCancel_StopsPendingTimers(t *testing.T) {
	s, clk, rt := newTestScheduler()

	h := s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "fire", Tier: "Fire", Delay: 5 * time.Second},
	})
	h.Cancel()
	h.Cancel()

	clk.Add(time.Minute)
	assert.Zero(t, rt.count())
	assert.True(t, h.Cancelled())
	assert.Zero(t, h.Pending())
}

func TestScheduleWave_SupersedesPreviousWave(t *testing.T) {
	s, clk, rt := newTestScheduler()

	first := s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "late", Tier: "All Citizens", Delay: 15 * time.Second},
	})
	clk.Add(10 * time.Second)
	s.ScheduleWave("inc-1", 1, testSummary, []Alert{
		{ResponderID: "band", Tier: "Band 0.5-2km", Delay: 10 * time.Second},
	})

	clk.Add(time.Minute)
	assert.True(t, first.Cancelled())
	assert.Equal(t, []types.ID{"band"}, rt.recipients())
}

func TestDeactivate_NoAlertAfterBoundary(t *testing.T) {
	s, clk, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "fire", Tier: "Fire", Delay: 5 * time.Second},
	})
	clk.Add(4999 * time.Millisecond)
	s.Deactivate("inc-1")
	clk.Add(time.Millisecond)

	assert.Zero(t, rt.count())

	h := s.ScheduleWave("inc-1", 1, testSummary, []Alert{{ResponderID: "x", Tier: "Medical"}})
	assert.True(t, h.Cancelled())
	assert.Zero(t, rt.count(), "deactivated incidents accept no new waves")
}

func TestDeactivate_IsolatedPerIncident(t *testing.T) {
	s, clk, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{{ResponderID: "a", Tier: "Fire", Delay: time.Second}})
	s.ScheduleWave("inc-2", 0, testSummary, []Alert{{ResponderID: "b", Tier: "Fire", Delay: time.Second}})
	s.Deactivate("inc-1")

	clk.Add(time.Second)
	assert.Equal(t, []types.ID{"b"}, rt.recipients())
}

func TestForget_DropsState(t *testing.T) {
	s, clk, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{{ResponderID: "a", Tier: "Fire", Delay: time.Second}})
	s.Forget("inc-1")
	clk.Add(time.Second)

	assert.Zero(t, rt.count())
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.incidents, types.ID("inc-1"))
}

// ---------------------------------------------------------------------------
// Dedupe and failures
// ---------------------------------------------------------------------------

func TestScheduleWave_SkipsPairsDeliveredInEarlierWave(t *testing.T) {
	s, clk, rt := newTestScheduler()

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{{ResponderID: "doc", Tier: "Medical"}})
	clk.Add(20 * time.Second)
	s.ScheduleWave("inc-1", 1, testSummary, []Alert{
		{ResponderID: "doc", Tier: "Medical"},
		{ResponderID: "doc", Tier: "Band 0.5-2km"},
	})

	require.Equal(t, 2, rt.count())
	assert.Equal(t, "Band 0.5-2km", rt.envs[1].Event.(TierAlert).Tier)
}

func TestScheduleWave_TransportFailureDoesNotStopOthers(t *testing.T) {
	s, clk, rt := newTestScheduler()
	rt.fail["broken"] = true

	s.ScheduleWave("inc-1", 0, testSummary, []Alert{
		{ResponderID: "broken", Tier: "Fire", Delay: time.Second},
		{ResponderID: "ok", Tier: "Fire", Delay: 2 * time.Second},
	})
	clk.Add(2 * time.Second)

	assert.Equal(t, []types.ID{"ok"}, rt.recipients())
}
