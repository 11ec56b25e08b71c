// README: Notification scheduler: clock-driven, generation-guarded escalation waves per incident.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"

	"herodispatch/internal/metrics"
	"herodispatch/internal/types"
)

// Alert is one timed notification inside a wave.
type Alert struct {
	ResponderID types.ID
	Tier        string
	// Resource is set for resource-matched alerts (blood group).
	Resource   string
	Delay      time.Duration
	DistanceKm float64
}

type deliveryKey struct {
	responder types.ID
	tier      string
}

// incidentState is guarded by its own mutex; timer callbacks only ever take
// this lock.
type incidentState struct {
	mu        sync.Mutex
	gen       uint64
	inactive  bool
	current   *WaveHandle
	delivered map[deliveryKey]struct{}
}

// WaveHandle identifies the wave scheduled for (incident, radius level).
type WaveHandle struct {
	IncidentID types.ID
	Wave       int

	state     *incidentState
	gen       uint64
	timers    []*clock.Timer
	pending   int
	cancelled bool
}

// Cancel stops every pending timer of the wave. Already delivered
// notifications are not retracted. Safe to call more than once.
func (h *WaveHandle) Cancel() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.cancelLocked()
}

func (h *WaveHandle) cancelLocked() {
	if h.cancelled {
		return
	}
	h.cancelled = true
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	h.pending = 0
}

// Pending returns the number of alerts that have neither fired nor been cancelled.
func (h *WaveHandle) Pending() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.pending
}

func (h *WaveHandle) Cancelled() bool {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.cancelled
}

type Scheduler struct {
	clock     clock.Clock
	transport Transport
	logger    zerolog.Logger

	mu        sync.Mutex
	incidents map[types.ID]*incidentState
}

func NewScheduler(clk clock.Clock, transport Transport, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:     clk,
		transport: transport,
		logger:    logger.With().Str("component", "notify_scheduler").Logger(),
		incidents: make(map[types.ID]*incidentState),
	}
}

func (s *Scheduler) stateFor(incidentID types.ID) *incidentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.incidents[incidentID]
	if !ok {
		st = &incidentState{delivered: make(map[deliveryKey]struct{})}
		s.incidents[incidentID] = st
	}
	return st
}

// ScheduleWave supersedes the incident's current wave and arms one timer per
// alert. Zero-delay alerts are delivered before ScheduleWave returns. For an
// incident that has been deactivated the returned handle is already cancelled.
func (s *Scheduler) ScheduleWave(incidentID types.ID, wave int, summary Summary, alerts []Alert) *WaveHandle {
	st := s.stateFor(incidentID)

	st.mu.Lock()
	defer st.mu.Unlock()

	h := &WaveHandle{IncidentID: incidentID, Wave: wave, state: st}
	if st.inactive {
		h.cancelled = true
		return h
	}
	if st.current != nil {
		st.current.cancelLocked()
	}
	st.gen++
	h.gen = st.gen
	st.current = h
	metrics.WavesScheduled.Inc()

	for _, a := range alerts {
		if a.Delay <= 0 {
			s.deliverLocked(st, h, summary, a)
			continue
		}
		a := a
		h.pending++
		h.timers = append(h.timers, s.clock.AfterFunc(a.Delay, func() {
			s.fire(st, h, summary, a)
		}))
	}
	return h
}

func (s *Scheduler) fire(st *incidentState, h *WaveHandle, summary Summary, a Alert) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if h.cancelled || st.inactive || st.gen != h.gen {
		metrics.Notifications.WithLabelValues(alertKind(a), metrics.OutcomeSuppressed).Inc()
		return
	}
	h.pending--
	s.deliverLocked(st, h, summary, a)
}

func (s *Scheduler) deliverLocked(st *incidentState, h *WaveHandle, summary Summary, a Alert) {
	key := deliveryKey{responder: a.ResponderID, tier: a.Tier}
	if _, seen := st.delivered[key]; seen {
		metrics.Notifications.WithLabelValues(alertKind(a), metrics.OutcomeDuplicate).Inc()
		return
	}
	st.delivered[key] = struct{}{}

	env := Envelope{
		Recipient:  ToUser(a.ResponderID),
		IncidentID: h.IncidentID,
		Event:      alertEvent(summary, h.Wave, a),
	}
	if err := s.transport.Deliver(context.Background(), env); err != nil {
		metrics.Notifications.WithLabelValues(env.Event.Kind(), metrics.OutcomeFailed).Inc()
		s.logger.Warn().Err(err).
			Str("incident_id", h.IncidentID.String()).
			Int("wave", h.Wave).
			Str("responder_id", a.ResponderID.String()).
			Str("tier", a.Tier).
			Msg("alert delivery failed")
	}
}

// Deactivate marks the incident inactive and cancels its current wave. No
// alert for the incident fires afterwards.
func (s *Scheduler) Deactivate(incidentID types.ID) {
	st := s.stateFor(incidentID)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.inactive = true
	st.gen++
	if st.current != nil {
		st.current.cancelLocked()
	}
}

// Forget deactivates the incident and drops its bookkeeping.
func (s *Scheduler) Forget(incidentID types.ID) {
	s.Deactivate(incidentID)

	s.mu.Lock()
	delete(s.incidents, incidentID)
	s.mu.Unlock()
}

func alertEvent(summary Summary, wave int, a Alert) Event {
	if a.Resource != "" {
		return ResourceAlert{Summary: summary, Resource: a.Resource, DistanceKm: a.DistanceKm, Wave: wave}
	}
	return TierAlert{Summary: summary, Tier: a.Tier, DistanceKm: a.DistanceKm, Wave: wave}
}

func alertKind(a Alert) string {
	if a.Resource != "" {
		return ResourceAlert{}.Kind()
	}
	return TierAlert{}.Kind()
}
