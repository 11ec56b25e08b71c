// README: Dispatch service: incident lifecycle, escalation waves and responder commitments.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"herodispatch/internal/metrics"
	"herodispatch/internal/modules/escalation"
	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/location"
	"herodispatch/internal/modules/notify"
	"herodispatch/internal/modules/radius"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/types"
)

type IncidentStore interface {
	Create(ctx context.Context, inc *incident.Incident) error
	Get(ctx context.Context, id types.ID) (*incident.Incident, error)
	ListActive(ctx context.Context) ([]*incident.Incident, error)
	ListNear(ctx context.Context, q incident.NearQuery) ([]*incident.Incident, error)
	UpdateRadius(ctx context.Context, id types.ID, level int, radiusKm float64) (bool, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to incident.Status, version int, patch incident.StatusPatch) (bool, error)
	SetAddress(ctx context.Context, id types.ID, address string) error
	Commit(ctx context.Context, c *incident.Commitment, t incident.Transition) (bool, error)
	GetCommitment(ctx context.Context, incidentID, responderID types.ID) (*incident.Commitment, error)
	ListCommitments(ctx context.Context, incidentID types.ID) ([]*incident.Commitment, error)
	UpdateCommitmentStatus(ctx context.Context, incidentID, responderID types.ID, from, to incident.CommitmentStatus) (bool, error)
	AppendEvent(ctx context.Context, e *incident.Event) error
}

type CandidateResolver interface {
	ResolveCandidates(ctx context.Context, center types.Point, radiusKm float64, exclude types.ID) ([]responder.Candidate, error)
}

type RewardApplier interface {
	ApplyReward(ctx context.Context, responderID types.ID, r responder.Reward) error
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

type Config struct {
	MaxAcceptKm float64
	Policy      escalation.Policy
	Schedule    radius.Schedule
}

func DefaultConfig() Config {
	return Config{
		MaxAcceptKm: 10,
		Policy:      escalation.DefaultPolicy(),
		Schedule:    radius.DefaultSchedule(),
	}
}

type Deps struct {
	Incidents IncidentStore
	Resolver  CandidateResolver
	Rewards   RewardApplier
	Scheduler *notify.Scheduler
	// Transport carries incident-room and reporter events. It must not block.
	Transport notify.Transport
	// Geocoder is optional.
	Geocoder Geocoder
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// run serializes every mutation of one incident inside this process. It
// stays in Service.runs while it is held or while its engine is live.
type run struct {
	mu     sync.Mutex
	engine *radius.Engine

	// guarded by Service.mu
	refs int
	live bool
}

type Service struct {
	incidents IncidentStore
	resolver  CandidateResolver
	rewards   RewardApplier
	scheduler *notify.Scheduler
	transport notify.Transport
	geocoder  Geocoder
	clock     clock.Clock
	logger    zerolog.Logger
	cfg       Config
	validate  *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu   sync.Mutex
	runs map[types.ID]*run
}

func NewService(deps Deps, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		incidents: deps.Incidents,
		resolver:  deps.Resolver,
		rewards:   deps.Rewards,
		scheduler: deps.Scheduler,
		transport: deps.Transport,
		geocoder:  deps.Geocoder,
		clock:     clk,
		logger:    deps.Logger.With().Str("component", "dispatch").Logger(),
		cfg:       cfg,
		validate:  validator.New(),
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[types.ID]*run),
	}
}

// lock takes the incident's run lock. The returned func unlocks it and drops
// the entry once nobody holds it and no engine is attached, so lookups of
// unknown or closed incidents leave nothing behind.
func (s *Service) lock(id types.ID) (*run, func()) {
	s.mu.Lock()
	r, ok := s.runs[id]
	if !ok {
		r = &run{}
		s.runs[id] = r
	}
	r.refs++
	s.mu.Unlock()

	r.mu.Lock()
	return r, func() {
		r.mu.Unlock()
		s.mu.Lock()
		r.refs--
		if r.refs == 0 && !r.live && s.runs[id] == r {
			delete(s.runs, id)
		}
		s.mu.Unlock()
	}
}

// setLive marks whether an engine keeps the run alive. Callers hold r.mu.
func (s *Service) setLive(r *run, live bool) {
	s.mu.Lock()
	r.live = live
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Submit / Recover
// ---------------------------------------------------------------------------

// Submit records a new incident and starts escalating it. The first wave is
// scheduled before Submit returns.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*incident.Incident, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}
	if !cmd.Location.Valid() {
		return nil, fmt.Errorf("%w: location out of range", ErrInvalidInput)
	}

	now := s.clock.Now()
	first := s.cfg.Schedule.StepAt(cmd.Severity, 0)
	inc := &incident.Incident{
		ID:                  types.NewID(),
		ReporterID:          cmd.ReporterID,
		Location:            *cmd.Location,
		Type:                cmd.Type,
		Description:         cmd.Description,
		Severity:            cmd.Severity,
		Status:              incident.StatusActive,
		RequiredResource:    cmd.RequiredResource,
		CurrentRadiusKm:     first.RadiusKm,
		RadiusLevel:         first.Level,
		AuthoritiesNotified: cmd.Severity == incident.SeverityCritical,
		CreatedAt:           now,
	}
	if inc.Type == "" {
		inc.Type = "other"
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, &incident.Event{
		IncidentID: inc.ID,
		Type:       incident.EventCreated,
		ToStatus:   incident.StatusActive,
		ActorID:    &inc.ReporterID,
		CreatedAt:  now,
	})

	s.startEngine(inc)
	s.enrichAddress(inc.ID, inc.Location)

	s.logger.Info().
		Str("incident_id", inc.ID.String()).
		Str("severity", string(inc.Severity)).
		Bool("authorities_notified", inc.AuthoritiesNotified).
		Msg("incident submitted")
	return inc, nil
}

// Recover restarts escalation for incidents that are still active in the
// store, e.g. after a restart.
func (s *Service) Recover(ctx context.Context) (int, error) {
	active, err := s.incidents.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch.Recover: %w", err)
	}
	for _, inc := range active {
		s.startEngine(inc)
	}
	return len(active), nil
}

func (s *Service) startEngine(inc *incident.Incident) {
	eng := radius.NewEngine(inc.ID, inc.CreatedAt, s.cfg.Schedule.Steps(inc.Severity), s.clock, s, s.logger)

	r, unlock := s.lock(inc.ID)
	if r.engine != nil {
		unlock()
		return
	}
	r.engine = eng
	s.setLive(r, true)
	unlock()
	metrics.ActiveIncidents.Inc()

	if err := eng.Start(s.ctx); err != nil {
		s.logger.Warn().Err(err).Str("incident_id", inc.ID.String()).Msg("first radius step failed")
	}
}

// stopEscalationLocked must be called with r.mu held when the incident
// leaves active.
func (s *Service) stopEscalationLocked(r *run, id types.ID) {
	s.detachEngineLocked(r)
	s.scheduler.Deactivate(id)
}

// detachEngineLocked stops and releases the run's engine, if any. Expand also
// calls it when the incident left active behind this process's back.
func (s *Service) detachEngineLocked(r *run) {
	if r.engine == nil {
		return
	}
	r.engine.Stop()
	r.engine = nil
	s.setLive(r, false)
	metrics.ActiveIncidents.Dec()
}

func (s *Service) enrichAddress(id types.ID, p types.Point) {
	if s.geocoder == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()

		addr, err := s.geocoder.ReverseGeocode(ctx, p)
		if err != nil || addr == "" {
			s.logger.Debug().Err(err).Str("incident_id", id.String()).Msg("reverse geocode skipped")
			return
		}
		if err := s.incidents.SetAddress(ctx, id, addr); err != nil {
			s.logger.Warn().Err(err).Str("incident_id", id.String()).Msg("storing address failed")
		}
	}()
}

// ---------------------------------------------------------------------------
// Escalation
// ---------------------------------------------------------------------------

// Expand applies one radius step: it grows the stored radius, resolves the
// candidate pool and schedules the step's wave. It reports false once the
// incident is no longer active.
func (s *Service) Expand(ctx context.Context, id types.ID, step radius.Step) (bool, error) {
	inc, active, err := s.applyStep(ctx, id, step)
	if err != nil || inc == nil {
		return active, err
	}

	candidates, err := s.resolver.ResolveCandidates(ctx, inc.Location, step.RadiusKm, inc.ReporterID)
	if err != nil {
		metrics.ResolutionFailures.Inc()
		s.logger.Warn().Err(err).
			Str("incident_id", id.String()).
			Int("wave", step.Level).
			Msg("candidate resolution failed, wave skipped")
		return true, nil
	}

	return s.scheduleWave(ctx, id, step, candidates)
}

// applyStep records the step's radius. It returns the incident only when a
// wave should be built for this step.
func (s *Service) applyStep(ctx context.Context, id types.ID, step radius.Step) (*incident.Incident, bool, error) {
	r, unlock := s.lock(id)
	defer unlock()

	inc, err := s.incidents.Get(ctx, id)
	if errors.Is(err, incident.ErrNotFound) {
		s.logger.Warn().Str("incident_id", id.String()).Msg("incident vanished, escalation stopped")
		s.detachEngineLocked(r)
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	if inc.Status != incident.StatusActive {
		s.detachEngineLocked(r)
		return nil, false, nil
	}
	if step.Level < inc.RadiusLevel {
		return nil, true, nil
	}
	if step.Level > inc.RadiusLevel {
		ok, err := s.incidents.UpdateRadius(ctx, id, step.Level, step.RadiusKm)
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return nil, true, nil
		}
		inc.RadiusLevel, inc.CurrentRadiusKm = step.Level, step.RadiusKm
		s.publish(ctx, notify.ToIncident(id), id, notify.RadiusUpdate{
			IncidentID: id,
			RadiusKm:   step.RadiusKm,
			Level:      step.Level,
		})
	}
	return inc, true, nil
}

func (s *Service) scheduleWave(ctx context.Context, id types.ID, step radius.Step, candidates []responder.Candidate) (bool, error) {
	_, unlock := s.lock(id)
	defer unlock()

	inc, err := s.incidents.Get(ctx, id)
	if errors.Is(err, incident.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if inc.Status != incident.StatusActive {
		return false, nil
	}
	if inc.RadiusLevel != step.Level {
		return true, nil
	}

	in := escalation.Input{
		Severity:         inc.Severity,
		RequiredResource: inc.RequiredResource,
		Elapsed:          s.clock.Now().Sub(inc.CreatedAt),
	}
	var alerts []notify.Alert
	for _, c := range candidates {
		for _, a := range s.cfg.Policy.Classify(c, in) {
			alerts = append(alerts, notify.Alert{
				ResponderID: a.ResponderID,
				Tier:        a.Tier,
				Resource:    a.Resource,
				Delay:       a.Delay,
				DistanceKm:  a.DistanceKm,
			})
		}
	}
	s.scheduler.ScheduleWave(id, step.Level, summaryOf(inc), alerts)

	s.logger.Debug().
		Str("incident_id", id.String()).
		Int("wave", step.Level).
		Int("candidates", len(candidates)).
		Int("alerts", len(alerts)).
		Msg("wave scheduled")
	return true, nil
}

// ---------------------------------------------------------------------------
// Commitments
// ---------------------------------------------------------------------------

// Accept commits a responder to an incident. The first commitment assigns
// the incident and stops escalation; later ones join as extra helpers.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*incident.Commitment, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}
	if !cmd.Location.Valid() {
		return nil, fmt.Errorf("%w: location out of range", ErrInvalidInput)
	}

	r, unlock := s.lock(cmd.IncidentID)
	defer unlock()

	inc, err := s.incidents.Get(ctx, cmd.IncidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status.Terminal() {
		metrics.Commitments.WithLabelValues("terminal").Inc()
		return nil, ErrIncidentTerminal
	}
	if _, err := s.incidents.GetCommitment(ctx, inc.ID, cmd.ResponderID); err == nil {
		metrics.Commitments.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyCommitted
	} else if !errors.Is(err, incident.ErrNotFound) {
		return nil, err
	}

	dist := location.DistanceBetween(cmd.Location, inc.Location)
	if dist > s.cfg.MaxAcceptKm {
		metrics.Commitments.WithLabelValues("too_far").Inc()
		return nil, &TooFarError{DistanceKm: dist, LimitKm: s.cfg.MaxAcceptKm}
	}

	now := s.clock.Now()
	c := &incident.Commitment{
		IncidentID:  inc.ID,
		ResponderID: cmd.ResponderID,
		Status:      incident.CommitmentEnRoute,
		ETAMinutes:  ETAMinutes(dist),
		DistanceKm:  dist,
		Position:    cmd.Location,
		Primary:     inc.AssignedResponderID == nil,
		JoinedAt:    now,
	}

	to := inc.Status
	var patch incident.StatusPatch
	var responseTime *time.Duration
	switch {
	case c.Primary && incident.CanTransition(inc.Status, incident.StatusAssigned):
		rt := now.Sub(inc.CreatedAt)
		to = incident.StatusAssigned
		patch.AssignedResponderID = &c.ResponderID
		patch.ResponseTime = &rt
		responseTime = &rt
	case inc.Status == incident.StatusActive:
		to = incident.StatusInProgress
	}

	ok, err := s.incidents.Commit(ctx, c, incident.Transition{
		From:    inc.Status,
		To:      to,
		Version: inc.StatusVersion,
		Patch:   patch,
	})
	if errors.Is(err, incident.ErrDuplicateCommitment) {
		metrics.Commitments.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyCommitted
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().
			Str("incident_id", inc.ID.String()).
			Str("responder_id", c.ResponderID.String()).
			Msg("incident status changed concurrently, commitment not stored")
		return nil, incident.ErrConflict
	}
	if inc.Status == incident.StatusActive {
		s.stopEscalationLocked(r, inc.ID)
	}

	metrics.Commitments.WithLabelValues("accepted").Inc()
	if responseTime != nil {
		metrics.ResponseTime.Observe(responseTime.Seconds())
	}
	s.appendEvent(ctx, &incident.Event{
		IncidentID:   inc.ID,
		Type:         incident.EventHelperJoin,
		FromStatus:   inc.Status,
		ToStatus:     to,
		ActorID:      &c.ResponderID,
		ResponseTime: responseTime,
		CreatedAt:    now,
	})

	s.publish(ctx, notify.ToIncident(inc.ID), inc.ID, notify.CommitmentUpdate{
		IncidentID:     inc.ID,
		ResponderID:    c.ResponderID,
		Status:         string(c.Status),
		IncidentStatus: string(to),
		Helpers:        s.helperCount(ctx, inc.ID),
	})
	s.publish(ctx, notify.ToUser(inc.ReporterID), inc.ID, notify.HelperAccepted{
		IncidentID:  inc.ID,
		ResponderID: c.ResponderID,
		ETAMinutes:  c.ETAMinutes,
		DistanceKm:  dist,
	})

	s.logger.Info().
		Str("incident_id", inc.ID.String()).
		Str("responder_id", c.ResponderID.String()).
		Bool("primary", c.Primary).
		Int("eta_minutes", c.ETAMinutes).
		Msg("responder committed")
	return c, nil
}

// AdvanceCommitment moves a responder's commitment forward
// (en_route → arrived → helping).
func (s *Service) AdvanceCommitment(ctx context.Context, cmd AdvanceCommand) (*incident.Commitment, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}

	_, unlock := s.lock(cmd.IncidentID)
	defer unlock()

	inc, err := s.incidents.Get(ctx, cmd.IncidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status.Terminal() {
		return nil, ErrIncidentTerminal
	}
	c, err := s.incidents.GetCommitment(ctx, inc.ID, cmd.ResponderID)
	if errors.Is(err, incident.ErrNotFound) {
		return nil, ErrNotCommitted
	}
	if err != nil {
		return nil, err
	}
	if !incident.CanAdvance(c.Status, cmd.Status) {
		return nil, ErrInvalidState
	}
	ok, err := s.incidents.UpdateCommitmentStatus(ctx, inc.ID, c.ResponderID, c.Status, cmd.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, incident.ErrConflict
	}
	c.Status = cmd.Status

	s.publish(ctx, notify.ToIncident(inc.ID), inc.ID, notify.CommitmentUpdate{
		IncidentID:     inc.ID,
		ResponderID:    c.ResponderID,
		Status:         string(c.Status),
		IncidentStatus: string(inc.Status),
		Helpers:        s.helperCount(ctx, inc.ID),
	})
	return c, nil
}

// ---------------------------------------------------------------------------
// Closing
// ---------------------------------------------------------------------------

// Resolve closes the incident and rewards every committed responder once.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) (*incident.Incident, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}

	inc, commitments, err := s.close(ctx, cmd.IncidentID, cmd.ActorID, incident.StatusResolved, incident.EventResolved)
	if err != nil {
		return nil, err
	}

	for _, c := range commitments {
		if err := s.rewards.ApplyReward(ctx, c.ResponderID, responder.RescueReward); err != nil {
			s.logger.Warn().Err(err).
				Str("incident_id", inc.ID.String()).
				Str("responder_id", c.ResponderID.String()).
				Msg("rescue reward failed")
		}
	}
	s.finish(ctx, inc, cmd.ActorID)
	return inc, nil
}

// MarkFalseAlarm closes an incident that is still searching and lowers the
// reporter's trust.
func (s *Service) MarkFalseAlarm(ctx context.Context, cmd FalseAlarmCommand) (*incident.Incident, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}

	inc, _, err := s.close(ctx, cmd.IncidentID, cmd.ActorID, incident.StatusFalseAlarm, incident.EventFalseAlarm)
	if err != nil {
		return nil, err
	}

	if err := s.rewards.ApplyReward(ctx, inc.ReporterID, responder.FalseAlarmPenalty); err != nil {
		s.logger.Warn().Err(err).
			Str("incident_id", inc.ID.String()).
			Str("reporter_id", inc.ReporterID.String()).
			Msg("false alarm penalty failed")
	}
	s.finish(ctx, inc, cmd.ActorID)
	return inc, nil
}

// close moves the incident to a terminal status under its lock and stops
// escalation. It returns the updated incident and its commitments.
func (s *Service) close(ctx context.Context, id, actor types.ID, to incident.Status, ev incident.EventType) (*incident.Incident, []*incident.Commitment, error) {
	r, unlock := s.lock(id)
	defer unlock()

	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if inc.Status.Terminal() {
		return nil, nil, ErrIncidentTerminal
	}
	if !incident.CanTransition(inc.Status, to) {
		return nil, nil, ErrInvalidState
	}

	now := s.clock.Now()
	ok, err := s.incidents.UpdateStatus(ctx, id, inc.Status, to, inc.StatusVersion, incident.StatusPatch{ResolvedAt: &now})
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, incident.ErrConflict
	}
	s.stopEscalationLocked(r, id)

	commitments, err := s.incidents.ListCommitments(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("incident_id", id.String()).Msg("listing commitments after close failed")
	}

	prev := inc.Status
	inc.Status = to
	inc.StatusVersion++
	inc.ResolvedAt = &now
	s.appendEvent(ctx, &incident.Event{
		IncidentID:   id,
		Type:         ev,
		FromStatus:   prev,
		ActorID:      &actor,
		ToStatus:     to,
		ResponseTime: inc.ResponseTime,
		CreatedAt:    now,
	})
	return inc, commitments, nil
}

func (s *Service) finish(ctx context.Context, inc *incident.Incident, actor types.ID) {
	s.publish(ctx, notify.ToIncident(inc.ID), inc.ID, notify.Resolution{
		IncidentID: inc.ID,
		Status:     string(inc.Status),
		At:         *inc.ResolvedAt,
	})
	s.scheduler.Forget(inc.ID)

	s.logger.Info().
		Str("incident_id", inc.ID.String()).
		Str("actor_id", actor.String()).
		Str("status", string(inc.Status)).
		Msg("incident closed")
}

// ---------------------------------------------------------------------------
// Queries and lifecycle
// ---------------------------------------------------------------------------

func (s *Service) Get(ctx context.Context, id types.ID) (*View, error) {
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	commitments, err := s.incidents.ListCommitments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Incident: inc, Commitments: commitments}, nil
}

const (
	defaultNearbyKm    = 10.0
	defaultNearbyLimit = 50
)

// Nearby lists incidents by status. With a center the store's box is
// narrowed to the exact radius and the result ordered nearest first.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]NearbyIncident, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, invalidInput(err)
	}
	if q.Center != nil && !q.Center.Valid() {
		return nil, fmt.Errorf("%w: center out of range", ErrInvalidInput)
	}
	if len(q.Statuses) == 0 {
		q.Statuses = []incident.Status{incident.StatusActive}
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = defaultNearbyKm
	}
	if q.Limit == 0 {
		q.Limit = defaultNearbyLimit
	}

	found, err := s.incidents.ListNear(ctx, incident.NearQuery{
		Statuses: q.Statuses,
		Center:   q.Center,
		RadiusKm: q.RadiusKm,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]NearbyIncident, 0, len(found))
	for _, inc := range found {
		if q.Center == nil {
			out = append(out, NearbyIncident{Incident: inc})
			continue
		}
		d := location.DistanceBetween(*q.Center, inc.Location)
		if d > q.RadiusKm {
			continue
		}
		out = append(out, NearbyIncident{Incident: inc, DistanceKm: &d})
	}
	if q.Center != nil {
		location.SortByDistance(out, func(n NearbyIncident) float64 { return *n.DistanceKm })
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Shutdown stops every engine and waits for background enrichment.
func (s *Service) Shutdown() {
	s.cancel()

	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		r.mu.Lock()
		s.detachEngineLocked(r)
		r.mu.Unlock()
	}
	s.bg.Wait()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Service) helperCount(ctx context.Context, id types.ID) int {
	cs, err := s.incidents.ListCommitments(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("incident_id", id.String()).Msg("counting helpers failed")
		return 0
	}
	return len(cs)
}

func (s *Service) appendEvent(ctx context.Context, e *incident.Event) {
	if err := s.incidents.AppendEvent(ctx, e); err != nil {
		s.logger.Warn().Err(err).
			Str("incident_id", e.IncidentID.String()).
			Str("event", string(e.Type)).
			Msg("append incident event failed")
	}
}

func (s *Service) publish(ctx context.Context, to notify.Recipient, incidentID types.ID, ev notify.Event) {
	err := s.transport.Deliver(ctx, notify.Envelope{Recipient: to, IncidentID: incidentID, Event: ev})
	if err != nil {
		metrics.Notifications.WithLabelValues(ev.Kind(), metrics.OutcomeFailed).Inc()
		s.logger.Warn().Err(err).
			Str("incident_id", incidentID.String()).
			Str("event", ev.Kind()).
			Msg("publish failed")
	}
}

func summaryOf(inc *incident.Incident) notify.Summary {
	return notify.Summary{
		IncidentID:          inc.ID,
		Type:                inc.Type,
		Severity:            string(inc.Severity),
		Location:            inc.Location,
		RadiusKm:            inc.CurrentRadiusKm,
		RequiredResource:    inc.RequiredResource,
		Description:         inc.Description,
		AuthoritiesNotified: inc.AuthoritiesNotified,
		CreatedAt:           inc.CreatedAt,
	}
}
