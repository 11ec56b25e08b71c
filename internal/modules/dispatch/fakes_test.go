package dispatch

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"

	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/notify"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/types"
)

// memStore mirrors the conditional-update semantics of incident.Store.
type memStore struct {
	mu          sync.Mutex
	incidents   map[types.ID]*incident.Incident
	commitments map[types.ID][]*incident.Commitment
	events      []incident.Event
	radiusLog   map[types.ID][]int
	commitErrs  int
}

func newMemStore() *memStore {
	return &memStore{
		incidents:   map[types.ID]*incident.Incident{},
		commitments: map[types.ID][]*incident.Commitment{},
		radiusLog:   map[types.ID][]int{},
	}
}

func (m *memStore) Create(_ context.Context, inc *incident.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inc
	m.incidents[inc.ID] = &cp
	m.radiusLog[inc.ID] = []int{inc.RadiusLevel}
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *memStore) ListActive(context.Context) ([]*incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*incident.Incident
	for _, inc := range m.incidents {
		if inc.Status == incident.StatusActive {
			cp := *inc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListNear(_ context.Context, q incident.NearQuery) ([]*incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*incident.Incident
	for _, inc := range m.incidents {
		if !slices.Contains(q.Statuses, inc.Status) {
			continue
		}
		if q.Center != nil && !types.BoundsAround(*q.Center, q.RadiusKm).Contains(inc.Location) {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *incident.Incident) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	if q.Center == nil && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateRadius(_ context.Context, id types.ID, level int, radiusKm float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok || inc.Status != incident.StatusActive || inc.RadiusLevel >= level {
		return false, nil
	}
	inc.RadiusLevel, inc.CurrentRadiusKm = level, radiusKm
	m.radiusLog[id] = append(m.radiusLog[id], level)
	return true, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to incident.Status, version int, patch incident.StatusPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, incident.Transition{From: from, To: to, Version: version, Patch: patch}), nil
}

func (m *memStore) transitionLocked(id types.ID, t incident.Transition) bool {
	inc, ok := m.incidents[id]
	if !ok || inc.Status != t.From || inc.StatusVersion != t.Version {
		return false
	}
	inc.Status = t.To
	inc.StatusVersion++
	if t.Patch.AssignedResponderID != nil {
		inc.AssignedResponderID = t.Patch.AssignedResponderID
	}
	if t.Patch.ResponseTime != nil {
		inc.ResponseTime = t.Patch.ResponseTime
	}
	if t.Patch.ResolvedAt != nil {
		inc.ResolvedAt = t.Patch.ResolvedAt
	}
	return true
}

func (m *memStore) SetAddress(_ context.Context, id types.ID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.Address = address
	return nil
}

// Commit applies the transition and the insert together, or neither.
func (m *memStore) Commit(_ context.Context, c *incident.Commitment, t incident.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErrs > 0 {
		m.commitErrs--
		return false, errConnReset
	}
	for _, existing := range m.commitments[c.IncidentID] {
		if existing.ResponderID == c.ResponderID {
			return false, incident.ErrDuplicateCommitment
		}
	}
	if _, ok := m.incidents[c.IncidentID]; !ok {
		return false, incident.ErrNotFound
	}
	if t.From != t.To && !m.transitionLocked(c.IncidentID, t) {
		return false, nil
	}
	cp := *c
	m.commitments[c.IncidentID] = append(m.commitments[c.IncidentID], &cp)
	return true, nil
}

// failCommits makes the next n Commit calls fail without writing.
func (m *memStore) failCommits(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErrs = n
}

func (m *memStore) GetCommitment(_ context.Context, incidentID, responderID types.ID) (*incident.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commitments[incidentID] {
		if c.ResponderID == responderID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, incident.ErrNotFound
}

func (m *memStore) ListCommitments(_ context.Context, incidentID types.ID) ([]*incident.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*incident.Commitment, 0, len(m.commitments[incidentID]))
	for _, c := range m.commitments[incidentID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateCommitmentStatus(_ context.Context, incidentID, responderID types.ID, from, to incident.CommitmentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commitments[incidentID] {
		if c.ResponderID == responderID && c.Status == from {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *incident.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) levels(id types.ID) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.radiusLog[id]...)
}

func (m *memStore) eventTypes(id types.ID) []incident.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []incident.EventType
	for _, e := range m.events {
		if e.IncidentID == id {
			out = append(out, e.Type)
		}
	}
	return out
}

func (m *memStore) transitionsTo(id types.ID, to incident.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.IncidentID == id && e.ToStatus == to && e.FromStatus != to {
			n++
		}
	}
	return n
}

// roster is a responder.Finder over a fixed set of responders.
type roster struct {
	mu   sync.Mutex
	all  []responder.Candidate
	fail error
}

func (r *roster) FindAvailableWithinRadius(_ context.Context, _ types.Point, _ float64, _ types.ID) ([]responder.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	return append([]responder.Candidate(nil), r.all...), nil
}

func (r *roster) add(c responder.Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Available = true
	r.all = append(r.all, c)
}

func (r *roster) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

type rewardLedger struct {
	mu      sync.Mutex
	applied map[types.ID][]responder.Reward
}

func (l *rewardLedger) ApplyReward(_ context.Context, id types.ID, r responder.Reward) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied == nil {
		l.applied = map[types.ID][]responder.Reward{}
	}
	l.applied[id] = append(l.applied[id], r)
	return nil
}

func (l *rewardLedger) of(id types.ID) []responder.Reward {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]responder.Reward(nil), l.applied[id]...)
}

type outbox struct {
	mu   sync.Mutex
	envs []notify.Envelope
}

func (o *outbox) Deliver(_ context.Context, env notify.Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.envs = append(o.envs, env)
	return nil
}

func (o *outbox) ofKind(kind string) []notify.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Envelope
	for _, e := range o.envs {
		if e.Event.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

// tiersFor lists the tiers alerted to a responder, in delivery order.
func (o *outbox) tiersFor(id types.ID) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, e := range o.envs {
		if e.Recipient.ID != id {
			continue
		}
		switch ev := e.Event.(type) {
		case notify.TierAlert:
			out = append(out, ev.Tier)
		case notify.ResourceAlert:
			out = append(out, "resource:"+ev.Resource)
		}
	}
	return out
}

type stubGeocoder struct {
	address string
	err     error
}

func (g stubGeocoder) ReverseGeocode(context.Context, types.Point) (string, error) {
	return g.address, g.err
}

type harness struct {
	svc     *Service
	clock   *clock.Mock
	store   *memStore
	roster  *roster
	rewards *rewardLedger
	out     *outbox
}

func newHarness(t *testing.T, opts ...func(*Deps, *Config)) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewMock(),
		store:   newMemStore(),
		roster:  &roster{},
		rewards: &rewardLedger{},
		out:     &outbox{},
	}
	deps := Deps{
		Incidents: h.store,
		Resolver:  responder.NewResolver(h.roster),
		Rewards:   h.rewards,
		Scheduler: notify.NewScheduler(h.clock, h.out, zerolog.Nop()),
		Transport: h.out,
		Clock:     h.clock,
		Logger:    zerolog.Nop(),
	}
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&deps, &cfg)
	}
	h.svc = NewService(deps, cfg)
	t.Cleanup(h.svc.Shutdown)
	return h
}

// advance moves the mock clock in small steps so chained timers run in order.
func (h *harness) advance(d time.Duration) {
	const step = 500 * time.Millisecond
	for d > step {
		h.clock.Add(step)
		d -= step
	}
	h.clock.Add(d)
}

var (
	errFinderDown = errors.New("geo index unavailable")
	errConnReset  = errors.New("connection reset by peer")
)

func (s *Service) trackedRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Mumbai, used throughout.
var origin = types.Point{Lat: 19.076, Lng: 72.8777}

// north returns a point km kilometres due north of origin.
func north(km float64) types.Point {
	return types.Point{Lat: origin.Lat + km/111.19492664455873, Lng: origin.Lng}
}
