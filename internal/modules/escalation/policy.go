// README: Escalation policy: tier tables that turn a candidate into timed notification assignments.
package escalation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/types"
)

type Kind string

const (
	// KindRole matches inner-ring candidates by profession keyword or role.
	KindRole Kind = "role"
	// KindCatchAll matches every inner-ring candidate.
	KindCatchAll Kind = "catch_all"
	// KindResource matches candidates carrying the incident's required resource.
	KindResource Kind = "resource"
	// KindBand matches candidates in the (MinKm, MaxKm] distance band.
	KindBand Kind = "distance_band"
)

type Tier struct {
	Label    string        `yaml:"label"`
	Kind     Kind          `yaml:"kind"`
	Keywords []string      `yaml:"keywords,omitempty"`
	Roles    []string      `yaml:"roles,omitempty"`
	MinKm    float64       `yaml:"min_km,omitempty"`
	MaxKm    float64       `yaml:"max_km,omitempty"`
	Delay    time.Duration `yaml:"delay"`
	// Severities restricts the tier to some severities; empty means all.
	Severities []incident.Severity `yaml:"severities,omitempty"`
}

type Policy struct {
	InnerRingKm float64 `yaml:"inner_ring_km"`
	Tiers       []Tier  `yaml:"tiers"`
}

// Input is the incident context for one classification. Elapsed is the time
// since escalation started at the moment the wave is built.
type Input struct {
	Severity         incident.Severity
	RequiredResource string
	Elapsed          time.Duration
}

type Assignment struct {
	ResponderID types.ID
	Tier        string
	Kind        Kind
	Resource    string
	Delay       time.Duration
	DistanceKm  float64
}

// DefaultPolicy returns the built-in tier table.
func DefaultPolicy() Policy {
	return Policy{
		InnerRingKm: 0.5,
		Tiers: []Tier{
			{
				Label:    "Medical",
				Kind:     KindRole,
				Keywords: []string{"doctor", "surgeon", "cardiologist", "nurse", "paramedic", "emt"},
				Roles:    []string{"doctor"},
				Delay:    0,
			},
			{
				Label:    "Fire",
				Kind:     KindRole,
				Keywords: []string{"firefighter", "fire fighter", "fire brigade"},
				Delay:    5 * time.Second,
			},
			{
				Label:    "Police",
				Kind:     KindRole,
				Keywords: []string{"police", "police officer"},
				Roles:    []string{"traffic"},
				Delay:    10 * time.Second,
			},
			{Label: "All Citizens", Kind: KindCatchAll, Delay: 15 * time.Second},
			{Label: "Blood Match", Kind: KindResource, Delay: 0},
			{Label: "Nearby 0.5-2km", Kind: KindBand, MinKm: 0.5, MaxKm: 2, Delay: 20 * time.Second},
			{Label: "Wider 2-5km", Kind: KindBand, MinKm: 2, MaxKm: 5, Delay: 40 * time.Second},
			{Label: "Extended 5-10km", Kind: KindBand, MinKm: 5, MaxKm: 10, Delay: 60 * time.Second},
		},
	}
}

// Classify returns one assignment per tier the candidate matches. Tiers are
// independent, so a candidate can be assigned several times.
func (p Policy) Classify(c responder.Candidate, in Input) []Assignment {
	var out []Assignment
	for _, t := range p.Tiers {
		if !t.appliesTo(in.Severity) || !p.matches(t, c, in) {
			continue
		}
		a := Assignment{
			ResponderID: c.ID,
			Tier:        t.Label,
			Kind:        t.Kind,
			Delay:       max(0, t.Delay-in.Elapsed),
			DistanceKm:  c.DistanceKm,
		}
		if t.Kind == KindResource {
			a.Resource = in.RequiredResource
		}
		out = append(out, a)
	}
	return out
}

func (p Policy) matches(t Tier, c responder.Candidate, in Input) bool {
	inner := c.DistanceKm <= p.InnerRingKm
	switch t.Kind {
	case KindRole:
		return inner && t.matchesRole(c)
	case KindCatchAll:
		return inner
	case KindResource:
		return in.RequiredResource != "" && c.BloodGroup == in.RequiredResource
	case KindBand:
		return c.DistanceKm > t.MinKm && c.DistanceKm <= t.MaxKm
	}
	return false
}

func (t Tier) matchesRole(c responder.Candidate) bool {
	if slices.Contains(t.Roles, c.Role) {
		return true
	}
	profession := strings.ToLower(c.Profession)
	if profession == "" {
		return false
	}
	for _, k := range t.Keywords {
		if strings.Contains(profession, k) {
			return true
		}
	}
	return false
}

func (t Tier) appliesTo(s incident.Severity) bool {
	return len(t.Severities) == 0 || slices.Contains(t.Severities, s)
}

// Validate checks that the table is usable.
func (p Policy) Validate() error {
	var errs []error
	if p.InnerRingKm <= 0 {
		errs = append(errs, errors.New("inner_ring_km must be positive"))
	}
	if len(p.Tiers) == 0 {
		errs = append(errs, errors.New("at least one tier is required"))
	}
	labels := make(map[string]bool, len(p.Tiers))
	for i, t := range p.Tiers {
		if t.Label == "" {
			errs = append(errs, fmt.Errorf("tier %d: label is required", i))
		} else if labels[t.Label] {
			errs = append(errs, fmt.Errorf("tier %q: duplicate label", t.Label))
		}
		labels[t.Label] = true
		if t.Delay < 0 {
			errs = append(errs, fmt.Errorf("tier %q: negative delay", t.Label))
		}
		for _, s := range t.Severities {
			if !s.Valid() {
				errs = append(errs, fmt.Errorf("tier %q: unknown severity %q", t.Label, s))
			}
		}
		switch t.Kind {
		case KindRole:
			if len(t.Keywords) == 0 && len(t.Roles) == 0 {
				errs = append(errs, fmt.Errorf("tier %q: role tier needs keywords or roles", t.Label))
			}
		case KindCatchAll, KindResource:
		case KindBand:
			if t.MaxKm <= t.MinKm || t.MinKm < 0 {
				errs = append(errs, fmt.Errorf("tier %q: band needs 0 <= min_km < max_km", t.Label))
			}
		default:
			errs = append(errs, fmt.Errorf("tier %q: unknown kind %q", t.Label, t.Kind))
		}
	}
	return errors.Join(errs...)
}
