// README: Radius schedule: which search radius applies how long after an incident was raised.
package radius

import (
	"errors"
	"fmt"
	"time"

	"herodispatch/internal/modules/incident"
)

// Step is one radius level and the offset from incident creation at which it applies.
type Step struct {
	Level    int
	RadiusKm float64
	At       time.Duration
}

type Schedule struct {
	Standard []Step
	Critical []Step
}

// DefaultSchedule starts critical incidents one level wider.
func DefaultSchedule() Schedule {
	return Schedule{
		Standard: []Step{
			{Level: 0, RadiusKm: 0.5, At: 0},
			{Level: 1, RadiusKm: 2, At: 20 * time.Second},
			{Level: 2, RadiusKm: 5, At: 40 * time.Second},
		},
		Critical: []Step{
			{Level: 1, RadiusKm: 2, At: 0},
			{Level: 2, RadiusKm: 5, At: 20 * time.Second},
			{Level: 3, RadiusKm: 10, At: 40 * time.Second},
		},
	}
}

func (s Schedule) Steps(sev incident.Severity) []Step {
	if sev == incident.SeverityCritical {
		return s.Critical
	}
	return s.Standard
}

// StepAt returns the step in force after elapsed has passed since creation.
func (s Schedule) StepAt(sev incident.Severity, elapsed time.Duration) Step {
	steps := s.Steps(sev)
	return steps[indexAt(steps, elapsed)]
}

func indexAt(steps []Step, elapsed time.Duration) int {
	idx := 0
	for i, st := range steps {
		if st.At <= elapsed {
			idx = i
		}
	}
	return idx
}

// Validate requires both tables to start at 0 and grow strictly in time,
// level and radius.
func (s Schedule) Validate() error {
	return errors.Join(validateSteps("standard", s.Standard), validateSteps("critical", s.Critical))
}

func validateSteps(name string, steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%s schedule is empty", name)
	}
	if steps[0].At != 0 {
		return fmt.Errorf("%s schedule must start at 0", name)
	}
	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if cur.At <= prev.At || cur.Level <= prev.Level || cur.RadiusKm <= prev.RadiusKm {
			return fmt.Errorf("%s schedule step %d does not grow", name, i)
		}
	}
	return nil
}
