// README: YAML loading for escalation policies.
package escalation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads a policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("escalation.LoadPolicy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes and validates a YAML policy. Delays are Go duration
// strings ("5s", "1m"). Keywords are matched case-insensitively.
func ParsePolicy(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("escalation.ParsePolicy: %w", err)
	}
	for i := range p.Tiers {
		for j, k := range p.Tiers[i].Keywords {
			p.Tiers[i].Keywords[j] = strings.ToLower(k)
		}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("escalation.ParsePolicy: %w", err)
	}
	return p, nil
}
