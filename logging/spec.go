package logging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Spec is a base level plus per-component overrides, written as
// "<level>[,<component>=<level>]...", for example
// "info,kmem=trace,store=debug".
type Spec struct {
	BaseLevel  Level
	Components map[string]Level
}

// ParseSpec parses a log spec. An empty string means info with no
// overrides. A bare level is only accepted in first position.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{BaseLevel: LevelInfo, Components: map[string]Level{}}

	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		component, levelStr, isOverride := strings.Cut(part, "=")
		if !isOverride {
			if i != 0 {
				return spec, fmt.Errorf("base level %q must be first in spec", part)
			}
			level, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.BaseLevel = level
			continue
		}

		component = strings.TrimSpace(component)
		if component == "" {
			return spec, fmt.Errorf("empty component name in %q", part)
		}
		level, err := ParseLevel(levelStr)
		if err != nil {
			return spec, fmt.Errorf("invalid level for component %q: %w", component, err)
		}
		spec.Components[component] = level
	}

	return spec, nil
}

// LevelFor returns the effective level for component.
func (s *Spec) LevelFor(component string) Level {
	if level, ok := s.Components[component]; ok {
		return level
	}
	return s.BaseLevel
}

// String returns the spec in parseable form with components sorted.
func (s *Spec) String() string {
	parts := []string{s.BaseLevel.String()}
	for _, component := range slices.Sorted(maps.Keys(s.Components)) {
		parts = append(parts, component+"="+s.Components[component].String())
	}
	return strings.Join(parts, ",")
}
