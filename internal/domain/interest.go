package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LayerSpec attributes a set of raw kernel event names to one logical layer
// of the model. Because the same kernel name can appear several times per
// iteration across different layers, each direction also declares which
// occurrence index (0-based, per stream, per iteration) of a same-named
// event belongs to this layer.
type LayerSpec struct {
	Name string `yaml:"name" json:"name"`

	ForwardEvents     []string `yaml:"forward_events" json:"forward_events"`
	ForwardOccurrence int      `yaml:"forward_occurrence" json:"forward_occurrence"`

	// BackwardEvents is optional; a layer with no backward events is only
	// matched against its forward occurrence slot.
	BackwardEvents     []string `yaml:"backward_events,omitempty" json:"backward_events,omitempty"`
	BackwardOccurrence int      `yaml:"backward_occurrence,omitempty" json:"backward_occurrence,omitempty"`
}

// InterestSpec declares which profiled events a caller cares about and which
// logical layer each one belongs to. Layer order is significant: when two
// layers claim the same (event, occurrence) slot, the first declared layer
// wins. That resolution mirrors the native profiler's schedule semantics and
// is the caller's responsibility to avoid; Validate surfaces such overlaps.
type InterestSpec struct {
	Layers []*LayerSpec `yaml:"layers" json:"layers"`
}

// LoadInterestSpec reads an InterestSpec from a YAML file.
func LoadInterestSpec(path string) (*InterestSpec, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	spec := &InterestSpec{}
	if err := yaml.Unmarshal(file, spec); err != nil {
		return nil, fmt.Errorf("failed to parse interest spec \"%s\": %w", path, err)
	}

	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("%w: interest spec \"%s\" declares no layers", ErrNoInterestSpec, path)
	}

	return spec, nil
}

// Match resolves an event occurrence against the spec. It scans layers in
// declaration order, checking each layer's forward slot before its backward
// slot, and returns the first layer claiming the (name, occurrence) pair.
// Events matching no layer are simply not interesting.
func (s *InterestSpec) Match(name string, occurrence int) (layer string, ok bool) {
	for _, l := range s.Layers {
		if l.ForwardOccurrence == occurrence && containsName(l.ForwardEvents, name) {
			return l.Name, true
		}
		if len(l.BackwardEvents) > 0 && l.BackwardOccurrence == occurrence && containsName(l.BackwardEvents, name) {
			return l.Name, true
		}
	}
	return "", false
}

// Validate reports overlapping occurrence claims: two layers (or the two
// directions of one layer) claiming the same (event, occurrence) slot. The
// spec remains usable; labeling resolves overlaps first-match-wins.
func (s *InterestSpec) Validate() []string {
	type claim struct {
		layer     string
		direction string
	}

	var warnings []string
	claimed := make(map[string]claim)

	record := func(layer, direction, event string, occurrence int) {
		slot := fmt.Sprintf("%s#%d", event, occurrence)
		if prior, ok := claimed[slot]; ok {
			warnings = append(warnings, fmt.Sprintf(
				"event \"%s\" occurrence %d is claimed by both %s (%s) and %s (%s); the first declared layer wins",
				event, occurrence, prior.layer, prior.direction, layer, direction))
			return
		}
		claimed[slot] = claim{layer: layer, direction: direction}
	}

	for _, l := range s.Layers {
		for _, event := range l.ForwardEvents {
			record(l.Name, "forward", event, l.ForwardOccurrence)
		}
		for _, event := range l.BackwardEvents {
			record(l.Name, "backward", event, l.BackwardOccurrence)
		}
	}

	return warnings
}

// EventNames flattens the spec into the deduplicated list of raw event names
// it references, in order of first appearance (layers in declaration order,
// forward events before backward events within each layer). This is the
// payload of the interest file consumed by the native instrumentation layer.
func (s *InterestSpec) EventNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(s.Layers)*2)

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, l := range s.Layers {
		for _, event := range l.ForwardEvents {
			add(event)
		}
		for _, event := range l.BackwardEvents {
			add(event)
		}
	}

	return names
}

// DLRMInterestSpec is the interest table for the reference DLRM model: the
// bottom/top MLP blocks, the sparse embedding, and the interaction layer,
// with the forward/backward occurrence indices of their fused kernels. The
// backward occurrence indices run in reverse layer order because the
// backward pass replays the same kernel names back-to-front.
func DLRMInterestSpec() *InterestSpec {
	return &InterestSpec{Layers: []*LayerSpec{
		{Name: "BottomMLP.fc1", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 0, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 6},
		{Name: "BottomMLP.fc2", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 1, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 5},
		{Name: "BottomMLP.fc3", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 2, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 4},
		{Name: "sparse_embedding1", ForwardEvents: []string{"embedding.forward"}, ForwardOccurrence: 0, BackwardEvents: []string{"embedding.backward"}, BackwardOccurrence: 0},
		{Name: "interaction1", ForwardEvents: []string{"interaction.fprop"}, ForwardOccurrence: 0, BackwardEvents: []string{"interaction.bprop"}, BackwardOccurrence: 0},
		{Name: "TopMLP.fc4", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 3, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 3},
		{Name: "TopMLP.fc5", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 4, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 2},
		{Name: "TopMLP.fc6", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 5, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 1},
		{Name: "TopMLP.fc7", ForwardEvents: []string{"fc.fprop"}, ForwardOccurrence: 6, BackwardEvents: []string{"fc.bprop"}, BackwardOccurrence: 0},
		{Name: "TopMLP.fc8", ForwardEvents: []string{"fc8.fprop"}, ForwardOccurrence: 0, BackwardEvents: []string{"fc8.bprop"}, BackwardOccurrence: 0},
	}}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
