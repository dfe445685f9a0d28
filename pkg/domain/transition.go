package domain

import (
	"slices"
	"strings"
)

// Transition defines a rule to move from a set of stages to another set of stages.
//
// A plain transition has one source and one target. A fan-out has one source and
// several branch targets sharing a parent. A fan-in has all branches of a parent as
// sources; it fires once every branch has performed the Trigger.
type Transition struct {
	From    []StageID `json:"from" yaml:"from"`
	To      []StageID `json:"to" yaml:"to"`
	Trigger Action    `json:"trigger" yaml:"trigger"`
}

// HasSource reports whether id is one of the transition's sources.
func (t Transition) HasSource(id StageID) bool {
	return slices.Contains(t.From, id)
}

// fromKey returns a canonical key for the source set, used to detect ambiguous edges.
func (t Transition) fromKey() string {
	ids := make([]string, len(t.From))
	for i, id := range t.From {
		ids[i] = string(id)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",") + "|" + string(t.Trigger)
}

// sameStages reports whether a and b contain the same stage IDs, ignoring order.
func sameStages(a, b []StageID) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
