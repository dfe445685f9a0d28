// Package dto holds the loose, file-facing shapes of stage graph definitions.
package dto

// GraphDefinition is a stage graph as written in YAML, JSON or front-matter.
// It uses "mapstructure" tags so every loader can decode it from a raw map.
type GraphDefinition struct {
	ID            string                 `json:"id" mapstructure:"id"`
	Name          string                 `json:"name,omitempty" mapstructure:"name"`
	Description   string                 `json:"description,omitempty" mapstructure:"description"`
	Start         string                 `json:"start,omitempty" mapstructure:"start"`
	OverrideRoles []string               `json:"override_roles,omitempty" mapstructure:"override_roles"`
	Stages        []StageDefinition      `json:"stages" mapstructure:"stages"`
	Transitions   []TransitionDefinition `json:"transitions,omitempty" mapstructure:"transitions"`
}

// StageDefinition describes one stage and its outgoing edges.
type StageDefinition struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name,omitempty" mapstructure:"name"`
	// Type is task (default), parallel, branch or terminal.
	Type  string   `json:"type,omitempty" mapstructure:"type"`
	Order *float64 `json:"order,omitempty" mapstructure:"order"`
	Role  string   `json:"role,omitempty" mapstructure:"role"`
	// Parent is required for branch stages.
	Parent  string   `json:"parent,omitempty" mapstructure:"parent"`
	Actions []string `json:"actions,omitempty" mapstructure:"actions"`

	// On maps an action to the stage it moves to.
	On map[string]string `json:"on,omitempty" mapstructure:"on"`
	// Fork maps an action to the parallel stage whose branches it opens.
	Fork map[string]string `json:"fork,omitempty" mapstructure:"fork"`
	// Join (parallel stages only) maps the branch completion action to the stage reached after fan-in.
	Join map[string]string `json:"join,omitempty" mapstructure:"join"`
}

// TransitionDefinition is an explicit edge, for graphs that prefer listing
// transitions over per-stage "on" maps.
type TransitionDefinition struct {
	From    []string `json:"from" mapstructure:"from"`
	To      []string `json:"to" mapstructure:"to"`
	Trigger string   `json:"trigger" mapstructure:"trigger"`
}
