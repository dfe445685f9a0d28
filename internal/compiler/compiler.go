// Package compiler turns stage graph definitions (YAML, JSON or loader
// front-matter) into validated domain graphs.
package compiler

import (
	"fmt"
	"slices"

	"github.com/aretw0/redline/internal/dto"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/dsl"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parser is responsible for converting raw definitions into stage graphs.
type Parser struct {
	// Strict rejects unknown keys. Loaders reading free-form front-matter leave it off.
	Strict bool
}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a YAML or JSON document and compiles it.
func (p *Parser) Parse(data []byte) (*domain.StageGraph, error) {
	return p.ParseAs(data, "")
}

// ParseAs is Parse with an ID for documents that do not declare one.
func (p *Parser) ParseAs(data []byte, fallbackID string) (*domain.StageGraph, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGraph, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty definition", domain.ErrInvalidGraph)
	}
	return p.Compile(raw, fallbackID)
}

// Compile builds a graph from a decoded map. fallbackID is used when the
// definition does not name itself (e.g. the file name).
func (p *Parser) Compile(raw map[string]any, fallbackID string) (*domain.StageGraph, error) {
	def, err := p.Decode(raw)
	if err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = fallbackID
	}
	return Build(def)
}

// Decode maps raw keys onto the definition DTO.
func (p *Parser) Decode(raw map[string]any) (*dto.GraphDefinition, error) {
	var def dto.GraphDefinition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &def,
		WeaklyTypedInput: true,
		ErrorUnused:      p.Strict,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGraph, err)
	}
	return &def, nil
}

// Build compiles a definition through the dsl builder, so file graphs get the
// same defaults (declaration order, join permissions) as code-built ones.
func Build(def *dto.GraphDefinition) (*domain.StageGraph, error) {
	b := dsl.New(def.ID).Name(def.Name).Describe(def.Description)
	if def.Start != "" {
		b.Start(domain.StageID(def.Start))
	}
	for _, r := range def.OverrideRoles {
		b.Overrides(domain.Role(r))
	}

	for i, sd := range def.Stages {
		if sd.ID == "" {
			return nil, fmt.Errorf("%w: stage at position %d has no id", domain.ErrInvalidGraph, i)
		}
		id := domain.StageID(sd.ID)

		var sb *dsl.StageBuilder
		switch domain.StageType(sd.Type) {
		case "", domain.StageTypeTask:
			sb = b.Stage(id)
		case domain.StageTypeTerminal:
			sb = b.Stage(id).Terminal()
		case domain.StageTypeParallel:
			sb = b.Parallel(id)
		case domain.StageTypeBranch:
			sb = b.Branch(domain.StageID(sd.Parent), id)
		default:
			return nil, fmt.Errorf("%w: stage %q has invalid type %q", domain.ErrInvalidGraph, sd.ID, sd.Type)
		}

		sb.Name(sd.Name).Role(domain.Role(sd.Role))
		if sd.Order != nil {
			sb.Order(*sd.Order)
		}
		for _, a := range sd.Actions {
			action, err := domain.ParseAction(a)
			if err != nil {
				return nil, fmt.Errorf("%w: stage %q: %v", domain.ErrInvalidGraph, sd.ID, err)
			}
			sb.Allow(action)
		}

		edges := []struct {
			m   map[string]string
			add func(domain.Action, domain.StageID) *dsl.StageBuilder
		}{
			{sd.On, sb.On},
			{sd.Fork, sb.Fork},
			{sd.Join, sb.Join},
		}
		for _, e := range edges {
			for _, key := range sortedKeys(e.m) {
				action, err := domain.ParseAction(key)
				if err != nil {
					return nil, fmt.Errorf("%w: stage %q: %v", domain.ErrInvalidGraph, sd.ID, err)
				}
				e.add(action, domain.StageID(e.m[key]))
			}
		}
	}

	for i, td := range def.Transitions {
		action, err := domain.ParseAction(td.Trigger)
		if err != nil {
			return nil, fmt.Errorf("%w: transition %d: %v", domain.ErrInvalidGraph, i, err)
		}
		b.Transition(stageIDs(td.From), action, stageIDs(td.To))
	}

	return b.Build()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func stageIDs(ss []string) []domain.StageID {
	ids := make([]domain.StageID, len(ss))
	for i, s := range ss {
		ids[i] = domain.StageID(s)
	}
	return ids
}
