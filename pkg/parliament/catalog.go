// Package parliament holds the expert panel: the persona catalog, the
// parallel proposal collector, the question synthesizer, and the chair
// that produces the final structured recommendation.
package parliament

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"parliament/pkg/extdomain"
)

//go:embed personas.yaml
var personasYAML []byte

// Persona is one core panel member. ChairID is the short identifier
// the chair uses when selecting experts for the final response.
type Persona struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SchoolName   string `yaml:"school"`
	ChairID      string `yaml:"chair_id"`
	SystemPrompt string `yaml:"system_prompt"`
}

// SpecialistPersona is an out-of-mandate specialist, activated only
// after the user approves adding it.
type SpecialistPersona struct {
	Domain       string `yaml:"domain"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
}

type catalogFile struct {
	Experts     []Persona           `yaml:"experts"`
	Specialists []SpecialistPersona `yaml:"specialists"`
}

// Catalog is the loaded panel roster. Immutable after load.
type Catalog struct {
	experts     []Persona
	byID        map[string]Persona
	specialists map[string]SpecialistPersona
}

// LoadCatalog parses the embedded roster. Called once at startup.
func LoadCatalog() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(personasYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if len(file.Experts) == 0 {
		return nil, fmt.Errorf("persona catalog has no experts")
	}

	c := &Catalog{
		experts:     file.Experts,
		byID:        make(map[string]Persona, len(file.Experts)),
		specialists: make(map[string]SpecialistPersona, len(file.Specialists)),
	}
	for _, p := range file.Experts {
		if p.ID == "" || p.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q is missing id or system prompt", p.Name)
		}
		c.byID[p.ID] = p
	}
	for _, s := range file.Specialists {
		c.specialists[s.Domain] = s
	}
	return c, nil
}

// Experts returns the core panel members in roster order.
func (c *Catalog) Experts() []Persona {
	out := make([]Persona, len(c.experts))
	copy(out, c.experts)
	return out
}

// Expert looks up one core panel member by id.
func (c *Catalog) Expert(id string) (Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Specialist returns the outside specialist for a detected domain.
func (c *Catalog) Specialist(domain extdomain.DomainType) (SpecialistPersona, bool) {
	s, ok := c.specialists[string(domain)]
	return s, ok
}

// SchoolName resolves a persona id to its school, falling back to the
// id itself for unknown speakers.
func (c *Catalog) SchoolName(id string) string {
	if p, ok := c.byID[id]; ok {
		return p.SchoolName
	}
	return id
}

// validChairIDs are the short expert identifiers the chair may return
// in selected_experts.
var validChairIDs = map[string]bool{
	"psychodynamic":  true,
	"stoic":          true,
	"cbt":            true,
	"sociological":   true,
	"organizational": true,
	"dbt":            true,
}

// NormalizeChairExpertID maps an arbitrary model-provided id onto the
// known set, defaulting to cbt for anything unrecognized.
func NormalizeChairExpertID(id string) string {
	if validChairIDs[id] {
		return id
	}
	return "cbt"
}
