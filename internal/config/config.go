// Package config loads the runtime's on-disk configuration: the agent
// type catalogue and pool templates, following the teacher's
// agents.LoadTeamsConfig / internal/types.TeamsConfig yaml.v3 shape.
package config

import (
	"fmt"
	"os"

	"github.com/cliaimonitor/agentctl/internal/types"
	"gopkg.in/yaml.v3"
)

// Runtime is the top-level on-disk configuration document.
type Runtime struct {
	Agents    []types.AgentConfig `yaml:"agents"`
	Templates []types.Template    `yaml:"templates"`
	NATSURL   string              `yaml:"natsUrl,omitempty"`
	// NATSEmbeddedPort is used to start an in-process NATS server when
	// NATSURL is left blank, instead of dialing an external one.
	NATSEmbeddedPort int    `yaml:"natsEmbeddedPort,omitempty"`
	HTTPAddr         string `yaml:"httpAddr,omitempty"`
	DBPath           string `yaml:"dbPath"`
}

// Load reads and parses a Runtime document from path.
func Load(path string) (Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var rt Runtime
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return Runtime{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if rt.DBPath == "" {
		rt.DBPath = "agentctl.db"
	}
	return rt, nil
}

// AgentConfigByType returns the named agent type's config from rt, or
// false if not found.
func (rt Runtime) AgentConfigByType(agentType string) (types.AgentConfig, bool) {
	for _, c := range rt.Agents {
		if c.Type == agentType {
			return c, true
		}
	}
	return types.AgentConfig{}, false
}
