package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models talentline.yml.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	SLA      SLAConfig      `yaml:"sla"`
	Auth     AuthConfig     `yaml:"auth"`
}

// PipelineConfig is the injected stage template: the default ordered
// stage list, the mandatory stage names, and the stage applicants land
// in. It replaces package-level stage constants so deployments can
// customize the pipeline.
type PipelineConfig struct {
	Stages           []StageTemplate `yaml:"stages"`
	Mandatory        []string        `yaml:"mandatory"`
	ApplicationStage string          `yaml:"application_stage"`
	RejectedStage    string          `yaml:"rejected_stage"`
}

type StageTemplate struct {
	Name      string   `yaml:"name"`
	Substages []string `yaml:"substages,omitempty"`
}

type SLAConfig struct {
	// Defaults maps lower-cased stage name to threshold days. Stages
	// absent from the map carry no SLA.
	Defaults          map[string]int `yaml:"defaults"`
	FeedbackGraceDays int            `yaml:"feedback_grace_days"`
}

type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AllowLegacyUserHeader bool   `yaml:"allow_legacy_user_header"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run tl init or create it from the default template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Pipeline.Stages) == 0 {
		return fmt.Errorf("config.pipeline.stages is required")
	}
	seen := map[string]bool{}
	for _, st := range c.Pipeline.Stages {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return fmt.Errorf("config.pipeline.stages contains a blank stage name")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("config.pipeline.stages repeats stage %s", name)
		}
		seen[key] = true
		for _, sub := range st.Substages {
			if strings.TrimSpace(sub) == "" {
				return fmt.Errorf("stage %s has a blank substage name", name)
			}
		}
	}
	if len(c.Pipeline.Mandatory) == 0 {
		return fmt.Errorf("config.pipeline.mandatory is required")
	}
	for _, name := range c.Pipeline.Mandatory {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.pipeline.mandatory contains a blank name")
		}
	}
	if strings.TrimSpace(c.Pipeline.ApplicationStage) == "" {
		return fmt.Errorf("config.pipeline.application_stage is required")
	}
	if strings.TrimSpace(c.Pipeline.RejectedStage) == "" {
		return fmt.Errorf("config.pipeline.rejected_stage is required")
	}
	if !c.HasMandatory(c.Pipeline.RejectedStage) {
		return fmt.Errorf("config.pipeline.rejected_stage %s must be listed as mandatory", c.Pipeline.RejectedStage)
	}
	for key, days := range c.SLA.Defaults {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("config.sla.defaults contains a blank stage key")
		}
		if key != strings.ToLower(key) {
			return fmt.Errorf("config.sla.defaults key %s must be lower-case", key)
		}
		if days <= 0 {
			return fmt.Errorf("config.sla.defaults.%s must be a positive day count", key)
		}
	}
	if c.SLA.FeedbackGraceDays < 0 {
		return fmt.Errorf("config.sla.feedback_grace_days must not be negative")
	}
	return nil
}

// HasMandatory reports whether name is in the mandatory stage set,
// case-insensitively.
func (c *Config) HasMandatory(name string) bool {
	for _, m := range c.Pipeline.Mandatory {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "talentline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `pipeline:
  stages:
    - name: Queue
    - name: Applied
    - name: Screening
    - name: Shortlisted
    - name: Interview
      substages: [Phone Screen, Technical, Culture Fit]
    - name: Selected
    - name: Offer
    - name: Hired

  mandatory: [Applied, Rejected]
  application_stage: Applied
  rejected_stage: Rejected

sla:
  defaults:
    queue: 7
    applied: 3
    screening: 5
    shortlisted: 7
    interview: 10
    selected: 5
    offer: 7
  feedback_grace_days: 2

auth:
  jwt_secret: ""
  allow_legacy_user_header: true
`
