package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Pipeline.Stages) != 8 {
		t.Fatalf("template stages = %d, want 8", len(cfg.Pipeline.Stages))
	}
	if cfg.Pipeline.ApplicationStage != "Applied" || cfg.Pipeline.RejectedStage != "Rejected" {
		t.Fatalf("entry/rejected stages = %q/%q", cfg.Pipeline.ApplicationStage, cfg.Pipeline.RejectedStage)
	}
	if !cfg.HasMandatory("applied") || !cfg.HasMandatory("REJECTED") {
		t.Fatal("mandatory lookup not case-insensitive")
	}
	if cfg.SLA.FeedbackGraceDays != 2 {
		t.Fatalf("feedback grace = %d, want 2", cfg.SLA.FeedbackGraceDays)
	}
	if !cfg.Auth.AllowLegacyUserHeader {
		t.Fatal("legacy header default off")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.SLA.Defaults["interview"] != 10 {
		t.Fatalf("interview default = %d, want 10", cfg.SLA.Defaults["interview"])
	}
}

func TestFromYAMLRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"no stages",
			"pipeline:\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Applied\n",
			"stages is required",
		},
		{
			"blank stage name",
			"pipeline:\n  stages: [{name: \"  \"}]\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Applied\n",
			"blank stage name",
		},
		{
			"duplicate stage",
			"pipeline:\n  stages: [{name: Screen}, {name: screen}]\n  mandatory: [Screen]\n  application_stage: Screen\n  rejected_stage: Screen\n",
			"repeats stage",
		},
		{
			"rejected not mandatory",
			"pipeline:\n  stages: [{name: Applied}]\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Rejected\n",
			"must be listed as mandatory",
		},
		{
			"upper-case sla key",
			"pipeline:\n  stages: [{name: Applied}]\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Applied\nsla:\n  defaults:\n    Applied: 3\n",
			"must be lower-case",
		},
		{
			"non-positive sla days",
			"pipeline:\n  stages: [{name: Applied}]\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Applied\nsla:\n  defaults:\n    applied: 0\n",
			"positive day count",
		},
		{
			"negative grace",
			"pipeline:\n  stages: [{name: Applied}]\n  mandatory: [Applied]\n  application_stage: Applied\n  rejected_stage: Applied\nsla:\n  feedback_grace_days: -1\n",
			"must not be negative",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg != nil {
		t.Fatal("missing file returned a config")
	}
	if err := os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || len(cfg.Pipeline.Stages) == 0 {
		t.Fatalf("config not loaded: %+v", cfg)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Pipeline.Stages) != 8 {
		t.Fatalf("stages = %d, want 8", len(cfg.Pipeline.Stages))
	}
	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestLoadMissingMentionsInit(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "tl init") {
		t.Fatalf("error = %v, want hint to run tl init", err)
	}
}

func TestPath(t *testing.T) {
	if got := Path(""); got != filepath.Join(".", "talentline.yml") {
		t.Fatalf("empty workspace path = %q", got)
	}
	if got := Path("/tmp/ws"); got != filepath.Join("/tmp/ws", "talentline.yml") {
		t.Fatalf("path = %q", got)
	}
}
