// Package rules evaluates auto-rejection rule sets against a candidate
// snapshot. The evaluator is pure: no store access, no side effects. A
// rule set is validated at write time; Evaluate assumes a well-formed
// set and never fails on one.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"talentline/internal/domain"
)

const (
	VersionLegacy     = "legacy"
	VersionStructured = "structured"
)

// Rule fields allowed in structured sets.
const (
	FieldExperience        = "experience"
	FieldLocation          = "location"
	FieldSkills            = "skills"
	FieldEducation         = "education"
	FieldSalaryExpectation = "salary_expectation"
)

var allowedOperators = map[string]bool{
	"equals":                true,
	"not_equals":            true,
	"greater_than":          true,
	"less_than":             true,
	"greater_than_or_equal": true,
	"less_than_or_equal":    true,
	"contains":              true,
	"not_contains":          true,
	"in":                    true,
	"not_in":                true,
}

var allowedFields = map[string]bool{
	FieldExperience:        true,
	FieldLocation:          true,
	FieldSkills:            true,
	FieldEducation:         true,
	FieldSalaryExpectation: true,
}

// LegacyRules is the first-generation rule shape.
type LegacyRules struct {
	MinExperience     *float64 `json:"min_experience,omitempty"`
	MaxExperience     *float64 `json:"max_experience,omitempty"`
	RequiredSkills    []string `json:"required_skills,omitempty"`
	RequiredEducation []string `json:"required_education,omitempty"`
}

// Rule is one structured requirement a candidate must satisfy.
type Rule struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RuleSet is the tagged union of both rule generations. The version tag
// is decided at write time; untagged persisted payloads are migrated by
// shape exactly once when decoded.
type RuleSet struct {
	Version string
	Enabled bool
	Legacy  *LegacyRules
	Rules   []Rule
}

// Decision is the evaluation outcome. Reason is a human-readable
// description of the failed criterion, suitable for embedding verbatim
// into an audit description.
type Decision struct {
	ShouldReject bool   `json:"should_reject"`
	Reason       string `json:"reason,omitempty"`
}

// ValidationError reports a malformed rule set with a field-level
// message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ruleSetWire struct {
	Version string          `json:"version,omitempty"`
	Enabled *bool           `json:"enabled"`
	Rules   json.RawMessage `json:"rules,omitempty"`
}

// MarshalJSON always emits the tagged form.
func (s RuleSet) MarshalJSON() ([]byte, error) {
	enabled := s.Enabled
	w := ruleSetWire{Version: s.Version, Enabled: &enabled}
	switch s.Version {
	case VersionStructured:
		rules := s.Rules
		if rules == nil {
			rules = []Rule{}
		}
		data, err := json.Marshal(rules)
		if err != nil {
			return nil, err
		}
		w.Rules = data
	default:
		legacy := s.Legacy
		if legacy == nil {
			legacy = &LegacyRules{}
		}
		data, err := json.Marshal(legacy)
		if err != nil {
			return nil, err
		}
		w.Rules = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes either generation. Untagged payloads are
// resolved by the shape of "rules" (array = structured, object =
// legacy) and come out carrying the tag.
func (s *RuleSet) UnmarshalJSON(data []byte) error {
	var w ruleSetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Enabled == nil {
		return ValidationError{Field: "enabled", Message: "must be a boolean"}
	}
	s.Enabled = *w.Enabled
	s.Version = w.Version
	if s.Version == "" {
		s.Version = sniffVersion(w.Rules)
	}
	switch s.Version {
	case VersionLegacy:
		s.Rules = nil
		s.Legacy = nil
		if len(w.Rules) > 0 && string(w.Rules) != "null" {
			var legacy LegacyRules
			if err := json.Unmarshal(w.Rules, &legacy); err != nil {
				return ValidationError{Field: "rules", Message: "invalid legacy rules object"}
			}
			s.Legacy = &legacy
		}
	case VersionStructured:
		s.Legacy = nil
		s.Rules = nil
		if len(w.Rules) > 0 && string(w.Rules) != "null" {
			if err := json.Unmarshal(w.Rules, &s.Rules); err != nil {
				return ValidationError{Field: "rules", Message: "invalid structured rules array"}
			}
		}
	default:
		return ValidationError{Field: "version", Message: fmt.Sprintf("unknown rule set version %q", s.Version)}
	}
	return nil
}

func sniffVersion(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return VersionStructured
	}
	return VersionLegacy
}

// Parse decodes and validates a rule set payload.
func Parse(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	if err := Validate(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Validate checks a rule set for write-time acceptance. A disabled set
// is trivially valid. An enabled set with no rules body is rejected
// rather than guessed at.
func Validate(set *RuleSet) error {
	if set == nil {
		return nil
	}
	if !set.Enabled {
		return nil
	}
	switch set.Version {
	case VersionLegacy:
		return validateLegacy(set.Legacy)
	case VersionStructured:
		return validateStructured(set.Rules)
	default:
		return ValidationError{Field: "version", Message: fmt.Sprintf("unknown rule set version %q", set.Version)}
	}
}

func validateLegacy(legacy *LegacyRules) error {
	if legacy == nil || isEmptyLegacy(legacy) {
		return ValidationError{Field: "rules", Message: "enabled rule set has no criteria"}
	}
	if legacy.MinExperience != nil && *legacy.MinExperience < 0 {
		return ValidationError{Field: "rules.min_experience", Message: "must not be negative"}
	}
	if legacy.MaxExperience != nil && *legacy.MaxExperience < 0 {
		return ValidationError{Field: "rules.max_experience", Message: "must not be negative"}
	}
	if legacy.MinExperience != nil && legacy.MaxExperience != nil && *legacy.MinExperience > *legacy.MaxExperience {
		return ValidationError{Field: "rules.min_experience", Message: "must not exceed max_experience"}
	}
	for i, s := range legacy.RequiredSkills {
		if strings.TrimSpace(s) == "" {
			return ValidationError{Field: fmt.Sprintf("rules.required_skills[%d]", i), Message: "must be a non-empty string"}
		}
	}
	for i, s := range legacy.RequiredEducation {
		if strings.TrimSpace(s) == "" {
			return ValidationError{Field: fmt.Sprintf("rules.required_education[%d]", i), Message: "must be a non-empty string"}
		}
	}
	return nil
}

func isEmptyLegacy(legacy *LegacyRules) bool {
	return legacy.MinExperience == nil && legacy.MaxExperience == nil &&
		len(legacy.RequiredSkills) == 0 && len(legacy.RequiredEducation) == 0
}

func validateStructured(ruleList []Rule) error {
	if len(ruleList) == 0 {
		return ValidationError{Field: "rules", Message: "enabled rule set has no criteria"}
	}
	for i, r := range ruleList {
		prefix := fmt.Sprintf("rules[%d]", i)
		if strings.TrimSpace(r.ID) == "" {
			return ValidationError{Field: prefix + ".id", Message: "is required"}
		}
		if !allowedFields[r.Field] {
			return ValidationError{Field: prefix + ".field", Message: fmt.Sprintf("unknown field %q", r.Field)}
		}
		if !allowedOperators[r.Operator] {
			return ValidationError{Field: prefix + ".operator", Message: fmt.Sprintf("unknown operator %q", r.Operator)}
		}
		if r.Value == nil {
			return ValidationError{Field: prefix + ".value", Message: "is required"}
		}
	}
	return nil
}

// Evaluate decides whether a candidate is auto-rejected. A nil or
// disabled rule set never rejects.
func Evaluate(c domain.Candidate, set *RuleSet) Decision {
	if set == nil || !set.Enabled {
		return Decision{}
	}
	switch set.Version {
	case VersionStructured:
		return evaluateStructured(c, set.Rules)
	default:
		return evaluateLegacy(c, set.Legacy)
	}
}

func evaluateLegacy(c domain.Candidate, legacy *LegacyRules) Decision {
	if legacy == nil {
		return Decision{}
	}
	// Equality at the threshold passes.
	if legacy.MinExperience != nil && c.ExperienceYears < *legacy.MinExperience {
		return Decision{
			ShouldReject: true,
			Reason:       fmt.Sprintf("minimum experience requirement not met (%.1f of %.1f years)", c.ExperienceYears, *legacy.MinExperience),
		}
	}
	if legacy.MaxExperience != nil && c.ExperienceYears > *legacy.MaxExperience {
		return Decision{
			ShouldReject: true,
			Reason:       fmt.Sprintf("maximum experience exceeded (%.1f over %.1f years)", c.ExperienceYears, *legacy.MaxExperience),
		}
	}
	for _, skill := range legacy.RequiredSkills {
		if !containsFold(c.Skills, skill) {
			return Decision{ShouldReject: true, Reason: fmt.Sprintf("required skill %q missing", skill)}
		}
	}
	for _, edu := range legacy.RequiredEducation {
		if !containsFold(c.Education, edu) {
			return Decision{ShouldReject: true, Reason: fmt.Sprintf("required education %q missing", edu)}
		}
	}
	return Decision{}
}

func evaluateStructured(c domain.Candidate, ruleList []Rule) Decision {
	for _, r := range ruleList {
		if !ruleSatisfied(c, r) {
			return Decision{
				ShouldReject: true,
				Reason:       fmt.Sprintf("%s requirement not met (%s %v)", r.Field, r.Operator, r.Value),
			}
		}
	}
	return Decision{}
}

func ruleSatisfied(c domain.Candidate, r Rule) bool {
	switch r.Field {
	case FieldExperience:
		return compareNumber(c.ExperienceYears, r.Operator, r.Value)
	case FieldSalaryExpectation:
		if c.SalaryExpectation == nil {
			return false
		}
		return compareNumber(*c.SalaryExpectation, r.Operator, r.Value)
	case FieldLocation:
		return compareString(c.Location, r.Operator, r.Value)
	case FieldSkills:
		return compareList(c.Skills, r.Operator, r.Value)
	case FieldEducation:
		return compareList(c.Education, r.Operator, r.Value)
	default:
		return true
	}
}

func compareNumber(have float64, op string, value any) bool {
	want, ok := toFloat(value)
	if !ok {
		return false
	}
	switch op {
	case "equals":
		return have == want
	case "not_equals":
		return have != want
	case "greater_than":
		return have > want
	case "less_than":
		return have < want
	case "greater_than_or_equal":
		return have >= want
	case "less_than_or_equal":
		return have <= want
	default:
		return false
	}
}

func compareString(have string, op string, value any) bool {
	switch op {
	case "equals":
		want, ok := value.(string)
		return ok && strings.EqualFold(have, want)
	case "not_equals":
		want, ok := value.(string)
		return ok && !strings.EqualFold(have, want)
	case "contains":
		want, ok := value.(string)
		return ok && strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case "not_contains":
		want, ok := value.(string)
		return ok && !strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case "in":
		return containsFold(toStrings(value), have)
	case "not_in":
		return !containsFold(toStrings(value), have)
	default:
		return false
	}
}

func compareList(have []string, op string, value any) bool {
	switch op {
	case "contains":
		if want, ok := value.(string); ok {
			return containsFold(have, want)
		}
		// Every listed value must be present.
		for _, want := range toStrings(value) {
			if !containsFold(have, want) {
				return false
			}
		}
		return true
	case "not_contains":
		return !compareList(have, "contains", value)
	case "in":
		// At least one of the candidate's values appears in the list.
		wanted := toStrings(value)
		for _, h := range have {
			if containsFold(wanted, h) {
				return true
			}
		}
		return false
	case "not_in":
		return !compareList(have, "in", value)
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}
