package policy

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/stepguard/pkg/contracts"
	"github.com/Mindburn-Labs/stepguard/pkg/stepguarderr"
)

// EngineVersion is the semantic version of this policy engine, checked
// against a document's min_engine_version constraint at load time.
const EngineVersion = "1.0.0"

// LoadFile reads and parses a YAML policy document from path.
func LoadFile(path string) (*contracts.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stepguarderr.ConfigError(fmt.Sprintf("read policy file %q", path), err)
	}
	return LoadString(string(data))
}

// LoadString parses a YAML policy document from s.
//
// Environment variables of the form ${NAME} are expanded before parsing, so
// a document can reference secrets or per-environment values without
// hard-coding them. If the document declares MinEngineVersion, it is checked
// against EngineVersion; a document requiring a newer engine is rejected
// rather than silently evaluated with unsupported semantics.
func LoadString(s string) (*contracts.PolicyConfig, error) {
	expanded := os.ExpandEnv(s)

	var cfg contracts.PolicyConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, stepguarderr.ConfigError("parse policy YAML", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, stepguarderr.ConfigError("validate policy document", err)
	}

	return &cfg, nil
}

func validate(cfg *contracts.PolicyConfig) error {
	if cfg.MinEngineVersion != "" {
		constraint, err := semver.NewConstraint(cfg.MinEngineVersion)
		if err != nil {
			return fmt.Errorf("invalid min_engine_version constraint %q: %w", cfg.MinEngineVersion, err)
		}
		engineVer, err := semver.NewVersion(EngineVersion)
		if err != nil {
			return fmt.Errorf("invalid engine version %q: %w", EngineVersion, err)
		}
		if !constraint.Check(engineVer) {
			return fmt.Errorf("policy document requires engine version %q, running %s",
				cfg.MinEngineVersion, EngineVersion)
		}
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule %d: duplicate id %q", i, rule.ID)
		}
		seen[rule.ID] = true

		if rule.Action == "" {
			return fmt.Errorf("rule %q: action is required", rule.ID)
		}
		if rule.Resource == "" {
			return fmt.Errorf("rule %q: resource is required", rule.ID)
		}

		switch rule.Verdict {
		case contracts.RuleAllow, contracts.RuleDeny, contracts.RuleRequireApproval, contracts.RuleRequireVerification:
		default:
			return fmt.Errorf("rule %q: invalid verdict %q", rule.ID, rule.Verdict)
		}
	}

	return nil
}
