package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/and161185/arquivo-manager/internal/limiter"
	"github.com/and161185/arquivo-manager/internal/model"
)

type policyFile struct {
	Policies []limiter.Policy `yaml:"policies"`
}

// LoadPolicyFile reads rate-limit overrides:
//
//	policies:
//	  - action: login
//	    max_attempts: 10
//	    window: 5m
func LoadPolicyFile(path string) ([]limiter.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	for _, p := range pf.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Action, err)
		}
	}
	return pf.Policies, nil
}

// SeedAccount is a bootstrap account created at startup when missing.
type SeedAccount struct {
	Email    string     `yaml:"email"`
	Password string     `yaml:"password"`
	FullName string     `yaml:"full_name"`
	Role     model.Role `yaml:"role"`
}

type seedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// LoadSeedFile reads bootstrap accounts. Entries without email or password
// are skipped; an unknown role is an error.
func LoadSeedFile(path string) ([]SeedAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	out := make([]SeedAccount, 0, len(sf.Accounts))
	for _, a := range sf.Accounts {
		if a.Email == "" || a.Password == "" {
			continue
		}
		if a.Role == model.RoleNone {
			a.Role = model.RoleUser
		}
		if !a.Role.Valid() {
			return nil, fmt.Errorf("seed account %s: unknown role %q", a.Email, a.Role)
		}
		if a.FullName == "" {
			a.FullName = a.Email
		}
		out = append(out, a)
	}
	return out, nil
}
