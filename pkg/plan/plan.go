// Package plan describes the regression families, their cases and the
// bandwidth thresholds each case is validated against.
package plan

import (
	"fmt"
	"time"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
)

// Family names, also used as results subdirectories
const (
	FamilyStatic      = "static"
	FamilyIdentity    = "identity"
	FamilyStatistical = "statistical"
	FamilyPerformance = "performance"
)

// EnvironmentPlaybook captures details of the environment and nmeta build
const EnvironmentPlaybook = "nmeta-full-regression-environment-template.yml"

// Role is the traffic class a result file is expected to fall in
type Role string

const (
	RoleConstrained   Role = "constrained"
	RoleUnconstrained Role = "unconstrained"
)

// Thresholds bound the bandwidth of each role. Comparisons are strict.
type Thresholds struct {
	Constrained   int64 `yaml:"constrained"`
	Unconstrained int64 `yaml:"unconstrained"`
}

// Check reports whether value satisfies the bound for role, along with the
// comparison that was applied.
func (t Thresholds) Check(role Role, value int64) (op string, threshold int64, ok bool) {
	switch role {
	case RoleConstrained:
		return "<", t.Constrained, value < t.Constrained
	case RoleUnconstrained:
		return ">", t.Unconstrained, value > t.Unconstrained
	default:
		return "?", 0, false
	}
}

// Case is one test scenario within a family
type Case struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy"`
	// Roles is aligned with the family's ResultFiles. A case of a family
	// without result files has no roles.
	Roles []Role `yaml:"roles,omitempty"`
}

// RoleOf returns the index of the result file assigned role, or -1
func (c Case) RoleOf(role Role) int {
	for i, r := range c.Roles {
		if r == role {
			return i
		}
	}
	return -1
}

// Family is a group of cases sharing a playbook and timing parameters
type Family struct {
	Name     string `yaml:"name"`
	Playbook string `yaml:"playbook"`
	Repeats  int    `yaml:"repeats"`
	// Vars are the fixed playbook parameters. results_dir and policy_name
	// are added per case.
	Vars       playbook.Vars `yaml:"vars"`
	Sleep      time.Duration `yaml:"sleep"`
	Thresholds Thresholds    `yaml:"thresholds"`
	// ResultFiles are read from the case directory after the playbook ran.
	// Empty means results are not validated.
	ResultFiles []string `yaml:"result_files,omitempty"`
	// IterationDirs places each iteration under its own timestamp directory
	IterationDirs bool `yaml:"iteration_dirs"`
	// Tests is the run order. Every entry must resolve through Lookup.
	Tests []string        `yaml:"tests"`
	Cases map[string]Case `yaml:"cases"`
}

// Lookup resolves a test name against the family's case table
func (f *Family) Lookup(test string) (Case, error) {
	c, ok := f.Cases[test]
	if !ok {
		return Case{}, harnesserrors.NewUnknownTestError(f.Name, test)
	}
	return c, nil
}

// Validated reports whether the family's results are checked against thresholds
func (f *Family) Validated() bool {
	return len(f.ResultFiles) > 0
}

// Validate checks that every case's role assignment fits the family
func (f *Family) Validate() error {
	if f.Repeats < 1 {
		return harnesserrors.NewConfigError(f.Name+".repeats", fmt.Sprintf("repeats must be at least 1, got %d", f.Repeats))
	}
	for name, c := range f.Cases {
		if name != c.Name {
			return harnesserrors.NewConfigError(f.Name+".cases", fmt.Sprintf("case %q registered as %q", c.Name, name))
		}
		if len(c.Roles) != len(f.ResultFiles) {
			return harnesserrors.NewConfigError(f.Name+".cases",
				fmt.Sprintf("case %s assigns %d roles for %d result files", name, len(c.Roles), len(f.ResultFiles)))
		}
		if len(c.Roles) == 2 && c.Roles[0] == c.Roles[1] {
			return harnesserrors.NewConfigError(f.Name+".cases",
				fmt.Sprintf("case %s assigns %s to both result files", name, c.Roles[0]))
		}
	}
	return nil
}

// Plan is the ordered set of families executed by one run
type Plan struct {
	EnvironmentPlaybook string `yaml:"environment_playbook"`
	// PerformanceBeforeEnvironment runs the performance family once more
	// ahead of environment capture.
	PerformanceBeforeEnvironment bool      `yaml:"performance_before_environment"`
	Families                     []*Family `yaml:"families"`
}

// Family returns the named family
func (p *Plan) Family(name string) (*Family, bool) {
	for _, f := range p.Families {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Validate checks every family
func (p *Plan) Validate() error {
	for _, f := range p.Families {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func cases(list ...Case) map[string]Case {
	m := make(map[string]Case, len(list))
	for _, c := range list {
		m[c.Name] = c
	}
	return m
}
