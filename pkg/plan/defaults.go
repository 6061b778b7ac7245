package plan

import (
	"time"

	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
)

// Policy files shared between the classification and performance families
const (
	StaticPolicy1      = "main_policy_regression_static.yaml"
	StaticPolicy2      = "main_policy_regression_static_2.yaml"
	IdentityPolicy1    = "main_policy_regression_identity.yaml"
	IdentityPolicy2    = "main_policy_regression_identity_2.yaml"
	StatisticalPolicy1 = "main_policy_regression_statistical.yaml"
	StatisticalPolicy2 = "main_policy_regression_statistical_control.yaml"
)

// DefaultSleep is the settle time after every test iteration
const DefaultSleep = 30 * time.Second

// Default returns the regression plan the nmeta test environment is built for
func Default() *Plan {
	return &Plan{
		EnvironmentPlaybook: EnvironmentPlaybook,
		Families: []*Family{
			StaticFamily(),
			IdentityFamily(),
			StatisticalFamily(),
			PerformanceFamily(),
		},
	}
}

// StaticFamily tests classification on TCP port numbers
func StaticFamily() *Family {
	return &Family{
		Name:     FamilyStatic,
		Playbook: "nmeta-full-regression-static-template.yml",
		Repeats:  1,
		Vars: playbook.Vars{
			playbook.VarDuration: "10",
			playbook.VarPause1:   "30",
		},
		Sleep:         DefaultSleep,
		Thresholds:    Thresholds{Constrained: 200000, Unconstrained: 1000000},
		ResultFiles:   []string{"pc1.example.com-1234-iperf_result.txt", "pc1.example.com-5555-iperf_result.txt"},
		IterationDirs: true,
		Tests:         []string{"constrained-bw-tcp1234", "constrained-bw-tcp5555"},
		Cases: cases(
			Case{Name: "constrained-bw-tcp1234", Policy: StaticPolicy1, Roles: []Role{RoleConstrained, RoleUnconstrained}},
			Case{Name: "constrained-bw-tcp5555", Policy: StaticPolicy2, Roles: []Role{RoleUnconstrained, RoleConstrained}},
		),
	}
}

// IdentityFamily tests classification on host identity
func IdentityFamily() *Family {
	return &Family{
		Name:     FamilyIdentity,
		Playbook: "nmeta-full-regression-identity-template.yml",
		Repeats:  1,
		Vars: playbook.Vars{
			playbook.VarDuration: "10",
			playbook.VarTCPPort:  "5555",
			playbook.VarPause1:   "10",
			playbook.VarPause2:   "30",
			playbook.VarPause3:   "6",
		},
		Sleep:         DefaultSleep,
		Thresholds:    Thresholds{Constrained: 200000, Unconstrained: 1000000},
		ResultFiles:   []string{"lg1.example.com-iperf_result.txt", "pc1.example.com-iperf_result.txt"},
		IterationDirs: true,
		Tests:         []string{"lg1-constrained-bw", "pc1-constrained-bw"},
		Cases: cases(
			Case{Name: "lg1-constrained-bw", Policy: IdentityPolicy1, Roles: []Role{RoleConstrained, RoleUnconstrained}},
			Case{Name: "pc1-constrained-bw", Policy: IdentityPolicy2, Roles: []Role{RoleUnconstrained, RoleConstrained}},
		),
	}
}

// StatisticalFamily tests classification on flow statistics. Each case
// checks a single role.
func StatisticalFamily() *Family {
	return &Family{
		Name:     FamilyStatistical,
		Playbook: "nmeta-full-regression-statistical-template.yml",
		Repeats:  1,
		Vars: playbook.Vars{
			playbook.VarDuration: "10",
			playbook.VarTCPPort:  "5555",
			playbook.VarPause1:   "10",
		},
		Sleep:         DefaultSleep,
		Thresholds:    Thresholds{Constrained: 280000, Unconstrained: 1000000},
		ResultFiles:   []string{"pc1.example.com-iperf_result.txt"},
		IterationDirs: true,
		Tests:         []string{"constrained-bw-iperf", "unconstrained-bw-iperf"},
		Cases: cases(
			Case{Name: "constrained-bw-iperf", Policy: StatisticalPolicy1, Roles: []Role{RoleConstrained}},
			Case{Name: "unconstrained-bw-iperf", Policy: StatisticalPolicy2, Roles: []Role{RoleUnconstrained}},
		),
	}
}

// PerformanceFamily baselines the controller under each classification
// mode. Results are collected but not validated.
func PerformanceFamily() *Family {
	return &Family{
		Name:     FamilyPerformance,
		Playbook: "nmeta-full-regression-performance-template.yml",
		Repeats:  1,
		Vars: playbook.Vars{
			playbook.VarCount:  "30",
			playbook.VarPause1: "10",
		},
		Sleep: DefaultSleep,
		Tests: []string{"static", "identity", "statistical"},
		Cases: cases(
			Case{Name: "static", Policy: StaticPolicy1},
			Case{Name: "identity", Policy: IdentityPolicy1},
			Case{Name: "statistical", Policy: StatisticalPolicy1},
		),
	}
}
