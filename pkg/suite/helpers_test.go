package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thc1006/nmeta-systemtest/pkg/logcheck"
	"github.com/thc1006/nmeta-systemtest/pkg/plan"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
)

// fakeRunner stands in for ansible-playbook. Family playbooks leave iperf
// reports in results_dir and the log check playbook leaves the sentinel.
type fakeRunner struct {
	mu        sync.Mutex
	plan      *plan.Plan
	calls     []playbook.Command
	bandwidth map[string][]int64
	logErrors map[string]bool
	failures  map[string]error
}

func newFakeRunner(p *plan.Plan) *fakeRunner {
	return &fakeRunner{
		plan:      p,
		bandwidth: make(map[string][]int64),
		logErrors: make(map[string]bool),
		failures:  make(map[string]error),
	}
}

// SetBandwidth sets the values reported for test, one per result file
func (f *fakeRunner) SetBandwidth(test string, values ...int64) {
	f.bandwidth[test] = values
}

// SetLogErrors makes the log check after test report errors
func (f *fakeRunner) SetLogErrors(test string) {
	f.logErrors[test] = true
}

// FailPlaybook makes every run of name fail with err
func (f *fakeRunner) FailPlaybook(name string, err error) {
	f.failures[name] = err
}

// Calls returns the commands invoked so far
func (f *fakeRunner) Calls() []playbook.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playbook.Command(nil), f.calls...)
}

// PlaybookNames returns the playbook names invoked so far
func (f *fakeRunner) PlaybookNames() []string {
	var names []string
	for _, c := range f.Calls() {
		names = append(names, c.Name)
	}
	return names
}

func (f *fakeRunner) Command(name string, vars playbook.Vars) playbook.Command {
	return playbook.BuildCommand("", "/playbooks", name, vars)
}

func (f *fakeRunner) Invoke(_ context.Context, cmd playbook.Command) (*playbook.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if err := f.failures[cmd.Name]; err != nil {
		return &playbook.Result{Command: cmd, ExitCode: 2}, err
	}

	dir := cmd.Vars[playbook.VarResultsDir]
	switch cmd.Name {
	case logcheck.CheckPlaybook:
		for test := range f.logErrors {
			if strings.Contains(dir, "/"+test+"/") {
				if err := writeFile(dir, logcheck.ErrorFilename, "CRITICAL: flow table full\n"); err != nil {
					return nil, err
				}
			}
		}
	default:
		if err := f.writeReports(cmd); err != nil {
			return nil, err
		}
	}
	return &playbook.Result{Command: cmd}, nil
}

func (f *fakeRunner) writeReports(cmd playbook.Command) error {
	for _, family := range f.plan.Families {
		if family.Playbook != cmd.Name {
			continue
		}
		for _, c := range family.Cases {
			if c.Policy != cmd.Vars[playbook.VarPolicyName] {
				continue
			}
			values := f.bandwidth[c.Name]
			for i, filename := range family.ResultFiles {
				if i >= len(values) {
					break
				}
				line := fmt.Sprintf("20240101120000,10.1.0.2,42754,10.1.0.1,5555,3,0.0-10.0,1500000,%d\n", values[i])
				if err := writeFile(cmd.Vars[playbook.VarResultsDir], filename, line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0600)
}

// fakeSleeper records settle times without waiting
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return ctx.Err()
}

// Slept returns the recorded settle times
func (s *fakeSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// fakeClock advances one second per reading so every timestamp is distinct
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// passingBandwidth makes every case of the default plan pass
func passingBandwidth(r *fakeRunner) {
	r.SetBandwidth("constrained-bw-tcp1234", 150000, 1200000)
	r.SetBandwidth("constrained-bw-tcp5555", 1200000, 150000)
	r.SetBandwidth("lg1-constrained-bw", 150000, 1200000)
	r.SetBandwidth("pc1-constrained-bw", 1200000, 150000)
	r.SetBandwidth("constrained-bw-iperf", 150000)
	r.SetBandwidth("unconstrained-bw-iperf", 1200000)
}

// singleStaticPlan runs only constrained-bw-tcp1234 of the static family
func singleStaticPlan() *plan.Plan {
	static := plan.StaticFamily()
	static.Tests = []string{"constrained-bw-tcp1234"}
	return &plan.Plan{
		EnvironmentPlaybook: plan.EnvironmentPlaybook,
		Families:            []*plan.Family{static},
	}
}
