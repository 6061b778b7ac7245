// Package suite runs the regression plan in order and stops at the first
// failure.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/iperf"
	"github.com/thc1006/nmeta-systemtest/pkg/logcheck"
	"github.com/thc1006/nmeta-systemtest/pkg/plan"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
	"github.com/thc1006/nmeta-systemtest/pkg/report"
	"github.com/thc1006/nmeta-systemtest/pkg/security"
	"github.com/thc1006/nmeta-systemtest/pkg/status"
)

// TimestampLayout names the run and iteration directories
const TimestampLayout = "20060102150405"

// TranscriptFilename is the run log written at the run root
const TranscriptFilename = "test_results.txt"

// PreEnvironmentSubdir holds the optional performance pass that runs ahead of
// environment capture, keeping it apart from the regular performance family.
const PreEnvironmentSubdir = "performance-pre-environment"

// LogChecker rotates and inspects the controller log around each test
type LogChecker interface {
	Rotate(ctx context.Context) error
	Check(ctx context.Context, testDir string) error
}

// Recorder receives measurements and outcomes
type Recorder interface {
	logcheck.Recorder
	SetBandwidth(family, test, role string, value int64)
	RecordTest(family string, passed bool)
	WriteTextfile(path string) error
}

// Progress receives position updates while the plan executes
type Progress interface {
	SetRun(runID, baseDir string)
	SetPhase(phase string)
	StartTest(family, test string, iteration int)
	CompleteTest()
	Finish(err error)
}

// Options configures a Driver. Runner, Plan and ResultsRoot are required.
type Options struct {
	ResultsRoot string
	Plan        *plan.Plan
	Runner      playbook.Runner
	Logger      *slog.Logger

	// Detector defaults to a logcheck.Detector on Runner
	Detector LogChecker
	Recorder Recorder
	Progress Progress
	// AttachTranscript starts writing the run log to the given path
	AttachTranscript func(path string) error
	// MetricsFilename is written at the run root when Recorder is set
	MetricsFilename string

	Clock   func() time.Time
	Sleeper Sleeper
}

// Run is the context of one execution of the plan
type Run struct {
	Timestamp string
	BaseDir   string
	Report    *report.Report
}

// Driver executes a regression plan
type Driver struct {
	opts   Options
	logger *slog.Logger
	run    *Run
}

// NewDriver validates opts and fills in defaults
func NewDriver(opts Options) (*Driver, error) {
	if opts.ResultsRoot == "" {
		return nil, harnesserrors.NewConfigError("results_root", "results root is required")
	}
	if opts.Plan == nil {
		return nil, harnesserrors.NewConfigError("plan", "plan is required")
	}
	if err := opts.Plan.Validate(); err != nil {
		return nil, err
	}
	if opts.Runner == nil {
		return nil, harnesserrors.NewConfigError("runner", "playbook runner is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Progress == nil {
		opts.Progress = nopProgress{}
	}
	if opts.Detector == nil {
		opts.Detector = logcheck.NewDetector(opts.Runner, opts.Recorder, opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleeper == nil {
		opts.Sleeper = SleeperFunc(ContextSleep)
	}

	return &Driver{opts: opts, logger: opts.Logger}, nil
}

// Current returns the run started by the last call to Run
func (d *Driver) Current() *Run {
	return d.run
}

// Run creates the timestamped run directory and executes the plan in order:
// environment capture, then every family. The first error stops the run.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("running full regression test of nmeta")

	start := d.opts.Clock()
	timestamp := start.Format(TimestampLayout)
	d.logger.Info("root results timestamp", "timestamp", timestamp)

	if err := security.SecureCreateDirAll(d.opts.ResultsRoot); err != nil {
		return fmt.Errorf("failed to create results root: %w", err)
	}

	baseDir := filepath.Join(d.opts.ResultsRoot, timestamp)
	d.logger.Debug("creating subdirectory", "dir", timestamp)
	if err := createDir(baseDir); err != nil {
		return err
	}
	d.logger.Info("base directory", "dir", baseDir)

	run := &Run{
		Timestamp: timestamp,
		BaseDir:   baseDir,
		Report:    report.New(timestamp, baseDir, start),
	}
	d.run = run
	d.opts.Progress.SetRun(run.Report.RunID, baseDir)

	if d.opts.AttachTranscript != nil {
		if err := d.opts.AttachTranscript(filepath.Join(baseDir, TranscriptFilename)); err != nil {
			return err
		}
	}

	err := d.execute(ctx, run)
	d.finish(run, err)
	if err != nil {
		return err
	}

	d.logger.Info("All testing finished, that's a PASS!")
	d.logger.Info("see test report", "path", filepath.Join(baseDir, TranscriptFilename))
	return nil
}

func (d *Driver) execute(ctx context.Context, run *Run) error {
	p := d.opts.Plan

	if p.PerformanceBeforeEnvironment {
		if performance, ok := p.Family(plan.FamilyPerformance); ok {
			if err := d.executeFamily(ctx, run, performance, PreEnvironmentSubdir); err != nil {
				return err
			}
		}
	}

	if err := d.captureEnvironment(ctx, run); err != nil {
		return err
	}

	for _, family := range p.Families {
		if err := d.executeFamily(ctx, run, family, family.Name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) finish(run *Run, err error) {
	run.Report.Finish(d.opts.Clock(), err)
	d.opts.Progress.Finish(err)

	if werr := run.Report.Write(filepath.Join(run.BaseDir, report.Filename)); werr != nil {
		d.logger.Error("failed to write report", "error", security.SanitizeErrorForLog(werr))
	}
	if d.opts.MetricsFilename != "" {
		if werr := d.opts.Recorder.WriteTextfile(filepath.Join(run.BaseDir, d.opts.MetricsFilename)); werr != nil {
			d.logger.Error("failed to write metrics", "error", security.SanitizeErrorForLog(werr))
		}
	}
}

// captureEnvironment records details of the environment and the nmeta build
func (d *Driver) captureEnvironment(ctx context.Context, run *Run) error {
	d.opts.Progress.SetPhase(status.PhaseEnvironment)
	vars := playbook.Vars{playbook.VarResultsDir: run.BaseDir + "/"}
	_, err := d.opts.Runner.Invoke(ctx, d.opts.Runner.Command(d.opts.Plan.EnvironmentPlaybook, vars))
	return err
}

func (d *Driver) executeFamily(ctx context.Context, run *Run, family *plan.Family, subdir string) error {
	d.logger.Info(fmt.Sprintf("running %s regression testing", family.Name))

	familyDir, err := security.SecureJoinPath(run.BaseDir, subdir)
	if err != nil {
		return harnesserrors.NewConfigError(family.Name, err.Error())
	}
	if err := createDir(familyDir); err != nil {
		return err
	}

	for i := 1; i <= family.Repeats; i++ {
		d.logger.Debug("iteration", "n", i, "of", family.Repeats)
		for _, test := range family.Tests {
			if err := d.executeCase(ctx, run, family, familyDir, test, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) executeCase(ctx context.Context, run *Run, family *plan.Family, familyDir, test string, iteration int) error {
	start := d.opts.Clock()
	components := []string{test}
	if family.IterationDirs {
		components = append(components, start.Format(TimestampLayout))
	}
	testDir, err := security.SecureJoinPath(familyDir, components...)
	if err != nil {
		return harnesserrors.NewConfigError(family.Name+".tests", err.Error())
	}

	d.logger.Info("running test", "family", family.Name, "test", test)
	d.opts.Progress.StartTest(family.Name, test, iteration)

	outcome := report.Outcome{
		Family:    family.Name,
		Test:      test,
		Iteration: iteration,
		Directory: testDir,
		Start:     start,
	}

	err = d.runCase(ctx, family, test, testDir, &outcome)

	outcome.Duration = d.opts.Clock().Sub(start)
	outcome.Passed = err == nil
	if err != nil {
		outcome.Error = err.Error()
	}
	run.Report.Add(outcome)
	d.opts.Recorder.RecordTest(family.Name, err == nil)
	if err != nil {
		return err
	}
	d.opts.Progress.CompleteTest()

	d.logger.Info("Sleeping... zzzz", "duration", family.Sleep)
	d.opts.Progress.SetPhase(status.PhaseSettling)
	return d.opts.Sleeper.Sleep(ctx, family.Sleep)
}

// runCase resolves the case, runs its playbook, validates the results and
// checks the controller log
func (d *Driver) runCase(ctx context.Context, family *plan.Family, test, testDir string, outcome *report.Outcome) error {
	c, err := family.Lookup(test)
	if err != nil {
		return err
	}

	if err := d.opts.Detector.Rotate(ctx); err != nil {
		return err
	}

	if err := security.SecureCreateDirAll(testDir); err != nil {
		return fmt.Errorf("failed to create test directory: %w", err)
	}

	vars := make(playbook.Vars, len(family.Vars)+2)
	for k, v := range family.Vars {
		vars[k] = v
	}
	vars[playbook.VarResultsDir] = testDir + "/"
	vars[playbook.VarPolicyName] = c.Policy

	if _, err := d.opts.Runner.Invoke(ctx, d.opts.Runner.Command(family.Playbook, vars)); err != nil {
		return err
	}

	if family.Validated() {
		if err := d.validate(family, c, testDir, outcome); err != nil {
			return err
		}
		d.logger.Info(fmt.Sprintf("%s TC TEST PASSED", strings.ToUpper(family.Name)), "test", test)
	}

	return d.opts.Detector.Check(ctx, testDir)
}

// validate reads every result file and compares the roles the case assigns
// against the family thresholds, constrained first.
func (d *Driver) validate(family *plan.Family, c plan.Case, testDir string, outcome *report.Outcome) error {
	d.logger.Debug("reading results", "dir", testDir)

	values := make([]int64, len(family.ResultFiles))
	for i, filename := range family.ResultFiles {
		r, err := iperf.ReadReport(testDir, filename)
		if err != nil {
			return err
		}
		d.logger.Debug("iperf report",
			"file", filename,
			"timestamp", r.Timestamp,
			"transfer_id", r.TransferID,
			"source", r.Source,
			"destination", r.Destination,
			"interval", r.Interval,
			"transferred", r.Transferred,
			"bandwidth", r.Bandwidth)
		values[i] = r.Bandwidth
	}

	measured := make([]any, 0, 4)
	for _, role := range []plan.Role{plan.RoleConstrained, plan.RoleUnconstrained} {
		if idx := c.RoleOf(role); idx >= 0 {
			value := values[idx]
			measured = append(measured, string(role), value)
			d.opts.Recorder.SetBandwidth(family.Name, c.Name, string(role), value)
			if role == plan.RoleConstrained {
				outcome.Constrained = &value
			} else {
				outcome.Unconstrained = &value
			}
		}
	}
	d.logger.Info("validating bandwidth", measured...)

	for _, role := range []plan.Role{plan.RoleConstrained, plan.RoleUnconstrained} {
		idx := c.RoleOf(role)
		if idx < 0 {
			continue
		}
		op, threshold, ok := family.Thresholds.Check(role, values[idx])
		if !ok {
			return harnesserrors.NewValidationError(family.Name, c.Name, string(role), values[idx], op, threshold)
		}
	}
	return nil
}

// createDir creates exactly one directory and reports a collision as
// DirectoryExistsError
func createDir(path string) error {
	if err := security.SecureCreateDir(path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return harnesserrors.NewDirectoryExistsError(path, err)
		}
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordLogErrors() {}
func (nopRecorder) SetBandwidth(string, string, string, int64) {}
func (nopRecorder) RecordTest(string, bool) {}
func (nopRecorder) WriteTextfile(string) error { return nil }

type nopProgress struct{}

func (nopProgress) SetRun(string, string) {}
func (nopProgress) SetPhase(string) {}
func (nopProgress) StartTest(string, string, int) {}
func (nopProgress) CompleteTest() {}
func (nopProgress) Finish(error) {}
