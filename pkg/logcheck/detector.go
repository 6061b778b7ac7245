// Package logcheck rotates the controller log before a test and inspects it
// for ERROR and CRITICAL entries afterwards.
package logcheck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// Playbooks and the sentinel file shared with them
const (
	RotatePlaybook = "nmeta-full-regression-logrotate-template.yml"
	CheckPlaybook  = "nmeta-full-regression-logcheck-template.yml"
	ErrorFilename  = "errors_logged.txt"
)

// Recorder counts runs that found logged errors
type Recorder interface {
	RecordLogErrors()
}

// Detector runs the log rotation and log scraping playbooks
type Detector struct {
	runner   playbook.Runner
	recorder Recorder
	logger   *slog.Logger
}

// NewDetector creates a detector. recorder may be nil.
func NewDetector(runner playbook.Runner, recorder Recorder, logger *slog.Logger) *Detector {
	return &Detector{
		runner:   runner,
		recorder: recorder,
		logger:   logger,
	}
}

// Rotate starts a fresh controller log
func (d *Detector) Rotate(ctx context.Context) error {
	d.logger.Debug("rotating controller log")
	_, err := d.runner.Invoke(ctx, d.runner.Command(RotatePlaybook, nil))
	return err
}

// Check collects ERROR and CRITICAL entries logged since the last rotation
// into testDir and fails when there were any.
func (d *Detector) Check(ctx context.Context, testDir string) error {
	d.logger.Info("checking for errors in logs")

	vars := playbook.Vars{
		playbook.VarResultsDir:    withTrailingSlash(testDir),
		playbook.VarErrorFilename: ErrorFilename,
	}
	if _, err := d.runner.Invoke(ctx, d.runner.Command(CheckPlaybook, vars)); err != nil {
		return err
	}

	path := filepath.Join(testDir, ErrorFilename)
	if !security.FileExists(path) {
		d.logger.Debug("no error file written", "path", path)
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Size() > 0 {
		if d.recorder != nil {
			d.recorder.RecordLogErrors()
		}
		return harnesserrors.NewLogErrorsFoundError(path, info.Size())
	}
	return nil
}

func withTrailingSlash(dir string) string {
	if len(dir) > 0 && dir[len(dir)-1] == '/' {
		return dir
	}
	return dir + "/"
}
