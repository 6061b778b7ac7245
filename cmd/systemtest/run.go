package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thc1006/nmeta-systemtest/pkg/logging"
	"github.com/thc1006/nmeta-systemtest/pkg/metrics"
	"github.com/thc1006/nmeta-systemtest/pkg/playbook"
	"github.com/thc1006/nmeta-systemtest/pkg/security"
	"github.com/thc1006/nmeta-systemtest/pkg/status"
	"github.com/thc1006/nmeta-systemtest/pkg/suite"
)

const shutdownTimeout = 5 * time.Second

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full regression suite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegression(cmd, v)
		},
	}
	cmd.Flags().Bool("performance-before-environment", false,
		"Run the performance family once more before capturing the environment")
	bindFlags(v, cmd.Flags())
	return cmd
}

func runRegression(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if v.IsSet("performance_before_environment") {
		cfg.PerformanceBeforeEnvironment = v.GetBool("performance_before_environment")
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.GetLogLevel())
	defer logger.Close()

	logger.Info("starting nmeta regression harness",
		"version", Version,
		"commit", GitCommit,
		"build_time", BuildTime)
	cfg.PrintConfig(logger.Logger)

	collector := metrics.NewPrometheusMetrics()

	invoker, err := playbook.NewInvoker(playbook.InvokerConfig{
		Binary:         cfg.AnsibleBin,
		PlaybookDir:    cfg.PlaybookDir,
		Timeout:        cfg.PlaybookTimeout,
		IgnoreFailures: cfg.IgnorePlaybookFailures,
	}, logger.Logger)
	if err != nil {
		return err
	}
	invoker.SetObserver(collector)

	tracker := status.NewTracker()
	if cfg.StatusAddr != "" {
		server := status.NewServer(cfg.StatusAddr, status.NewRouter(tracker, collector.Registry(), logger.Logger), logger.Logger)
		server.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("status server did not shut down cleanly", "error", security.SanitizeErrorForLog(err))
			}
		}()
	}

	driver, err := suite.NewDriver(suite.Options{
		ResultsRoot:      cfg.ResultsRoot,
		Plan:             cfg.Plan(),
		Runner:           invoker,
		Logger:           logger.Logger,
		Recorder:         collector,
		Progress:         tracker,
		AttachTranscript: logger.AttachFile,
		MetricsFilename:  metrics.TextfileName,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector.MarkRunStart(time.Now())
	if err := driver.Run(ctx); err != nil {
		logging.Critical(logger.Logger, "regression run failed", "error", security.SanitizeErrorForLog(err))
		return &loggedError{err: err}
	}
	return nil
}
