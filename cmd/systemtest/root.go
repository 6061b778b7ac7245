package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thc1006/nmeta-systemtest/pkg/config"
)

// Keys shared by flags and NMETA_* environment variables
const (
	keyConfig                 = "config"
	keyLogLevel               = "log_level"
	keyResultsRoot            = "results_root"
	keyPlaybookDir            = "playbook_dir"
	keyAnsibleBin             = "ansible_bin"
	keyStatusAddr             = "status_addr"
	keyIgnorePlaybookFailures = "ignore_playbook_failures"
)

func newRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "systemtest",
		Short: "Full regression test harness for nmeta",
		Long: `systemtest drives Ansible playbooks that set up traffic classification
policies on nmeta, generate iperf traffic and collect the results. Every
test's bandwidth is checked against its thresholds and the controller log is
scraped for errors. The first failure stops the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.String("log-level", "", "Log level (debug, info, warn, error, critical)")
	flags.String("results-root", "", "Directory that receives timestamped run directories")
	flags.String("playbook-dir", "", "Directory holding the regression playbooks")
	flags.String("ansible-bin", "", "ansible-playbook binary")
	flags.String("status-addr", "", "Serve run status and metrics on this address (e.g. :9100)")
	flags.Bool("ignore-playbook-failures", false, "Carry on when a playbook exits non-zero")

	v.SetEnvPrefix("NMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	bindFlags(v, flags)

	root.AddCommand(
		newRunCommand(v),
		newPlanCommand(v),
		newVersionCommand(),
	)
	return root
}

// bindFlags binds every flag to the viper key of the same name with dashes
// replaced by underscores
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		// Lookup cannot fail for a flag we are visiting
		_ = v.BindPFlag(key, f)
	})
}

// loadConfig layers the configuration: defaults, then the YAML file, then
// NMETA_* environment variables, then flags
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString(keyConfig))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	for key, field := range map[string]*string{
		keyLogLevel:    &cfg.LogLevel,
		keyResultsRoot: &cfg.ResultsRoot,
		keyPlaybookDir: &cfg.PlaybookDir,
		keyAnsibleBin:  &cfg.AnsibleBin,
		keyStatusAddr:  &cfg.StatusAddr,
	} {
		if v.IsSet(key) {
			*field = v.GetString(key)
		}
	}
	if v.IsSet(keyIgnorePlaybookFailures) {
		cfg.IgnorePlaybookFailures = v.GetBool(keyIgnorePlaybookFailures)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("failed to resolve directories: %w", err)
	}
	return cfg, nil
}
