package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

func newPlanCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the regression plan the current configuration would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			p := cfg.Plan()
			if err := p.Validate(); err != nil {
				return err
			}

			out, err := yaml.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
