package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/formflow/internal/config"
	"github.com/example/formflow/internal/workflow"
)

func newRootCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:           "formflow",
		Short:         "Compliance form workflow API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return configureLogging(cfg)
		},
	}
	cmd.AddCommand(newServeCmd(&cfg), newMigrateCmd(&cfg), newPolicyCmd(&cfg))
	return cmd
}

func configureLogging(cfg config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "LOG_LEVEL %q", cfg.LogLevel)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// buildEvaluator assembles the permission evaluator from the configured
// schedule overlay and time zone.
func buildEvaluator(cfg config.Config) (*workflow.Evaluator, error) {
	schedules := workflow.DefaultSchedules()
	if cfg.ScheduleFile != "" {
		loaded, err := workflow.LoadSchedules(cfg.ScheduleFile)
		if err != nil {
			return nil, err
		}
		schedules = loaded
	}
	gate := workflow.NewTimeGate(schedules, cfg.Location())
	return workflow.NewEvaluator(gate, workflow.DefaultMatrix(), nil), nil
}
