package main

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/formflow/internal/config"
	"github.com/example/formflow/internal/workflow"
)

type policyOutput struct {
	Roles     []workflow.PolicyRow    `json:"roles" yaml:"roles"`
	Schedules []workflow.RoleSchedule `json:"schedules" yaml:"schedules"`
}

func newPolicyCmd(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the role capability matrix and access schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, err := buildEvaluator(*cfg)
			if err != nil {
				return err
			}
			out := policyOutput{
				Roles:     evaluator.Matrix().Policy(),
				Schedules: evaluator.Gate().Schedules(),
			}
			return writePolicy(cmd.OutOrStdout(), format, out)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func writePolicy(w io.Writer, format string, out policyOutput) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return errors.Wrap(err, "encode policy")
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(out), "encode policy")
	default:
		return errors.Errorf("unknown format %q", format)
	}
}
