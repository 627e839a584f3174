package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacificclimate/impacts/internal/activation"
	"github.com/pacificclimate/impacts/internal/config"
	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/impacts"
	"github.com/pacificclimate/impacts/internal/rules"
)

type aggregateOptions struct {
	view     string
	group    string
	category string
	sector   string
	prefix   string

	activationFile string
	varsFile       string
	region         string
	climate        string
	ensemble       string
}

func newAggregateCmd(configPath *string) *cobra.Command {
	var opts aggregateOptions

	cmd := &cobra.Command{
		Use:   "aggregate <rulebase>",
		Short: "Print an aggregate view of a rulebase as JSON",
		Long: `Print an aggregate view of a rulebase as JSON.

The activation comes from one of:
  --activation  a JSON object of rule id to boolean or number
  --vars        a JSON object of climate variables, evaluated locally
  --region/--climate  the configured rules service`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := readRulebase(args[0])
			if err != nil {
				return err
			}

			view, err := impacts.ParseView(opts.view)
			if err != nil {
				return err
			}
			query := impacts.Query{Group: impacts.Category, Category: opts.category, Sector: opts.sector}
			if opts.group != "" {
				if query.Group, err = impacts.ParseAxis(opts.group); err != nil {
					return err
				}
			}

			act, err := resolveActivation(cmd.Context(), *configPath, rb.Rules(), opts)
			if err != nil {
				return err
			}

			data, err := impacts.Build(view, rb.Rules(), act, query)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.view, "view", "heatmap", "View: grouped, heatmap, matrix or detail")
	f.StringVar(&opts.group, "group", "", "Grouping axis for the grouped view: category or sector")
	f.StringVar(&opts.category, "category", "", "Category of the detail cell")
	f.StringVar(&opts.sector, "sector", "", "Sector of the detail cell")
	f.StringVar(&opts.prefix, "prefix", domain.RuleIDPrefix, "Prefix stripped from rule ids in --activation")
	f.StringVar(&opts.activationFile, "activation", "", "JSON file mapping rule ids to activation values")
	f.StringVar(&opts.varsFile, "vars", "", "JSON file of climate variables to evaluate conditions against")
	f.StringVar(&opts.region, "region", "", "Region to request from the rules service")
	f.StringVar(&opts.climate, "climate", "", "Time period to request from the rules service")
	f.StringVar(&opts.ensemble, "ensemble", "", "Ensemble to request (defaults to the configured one)")
	cmd.MarkFlagsMutuallyExclusive("activation", "vars", "region")
	return cmd
}

func resolveActivation(ctx context.Context, configPath string, ruleset []domain.RuleRecord, opts aggregateOptions) (domain.Activation, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case opts.activationFile != "":
		return readActivation(opts.activationFile, opts.prefix)

	case opts.varsFile != "":
		var vars map[string]any
		if err := readJSON(opts.varsFile, &vars); err != nil {
			return nil, err
		}
		engine, err := rules.NewEngine()
		if err != nil {
			return nil, err
		}
		for _, e := range engine.Load(ruleset) {
			fmt.Fprintf(os.Stderr, "warning: %s\n", e.Error())
		}
		result, err := engine.Evaluate(ctx, vars)
		if err != nil {
			return nil, err
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %s\n", e.Error())
		}
		return result.Activation, nil

	case opts.region != "" || opts.climate != "":
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		client := activation.NewClient(cfg.Activation)
		snap, err := client.Fetch(ctx, domain.Selection{
			Region:   opts.region,
			Climate:  opts.climate,
			Ensemble: opts.ensemble,
		})
		if err != nil {
			return nil, err
		}
		return snap.Values, nil

	default:
		return nil, errors.New("one of --activation, --vars or --region/--climate is required")
	}
}

func readActivation(path, prefix string) (domain.Activation, error) {
	var raw map[string]domain.ActivationValue
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	act := make(domain.Activation, len(raw))
	for id, v := range raw {
		act[strings.TrimPrefix(id, prefix)] = v
	}
	return act, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
