package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/rulebase"
	"github.com/pacificclimate/impacts/internal/rules"
)

func newCheckCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check <rulebase>",
		Short: "Parse a rulebase and compile its conditions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := readRulebase(args[0])
			if err != nil {
				return err
			}

			engine, err := rules.NewEngine()
			if err != nil {
				return err
			}
			skipped := engine.Load(rb.Rules())

			printSummary(cmd.OutOrStdout(), args[0], rb, skipped)
			if strict && len(skipped) > 0 {
				return fmt.Errorf("%d condition(s) failed to compile", len(skipped))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any condition does not compile")
	return cmd
}

func newFmtCmd() *cobra.Command {
	var (
		write  bool
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "fmt <rulebase>",
		Short: "Rewrite a rulebase with canonical quoting and column order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := readRulebase(args[0])
			if err != nil {
				return err
			}

			records := rb.Rules()
			for i := range records {
				records[i].ID = prefix + records[i].ID
			}
			out := rulebase.Format(records)

			if !write {
				_, err := io.WriteString(cmd.OutOrStdout(), out)
				return err
			}
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], []byte(out), info.Mode().Perm())
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the file")
	cmd.Flags().StringVar(&prefix, "prefix", domain.RuleIDPrefix, "Prefix written before every rule id")
	return cmd
}

func readRulebase(path string) (*rulebase.Rulebase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rb, err := rulebase.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rb, nil
}

func printSummary(w io.Writer, path string, rb *rulebase.Rulebase, skipped []rules.ConditionError) {
	categories := make(map[string]struct{})
	sectors := make(map[string]struct{})
	internal := 0
	for _, r := range rb.Rules() {
		if r.IsInternal() {
			internal++
			continue
		}
		categories[r.Category] = struct{}{}
		sectors[r.Sector] = struct{}{}
	}

	fmt.Fprintf(w, "%s: %d rules (%d internal)\n", path, rb.Len(), internal)
	fmt.Fprintf(w, "  categories: %d\n", len(categories))
	for _, c := range sortedSet(categories) {
		fmt.Fprintf(w, "    %s\n", c)
	}
	fmt.Fprintf(w, "  sectors: %d\n", len(sectors))
	for _, s := range sortedSet(sectors) {
		fmt.Fprintf(w, "    %s\n", s)
	}
	if len(skipped) == 0 {
		fmt.Fprintln(w, "  all conditions compiled")
		return
	}
	fmt.Fprintf(w, "  conditions not compiled: %d\n", len(skipped))
	for _, e := range skipped {
		fmt.Fprintf(w, "    %s: %s\n", e.RuleID, e.Reason)
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
