package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/rulebase"
)

const cliRulebase = `"id";"condition";"category";"sector";"effects";"notes"
"rule_snow";"prsn_djf < -20";"Hydrology";"Water";"Less snowpack";""
"rule_flood";"pr_son > 10 and rule_snow";"Hydrology";"Infrastructure";"More floods";""
"rule_heat";"tasmax_jja > 30";"Health";"Infrastructure";"More cooling demand";""
"rule_cold";"temp_djf <= -6";"";"";"Internal rule";""
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		path := writeTemp(t, "rules.csv", cliRulebase)
		out, err := run(t, "check", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"4 rules (1 internal)", "categories: 2", "Hydrology", "sectors: 2", "all conditions compiled"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := writeTemp(t, "rules.csv", cliRulebase+`"rule_bad";"x";"Unclosed`+"\n")
		_, err := run(t, "check", path)
		if !errors.Is(err, rulebase.ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("Strict", func(t *testing.T) {
		path := writeTemp(t, "rules.csv", cliRulebase+`"rule_typo";"x >";"Health";"Water";"Broken";""`+"\n")

		out, err := run(t, "check", path)
		if err != nil {
			t.Fatalf("non-strict check should pass: %v", err)
		}
		if !strings.Contains(out, "typo:") {
			t.Errorf("expected skipped rule listed:\n%s", out)
		}

		if _, err := run(t, "check", "--strict", path); err == nil {
			t.Error("expected strict check to fail")
		}
	})
}

func TestFmtCommand(t *testing.T) {
	messy := `ID;Sector;Category;Condition;Effects;Notes
snow;Water;Hydrology;"prsn_djf < -20";"Less ""snow""";
`
	path := writeTemp(t, "rules.csv", messy)

	out, err := run(t, "fmt", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `"id";"condition";"category";"sector";"effects";"notes"` + "\n" +
		`"rule_snow";"prsn_djf < -20";"Hydrology";"Water";"Less ""snow""";""` + "\n"
	if out != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out, want)
	}

	if _, err := run(t, "fmt", "-w", path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != want {
		t.Errorf("file not rewritten:\n%s", data)
	}

	// Formatting is idempotent.
	again, err := run(t, "fmt", path)
	if err != nil || again != want {
		t.Errorf("second format differs: %q, %v", again, err)
	}
}

func TestAggregateCommand(t *testing.T) {
	rules := writeTemp(t, "rules.csv", cliRulebase)

	t.Run("FromActivationFile", func(t *testing.T) {
		act := writeTemp(t, "activation.json", `{"rule_snow": true, "rule_flood": false, "rule_heat": 55, "rule_cold": true}`)

		out, err := run(t, "aggregate", rules, "--activation", act, "--view", "matrix")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var m domain.Matrix
		if err := json.Unmarshal([]byte(out), &m); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		cell, ok := m.Cell("Health", "Infrastructure")
		if !ok || cell.MaxValue != 55 || cell.Tiers[0] != domain.TierModerate {
			t.Errorf("unexpected cell %+v", cell)
		}
	})

	t.Run("FromVariables", func(t *testing.T) {
		vars := writeTemp(t, "vars.json", `{"prsn_djf": -25, "pr_son": 12, "tasmax_jja": 20, "temp_djf": 0}`)

		out, err := run(t, "aggregate", rules, "--vars", vars, "--view", "grouped", "--group", "sector")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var groups []domain.Group
		if err := json.Unmarshal([]byte(out), &groups); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if len(groups) != 2 || groups[0].Key != "Infrastructure" || groups[1].Key != "Water" {
			t.Errorf("unexpected groups %+v", groups)
		}
	})

	t.Run("NoActivationSource", func(t *testing.T) {
		if _, err := run(t, "aggregate", rules); err == nil {
			t.Error("expected an error without an activation source")
		}
	})

	t.Run("UnknownView", func(t *testing.T) {
		act := writeTemp(t, "activation.json", `{}`)
		_, err := run(t, "aggregate", rules, "--activation", act, "--view", "pie")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
