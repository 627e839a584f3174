package rulebase

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificclimate/impacts/internal/domain"
)

const sampleRulebase = `"id";"condition";"category";"sector";"effects";"notes"
"rule_snow";"(prsn_djf_iamean_s50p_e50p_anom < -20)";"Hydrology";"Water";"Less snowpack";"See **snow** notes"
"rule_flood";"(pr_son_iamean_s50p_e50p_anom > 10) && rule_snow";"Hydrology";"Infrastructure";"More ""rain-on-snow"" floods; culverts";""
"rule_internal";"temp_djf_iamean_s0p_hist <= -6";"";"";"Internal rule";""
`

func TestSplitRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"escaped quote", `;"foo""bar";`, []string{"", `foo"bar`, ""}},
		{"embedded delimiter", `;"foo;bar";`, []string{"", "foo;bar", ""}},
		{"two empty fields", `;`, []string{"", ""}},
		{"only delimiters", `;;`, []string{"", "", ""}},
		{"empty line", ``, []string{""}},
		{"adjacent empties between quoted", `"a";;"b"`, []string{"a", "", "b"}},
		{"leading empty", `;"a"`, []string{"", "a"}},
		{"trailing empty", `"a";`, []string{"a", ""}},
		{"empty quoted field", `"";""`, []string{"", ""}},
		{"several escaped quotes", `"say ""hi"" and ""bye"""`, []string{`say "hi" and "bye"`}},
		{"only an escaped quote", `""""`, []string{`"`}},
		{"quotes and delimiters mixed", `"a"";""b"`, []string{`a";"b`}},
		{"unquoted values", `a;b;c`, []string{"a", "b", "c"}},
		{"unicode", `"Écologie";"≥ 2°C"`, []string{"Écologie", "≥ 2°C"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRecord(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitRecordMalformed(t *testing.T) {
	lines := map[string]string{
		"unterminated":            `"abc;"def"`,
		"unterminated at end":     `"abc`,
		"text after close quote":  `"abc"x;"d"`,
		"quote in unquoted field": `ab"c;d`,
	}

	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			_, err := SplitRecord(line)
			assert.Error(t, err)
		})
	}
}

func TestSplitRecordErrorColumn(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`ab"c`, "column 3"},
		{`Éco"c`, "column 4"},
		{`"≥ 2°C"x`, "column 8"},
	}
	for _, tt := range tests {
		_, err := SplitRecord(tt.line)
		require.Error(t, err, tt.line)
		assert.Contains(t, err.Error(), tt.want, tt.line)
	}
}

func TestParseIndexesRules(t *testing.T) {
	rb, err := Parse(sampleRulebase)
	require.NoError(t, err)

	r, ok := rb.Rule("rule_flood")
	require.True(t, ok)
	assert.Equal(t, "Hydrology", r.Category)
	_, ok = rb.Rule("missing")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	rb, err := Parse(sampleRulebase)
	require.NoError(t, err)
	require.Equal(t, 3, rb.Len())

	rules := rb.Rules()
	assert.Equal(t, "snow", rules[0].ID)
	assert.Equal(t, "flood", rules[1].ID)
	assert.Equal(t, "internal", rules[2].ID)

	assert.Equal(t, `More "rain-on-snow" floods; culverts`, rules[1].Effects)
	assert.Equal(t, "(pr_son_iamean_s50p_e50p_anom > 10) && rule_snow", rules[1].Condition)
	assert.Equal(t, "See **snow** notes", rules[0].Notes)
	assert.True(t, rules[2].IsInternal())

	got, ok := rb.Rule("rule_flood")
	require.True(t, ok)
	assert.Equal(t, "Infrastructure", got.Sector)

	_, ok = rb.Rule("missing")
	assert.False(t, ok)
}

func TestParseHeaderOrderAndExtraColumns(t *testing.T) {
	raw := "\ufeff\"Notes\";\"ID\";\"extra\";\"Effects\";\"Sector\";\"Category\";\"Condition\"\r\n" +
		"\"n\";\"rule_a\";\"x\";\"e\";\"S\";\"C\";\"true\"\r\n"

	rb, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 1, rb.Len())

	want := domain.RuleRecord{ID: "a", Condition: "true", Category: "C", Sector: "S", Effects: "e", Notes: "n"}
	assert.Equal(t, want, rb.Rules()[0])
}

func TestParseSkipsBlankLines(t *testing.T) {
	raw := "\n" + `"id";"condition";"category";"sector";"effects";"notes"` + "\n\n" +
		`"a";"c";"A";"X";"e";"n"` + "\n   \n"

	rb, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, rb.Len())
}

func TestParseEmpty(t *testing.T) {
	rb, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, 0, rb.Len())
	assert.NotNil(t, rb.Rules())

	rb, err = Parse(`"id";"condition";"category";"sector";"effects";"notes"`)
	require.NoError(t, err)
	assert.Equal(t, 0, rb.Len())
}

func TestParseFailures(t *testing.T) {
	header := `"id";"condition";"category";"sector";"effects";"notes"` + "\n"

	tests := []struct {
		name string
		raw  string
		line int
	}{
		{"unbalanced quotes", header + `"a";"c";"A";"X";"e";"n` + "\n", 2},
		{"too few columns", header + `"a";"c";"A";"X";"e"` + "\n", 2},
		{"too many columns", header + `"a";"c";"A";"X";"e";"n";"z"` + "\n", 2},
		{"duplicate id", header + `"rule_a";"";"";"";"";""` + "\n" + `"a";"";"";"";"";""` + "\n", 3},
		{"empty id", header + `"";"";"";"";"";""` + "\n", 2},
		{"missing header column", `"id";"condition";"category";"sector";"effects"` + "\n", 1},
		{"duplicate header column", `"id";"id";"condition";"category";"sector";"effects";"notes"` + "\n", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rb, err := Parse(tc.raw)
			require.Error(t, err)
			assert.Nil(t, rb)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var recErr *RecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, tc.line, recErr.Line)
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	first, err := Parse(sampleRulebase)
	require.NoError(t, err)
	second, err := Parse(sampleRulebase)
	require.NoError(t, err)
	assert.Equal(t, first.Rules(), second.Rules())
}

func TestColumnCountInvariant(t *testing.T) {
	lines := []string{
		`;;;;;`,
		`"a";;;;;`,
		`;;;;;"z"`,
		`"a";"";;"d";;`,
		`"a;b";"c""d";"";;"e;";`,
	}
	for _, line := range lines {
		fields, err := SplitRecord(line)
		require.NoError(t, err, line)
		assert.Len(t, fields, len(domain.RuleColumns()), line)
	}
}

func TestRoundTrip(t *testing.T) {
	values := [][]string{
		{`plain`, `with "quotes"`, `with;semicolons`, `"";;""`, ``, `"`},
		{`;`, `;;`, `"a";"b"`, `trailing"`, `"leading`, `mixed "x";y`},
		{`Ünïcödé ≥ 2°C`, `**markdown** [link](http://example.com/?a=1;b=2)`},
	}

	for _, fields := range values {
		line := FormatRecord(fields)
		got, err := SplitRecord(line)
		require.NoError(t, err, line)
		assert.Equal(t, fields, got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	rules := []domain.RuleRecord{
		{ID: "a", Condition: `x > 1 && y < "2"`, Category: "Cat;1", Sector: `Sec "one"`, Effects: "e;f", Notes: `n "q"`},
		{ID: "b", Condition: "", Category: "", Sector: "", Effects: domain.InternalRuleEffects, Notes: ""},
	}

	text := Format(rules)
	assert.True(t, strings.HasPrefix(text, `"id";"condition";"category";"sector";"effects";"notes"`))

	rb, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, rules, rb.Rules())
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]domain.RuleRecord{{ID: "rule_a"}, {ID: "a"}})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	rb, err := New([]domain.RuleRecord{{ID: "rule_a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a", rb.Rules()[0].ID)
}
