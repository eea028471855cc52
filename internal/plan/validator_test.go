package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsImport(t *testing.T) {
	v := NewValidator(nil)
	for _, code := range []string{
		`import "os"`,
		"import (\n\t\"os\"\n)",
		`import"os"`,
	} {
		out := v.Validate(code)
		assert.False(t, out.OK, "should reject %q", code)
		assert.Contains(t, out.Message, "import")
	}
}

func TestValidateAllowsImportPrefixedIdentifiers(t *testing.T) {
	v := NewValidator(nil)

	out := v.Validate(`important_total := df.Col("VIEWS").Sum()`)
	require.True(t, out.OK, out.Message)
	assert.Contains(t, out.Rewritten, "result = important_total")

	out = v.Validate(`imports * 2`)
	require.True(t, out.OK, out.Message)
}

func TestValidateRejectsEval(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`eval("df.Col(\"A\").Sum()")`)
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "eval")
}

func TestValidateRejectsDeniedCalls(t *testing.T) {
	v := NewValidator(nil)
	for _, code := range []string{
		`exec("rm -rf /")`,
		`open("/etc/passwd")`,
		`system("ls")`,
		`os.Getenv("HOME")`,
	} {
		out := v.Validate(code)
		assert.False(t, out.OK, "should reject %q", code)
		assert.NotEmpty(t, out.Message)
	}
}

func TestValidateRejectsDefinitions(t *testing.T) {
	v := NewValidator(nil)

	out := v.Validate("f := func() int { return 1 }\nf()")
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "function")

	out = v.Validate("type T struct{}\nresult = 1")
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "type")
}

func TestValidateSyntaxError(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate("x := (")
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "syntax error")
}

func TestValidateEmptySnippet(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate("   \n  ")
	assert.False(t, out.OK)
}

func TestValidateBindsTrailingAssignment(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`x := df.Col("A").Sum()`)
	require.True(t, out.OK, out.Message)

	lines := nonEmptyLines(out.Rewritten)
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "result = x", lines[len(lines)-2])
	assert.Equal(t, "result = scrubResult(result)", lines[len(lines)-1])
}

func TestValidateBindsTrailingExpression(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`df.Col("VIEWS").Sum()`)
	require.True(t, out.OK, out.Message)

	lines := nonEmptyLines(out.Rewritten)
	assert.Equal(t, `result = df.Col("VIEWS").Sum()`, lines[0])
	assert.Equal(t, "result = scrubResult(result)", lines[len(lines)-1])
}

func TestValidateKeepsExistingResultBinding(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`result = df.Col("A").Mean()`)
	require.True(t, out.OK, out.Message)

	lines := nonEmptyLines(out.Rewritten)
	require.Len(t, lines, 2)
	assert.Equal(t, `result = df.Col("A").Mean()`, lines[0])
}

func TestRewriteDivision(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`df.Col("CLICKS").Sum() / df.Col("VIEWS").Sum()`)
	require.True(t, out.OK, out.Message)
	assert.Contains(t, out.Rewritten, "safeDivide(")
	assert.NotContains(t, nonEmptyLines(out.Rewritten)[0], " / ")
}

func TestRewriteDataAlias(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate(`data.Col("VIEWS").Sum()`)
	require.True(t, out.OK, out.Message)
	assert.Contains(t, out.Rewritten, `df.Col("VIEWS")`)
	assert.NotContains(t, out.Rewritten, "data.")
}

func TestRewriteContains(t *testing.T) {
	v := NewValidator(nil)

	out := v.Validate(`strings.Contains(df.Col("NAME"), "banner")`)
	require.True(t, out.OK, out.Message)
	assert.Contains(t, out.Rewritten, `safeContains(df.Col("NAME"), "banner")`)

	out = v.Validate(`df.Col("NAME").Contains("banner")`)
	require.True(t, out.OK, out.Message)
	assert.Contains(t, out.Rewritten, `safeContains(df.Col("NAME"), "banner")`)
}

func TestValidateMultiStatement(t *testing.T) {
	v := NewValidator(nil)
	out := v.Validate("total := df.Col(\"VIEWS\").Sum()\nclicks := df.Col(\"CLICKS\").Sum()\nsafeDivide(clicks, total)")
	require.True(t, out.OK, out.Message)

	lines := nonEmptyLines(out.Rewritten)
	assert.Equal(t, "result = safeDivide(clicks, total)", lines[len(lines)-2])
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
