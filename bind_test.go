package goboreal

import (
	"strings"
	"testing"
)

func TestRenderPyformatPositional(t *testing.T) {
	out, err := renderPyformat("select * from t where a = %s and b = %s",
		[]interface{}{int64(1), "x"})
	assertNilF(t, err)
	assertEqualE(t, out, "select * from t where a = 1 and b = 'x'")
}

func TestRenderPyformatNamed(t *testing.T) {
	out, err := renderPyformat("insert into t(a) values(%(value)s)",
		map[string]interface{}{"value": int64(1)})
	assertNilF(t, err)
	assertEqualE(t, out, "insert into t(a) values(1)")
}

func TestRenderPyformatPercentEscape(t *testing.T) {
	out, err := renderPyformat("select '100%%' where a = %s", []interface{}{int64(1)})
	assertNilF(t, err)
	assertEqualE(t, out, "select '100%' where a = 1")
}

func TestRenderPyformatArityMismatch(t *testing.T) {
	_, err := renderPyformat("select %s, %s", []interface{}{int64(1)})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrBindArityMismatch)
	assertStringContainsE(t, err.Error(), "placeholders: 2, values: 1")

	_, err = renderPyformat("select %s", []interface{}{int64(1), int64(2)})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrBindArityMismatch)
	// the message names the statement's real placeholder count
	assertStringContainsE(t, err.Error(), "placeholders: 1, values: 2")
}

func TestRenderPyformatNamedPercentInValue(t *testing.T) {
	// escapes in the statement unescape; escapes inside a bound value do not
	out, err := renderPyformat("insert into t(a, b) values('100%%', %(v)s)",
		map[string]interface{}{"v": "50%% off"})
	assertNilF(t, err)
	assertEqualE(t, out, "insert into t(a, b) values('100%', '50%% off')")
}

func TestRenderPyformatNamedValueWithHolderSyntax(t *testing.T) {
	// a substituted value is never rescanned for placeholders
	out, err := renderPyformat("select %(v)s", map[string]interface{}{"v": "%(v)s"})
	assertNilF(t, err)
	assertEqualE(t, out, "select '%(v)s'")
}

func TestRenderPyformatMissingNamed(t *testing.T) {
	_, err := renderPyformat("select %(a)s", map[string]interface{}{"b": 1})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrBindArityMismatch)
}

func TestRenderPyformatUnbindable(t *testing.T) {
	_, err := renderPyformat("select %s", []interface{}{[]interface{}{1, 2}})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrUnsupportedBindType)
	assertTrueE(t, IsProgrammingError(err))
}

func TestBuildQmarkBindings(t *testing.T) {
	bindings, err := buildQmarkBindings("select * from t where a = ? and b = :2",
		[]interface{}{int64(7), "x"})
	assertNilF(t, err)
	assertEqualF(t, len(bindings), 2)
	assertEqualE(t, bindings["1"].Type, "FIXED")
	assertEqualE(t, *(bindings["1"].Value.(*string)), "7")
	assertEqualE(t, bindings["2"].Type, "TEXT")
}

func TestBuildQmarkBindingsIgnoresLiterals(t *testing.T) {
	bindings, err := buildQmarkBindings("select 'what?' from t where a = ?",
		[]interface{}{int64(1)})
	assertNilF(t, err)
	assertEqualE(t, len(bindings), 1)
}

func TestBuildQmarkBindingsArityMismatch(t *testing.T) {
	_, err := buildQmarkBindings("select * from t where a = ?", []interface{}{1, 2})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrBindArityMismatch)
}

func TestBuildQmarkBulkBindings(t *testing.T) {
	bindings, count, err := buildQmarkBulkBindings("insert into t values(?, ?)",
		[][]interface{}{
			{int64(1), "a"},
			{int64(2), "b"},
			{nil, "c"},
		})
	assertNilF(t, err)
	assertEqualE(t, count, 6)
	assertEqualF(t, len(bindings), 2)
	col1 := bindings["1"].Value.([]*string)
	assertEqualF(t, len(col1), 3)
	assertEqualE(t, *col1[0], "1")
	assertNilE(t, col1[2])
	assertEqualE(t, bindings["1"].Type, "FIXED")
	assertEqualE(t, bindings["2"].Type, "TEXT")
}

func TestBuildQmarkBulkBindingsSizeMismatch(t *testing.T) {
	_, _, err := buildQmarkBulkBindings("insert into t values(?, ?)",
		[][]interface{}{
			{int64(1), "a"},
			{int64(2)},
		})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrBulkDataSizeMismatch)
	assertTrueE(t, IsInterfaceError(err))
	assertStringContainsE(t, err.Error(), "expected: 2, got: 1")
}

func TestRewriteMultiRowInsert(t *testing.T) {
	out, err := rewriteMultiRowInsert("insert into t(a, b) values(%s, %s);",
		[][]interface{}{
			{int64(1), "x"},
			{int64(2), "y"},
		})
	assertNilF(t, err)
	assertEqualE(t, out, "insert into t(a, b) values(1, 'x'),(2, 'y')")
}

func TestRewriteMultiRowInsertNotInsert(t *testing.T) {
	_, err := rewriteMultiRowInsert("update t set a = %s", [][]interface{}{{1}})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrFailedToRewriteMultiRowInsert)
	assertTrueE(t, IsInterfaceError(err))
}

func TestRewriteMultiRowInsertNoValuesTail(t *testing.T) {
	_, err := rewriteMultiRowInsert("insert into t select * from s", [][]interface{}{{1}})
	assertNotNilF(t, err)
	assertEqualE(t, ErrorNumber(err), ErrFailedToRewriteMultiRowInsert)
}

func TestStripLiterals(t *testing.T) {
	out := stripLiterals(`select 'a?b', "c:1" from t where x = ?`)
	assertFalseE(t, strings.Contains(out[:20], "?"))
	assertTrueE(t, strings.HasSuffix(out, "?"))
}

func TestSerializeBindStage(t *testing.T) {
	data, err := serializeBindStage([][]interface{}{
		{int64(1), "a"},
		{int64(2), "with,comma"},
	})
	assertNilF(t, err)
	assertEqualE(t, string(data), "1,a\n2,\"with,comma\"\n")
}

func TestParseParamStyle(t *testing.T) {
	style, err := parseParamStyle("")
	assertNilF(t, err)
	assertEqualE(t, style, ParamStylePyformat)

	style, err = parseParamStyle("numeric")
	assertNilF(t, err)
	assertEqualE(t, style, ParamStyleQmark)

	_, err = parseParamStyle("bogus")
	assertNotNilE(t, err)
}
