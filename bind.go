package goboreal

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParamStyle selects the placeholder syntax a session binds parameters with.
// The two styles are mutually exclusive per connection.
type ParamStyle string

const (
	// ParamStylePyformat interpolates %s and %(name)s placeholders client-side
	// into SQL literals.
	ParamStylePyformat ParamStyle = "pyformat"
	// ParamStyleQmark sends ? and :N placeholders server-side as typed
	// bindings.
	ParamStyleQmark ParamStyle = "qmark"
)

func parseParamStyle(v string) (ParamStyle, error) {
	switch strings.ToLower(v) {
	case "", string(ParamStylePyformat):
		return ParamStylePyformat, nil
	case string(ParamStyleQmark), "numeric":
		return ParamStyleQmark, nil
	}
	return "", fmt.Errorf("unknown paramstyle: %v", v)
}

var (
	insertRe       = regexp.MustCompile(`(?is)^\s*insert\s+into`)
	valuesTailRe   = regexp.MustCompile(`(?is)\bvalues\s*(\(.*\))\s*$`)
	qmarkHolderRe  = regexp.MustCompile(`\?|:\d+`)
	namedHolderRe  = regexp.MustCompile(`%\((\w+)\)s`)
	trailingSemiRe = regexp.MustCompile(`;\s*$`)
)

// renderPyformat interpolates params into query client-side. Positional
// params replace %s in order; a map replaces %(name)s placeholders. A literal
// percent is written %%. The placeholder count must match the value count.
func renderPyformat(query string, params interface{}) (string, error) {
	if params == nil {
		return query, nil
	}
	switch p := params.(type) {
	case map[string]interface{}:
		return renderPyformatNamed(query, p)
	case []interface{}:
		return renderPyformatPositional(query, p)
	}
	return "", &BorealError{
		Number:      ErrUnsupportedBindType,
		SQLState:    SQLStateFeatureNotSupported,
		Class:       ClassProgramming,
		Message:     errMsgUnsupportedBindType,
		MessageArgs: []interface{}{params},
	}
}

func renderPyformatPositional(query string, params []interface{}) (string, error) {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(query) && query[i+1] == '%' {
			sb.WriteByte('%')
			i++
			continue
		}
		if i+1 < len(query) && query[i+1] == 's' {
			if next >= len(params) {
				return "", bindArityError(countPositionalHolders(query), len(params))
			}
			lit, err := valueToLiteral(params[next], "")
			if err != nil {
				return "", err
			}
			sb.WriteString(lit)
			next++
			i++
			continue
		}
		sb.WriteByte('%')
	}
	if next != len(params) {
		return "", bindArityError(countPositionalHolders(query), len(params))
	}
	return sb.String(), nil
}

// renderPyformatNamed scans the statement once, replacing %(name)s holders
// and unescaping %% as it goes. Substituted values are never rescanned, so a
// bound value containing placeholder syntax travels verbatim.
func renderPyformatNamed(query string, params map[string]interface{}) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(query) && query[i+1] == '%' {
			sb.WriteByte('%')
			i++
			continue
		}
		if m := namedHolderRe.FindStringSubmatchIndex(query[i:]); m != nil && m[0] == 0 {
			name := query[i+m[2] : i+m[3]]
			v, ok := params[name]
			if !ok {
				return "", &BorealError{
					Number:      ErrBindArityMismatch,
					SQLState:    SQLStateFeatureNotSupported,
					Class:       ClassProgramming,
					Message:     "bind parameter %v is missing",
					MessageArgs: []interface{}{name},
				}
			}
			lit, err := valueToLiteral(v, "")
			if err != nil {
				return "", err
			}
			sb.WriteString(lit)
			i += m[1] - 1
			continue
		}
		sb.WriteByte('%')
	}
	return sb.String(), nil
}

func countPositionalHolders(query string) int {
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '%' && i+1 < len(query) {
			if query[i+1] == '%' {
				i++
			} else if query[i+1] == 's' {
				n++
				i++
			}
		}
	}
	return n
}

func bindArityError(placeholders, values int) error {
	return &BorealError{
		Number:      ErrBindArityMismatch,
		SQLState:    SQLStateFeatureNotSupported,
		Class:       ClassProgramming,
		Message:     errMsgBindArityMismatch,
		MessageArgs: []interface{}{placeholders, values},
	}
}

// buildQmarkBindings converts positional params into the server-side bindings
// map keyed "1".."N". The placeholder count in query must match.
func buildQmarkBindings(query string, params []interface{}) (map[string]execBindParameter, error) {
	holders := len(qmarkHolderRe.FindAllString(stripLiterals(query), -1))
	if holders != len(params) {
		return nil, bindArityError(holders, len(params))
	}
	if len(params) == 0 {
		return nil, nil
	}
	bindings := make(map[string]execBindParameter, len(params))
	for i, v := range params {
		val, err := valueToString(v, "")
		if err != nil {
			return nil, err
		}
		bindings[strconv.Itoa(i+1)] = execBindParameter{
			Type:  bindParamType(v),
			Value: val,
		}
	}
	return bindings, nil
}

// bindParamType resolves the wire type of a bind value, honoring a TypedValue
// override of the timestamp flavor.
func bindParamType(v interface{}) string {
	if tv, ok := v.(TypedValue); ok {
		if mode, err := dataTypeMode(tv.Type); err == nil {
			return goTypeToBoreal(tv.Value, mode)
		}
	}
	return goTypeToBoreal(v, "")
}

// buildQmarkBulkBindings converts row-oriented param sets into column-oriented
// binding arrays. Every row must have the same arity as the first.
func buildQmarkBulkBindings(query string, paramSets [][]interface{}) (map[string]execBindParameter, int, error) {
	if len(paramSets) == 0 {
		return nil, 0, nil
	}
	arity := len(paramSets[0])
	holders := len(qmarkHolderRe.FindAllString(stripLiterals(query), -1))
	if holders != arity {
		return nil, 0, bindArityError(holders, arity)
	}
	columns := make([][]*string, arity)
	types := make([]string, arity)
	for i := range columns {
		columns[i] = make([]*string, 0, len(paramSets))
	}
	for _, row := range paramSets {
		if len(row) != arity {
			return nil, 0, &BorealError{
				Number:      ErrBulkDataSizeMismatch,
				SQLState:    SQLStateFeatureNotSupported,
				Class:       ClassInterface,
				Message:     errMsgBulkDataSizeMismatch,
				MessageArgs: []interface{}{arity, len(row)},
			}
		}
		for i, v := range row {
			val, err := valueToString(v, "")
			if err != nil {
				return nil, 0, err
			}
			if v != nil && types[i] == "" {
				types[i] = bindParamType(v)
			}
			columns[i] = append(columns[i], val)
		}
	}
	bindings := make(map[string]execBindParameter, arity)
	for i, col := range columns {
		t := types[i]
		if t == "" {
			t = "TEXT"
		}
		bindings[strconv.Itoa(i+1)] = execBindParameter{Type: t, Value: col}
	}
	return bindings, len(paramSets) * arity, nil
}

// rewriteMultiRowInsert expands an INSERT statement with a single VALUES
// template into one carrying a rendered row per param set. The statement must
// end with its VALUES clause; anything else cannot be rewritten.
func rewriteMultiRowInsert(query string, paramSets [][]interface{}) (string, error) {
	stripped := trailingSemiRe.ReplaceAllString(query, "")
	if !insertRe.MatchString(stripped) {
		return "", rewriteError(query)
	}
	m := valuesTailRe.FindStringSubmatchIndex(stripped)
	if m == nil {
		return "", rewriteError(query)
	}
	template := stripped[m[2]:m[3]]
	head := stripped[:m[2]]
	rendered := make([]string, len(paramSets))
	for i, params := range paramSets {
		row, err := renderPyformatPositional(template, params)
		if err != nil {
			return "", err
		}
		rendered[i] = row
	}
	return head + strings.Join(rendered, ","), nil
}

func rewriteError(query string) error {
	return &BorealError{
		Number:   ErrFailedToRewriteMultiRowInsert,
		SQLState: SQLStateFeatureNotSupported,
		Class:    ClassInterface,
		Message:  errMsgFailedToRewriteMultiRowInsert,
	}
}

// stripLiterals blanks out quoted strings so placeholder characters inside
// them are not counted.
func stripLiterals(query string) string {
	out := []byte(query)
	inQuote := byte(0)
	for i := 0; i < len(out); i++ {
		c := out[i]
		if inQuote != 0 {
			if c == '\\' {
				if i+1 < len(out) {
					out[i+1] = ' '
				}
			} else if c == inQuote {
				inQuote = 0
			}
			out[i] = ' '
			continue
		}
		if c == '\'' || c == '"' {
			inQuote = c
			out[i] = ' '
		}
	}
	return string(out)
}

// serializeBindStage renders bulk param sets as CSV rows in server epoch
// encoding, ready to upload to the bind stage.
func serializeBindStage(paramSets [][]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range paramSets {
		record := make([]string, len(row))
		for i, v := range row {
			val, err := valueToString(v, "")
			if err != nil {
				return nil, err
			}
			if val != nil {
				record[i] = *val
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// uploadBindStage ships serialized bulk bindings to a stage and returns its
// location for the statement request.
func uploadBindStage(ctx context.Context, st SessionTransport, paramSets [][]interface{}) (string, error) {
	data, err := serializeBindStage(paramSets)
	if err != nil {
		return "", err
	}
	logger.WithContext(ctx).Infof("uploading %v binding rows to stage", len(paramSets))
	return st.UploadBindings(ctx, data)
}
