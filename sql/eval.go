package sql

import (
	"math"
	"strconv"
	"time"

	"mit.edu/dsg/rowdb/common"
	"mit.edu/dsg/rowdb/storage"
)

// LongFromString evaluates e as a string and parses it as a base-10 long. NULL gives 0. A malformed string is a
// ParseError and is never turned into 0.
func LongFromString(e Expr, ctx *QueryContext) (int64, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil || !ok {
		return 0, err
	}
	return parseLong(s)
}

// DoubleFromString evaluates e as a string and parses it as a double. NULL gives 0.
func DoubleFromString(e Expr, ctx *QueryContext) (float64, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil || !ok {
		return 0, err
	}
	return parseDouble(s)
}

// DateFromString evaluates e as a string and parses it with the context's date parser. A NULL string cannot be
// turned into a date and is a ParseError.
func DateFromString(e Expr, ctx *QueryContext) (int64, error) {
	s, ok, err := e.EvalString(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, common.NewError(common.ParseError, "cannot convert NULL to a date")
	}
	return ctx.ParseDate(s)
}

func parseLong(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, common.WrapError(common.ParseError, err, "cannot convert '%s' to a long", s)
	}
	return n, nil
}

func parseDouble(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, common.WrapError(common.ParseError, err, "cannot convert '%s' to a double", s)
	}
	return f, nil
}

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ResultWriter is implemented by nodes that write a typed value to the result instead of its string form.
type ResultWriter interface {
	EvalToResult(ctx *QueryContext, res *SelectResult) error
}

// BufferWriter is implemented by nodes that encode themselves into a column faster than the generic path, such as a
// column copied into a column of the same type.
type BufferWriter interface {
	EvalToBuffer(ctx *QueryContext, buf []byte, columnType common.ColumnType) (int, error)
}

// EvalToResult writes the value of e for the current row as the next cell of res.
func EvalToResult(e Expr, ctx *QueryContext, res *SelectResult) error {
	if w, ok := e.(ResultWriter); ok {
		return w.EvalToResult(ctx, res)
	}
	s, ok, err := e.EvalString(ctx)
	if err != nil {
		return err
	}
	if !ok {
		res.WriteNull()
		return nil
	}
	res.WriteString(s)
	return nil
}

// EvalToBuffer encodes the value of e as a column of type columnType at the start of buf and returns the number of
// bytes written. A NULL value writes nothing and returns -1. buf must hold columnType.MaxSize bytes.
//
//	INT      the 32-bit truncation of EvalLong
//	LONG     EvalLong
//	DATE     EvalLong for long-typed expressions, EvalDate otherwise
//	VARCHAR  EvalString; more than 255 UTF-16 code units is an EncodingError
func EvalToBuffer(e Expr, ctx *QueryContext, buf []byte, columnType common.ColumnType) (int, error) {
	if w, ok := e.(BufferWriter); ok {
		return w.EvalToBuffer(ctx, buf, columnType)
	}
	return encodeExpr(e, ctx, buf, columnType)
}

// encodeExpr is the generic EvalToBuffer path, built on the typed evaluators.
func encodeExpr(e Expr, ctx *QueryContext, buf []byte, columnType common.ColumnType) (int, error) {
	switch columnType {
	case common.IntColumn, common.LongColumn, common.DateColumn:
		null, err := e.IsNull(ctx)
		if err != nil {
			return 0, err
		}
		if null {
			return -1, nil
		}
		var v int64
		if columnType == common.DateColumn && !IsLong(e) {
			v, err = e.EvalDate(ctx)
		} else {
			v, err = e.EvalLong(ctx)
		}
		if err != nil {
			return 0, err
		}
		if columnType == common.IntColumn {
			return storage.PutInt(buf, int32(v)), nil
		}
		return storage.PutLong(buf, v), nil

	case common.VarCharColumn:
		s, ok, err := e.EvalString(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return -1, nil
		}
		return storage.PutVarChar(buf, s)
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot encode an expression as column type %s", columnType)
}

// Conversions of a Value to the typed evaluator results. NULL converts to the zero value.

func valueString(v common.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	if v.Type() == common.BooleanType {
		return boolDigits(v.BoolValue()), true
	}
	return v.String(), true
}

// ValueToLong converts v the way EvalLong would: doubles truncate and strings are parsed.
func ValueToLong(v common.Value) (int64, error) {
	if v.IsNull() {
		return 0, nil
	}
	switch t := v.Type(); {
	case t.IsLong() || t == common.BooleanType:
		return v.LongValue(), nil
	case t == common.DoubleType:
		return int64(v.DoubleValue()), nil
	case t == common.StringType:
		return parseLong(v.StringValue())
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot convert %s to a long", v.Type())
}

// ValueToDouble converts v the way EvalDouble would.
func ValueToDouble(v common.Value) (float64, error) {
	if v.IsNull() {
		return 0, nil
	}
	switch t := v.Type(); {
	case t.IsDouble():
		return v.DoubleValue(), nil
	case t == common.BooleanType:
		return float64(v.LongValue()), nil
	case t == common.StringType:
		return parseDouble(v.StringValue())
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot convert %s to a double", v.Type())
}

func valueDate(ctx *QueryContext, v common.Value) (int64, error) {
	switch t := v.Type(); {
	case v.IsNull():
		return 0, common.NewError(common.ParseError, "cannot convert NULL to a date")
	case t.IsLong():
		return v.LongValue(), nil
	case t == common.DoubleType:
		return int64(v.DoubleValue()), nil
	case t == common.StringType:
		return ctx.ParseDate(v.StringValue())
	}
	return 0, common.NewError(common.UnsupportedOperationError, "cannot convert %s to a date", v.Type())
}

func valueBoolean(v common.Value) (Bool, error) {
	if v.IsNull() {
		return Unknown, nil
	}
	switch t := v.Type(); {
	case t == common.BooleanType:
		return BoolOf(v.BoolValue()), nil
	case t.IsLong():
		return BoolOf(v.LongValue() != 0), nil
	case t == common.DoubleType:
		return BoolOf(v.DoubleValue() != 0), nil
	case t == common.StringType:
		return parseBoolean(v.StringValue())
	}
	return Unknown, common.NewError(common.UnsupportedOperationError, "cannot convert %s to a boolean", v.Type())
}

func parseBoolean(s string) (Bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return Unknown, common.WrapError(common.ParseError, err, "cannot convert '%s' to a boolean", s)
	}
	return BoolOf(b), nil
}

func boolDigits(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParamValue converts a Go value into a parameter Value. nil is an untyped NULL.
func ParamValue(v any) (common.Value, error) {
	switch x := v.(type) {
	case nil:
		return common.NewNullValue(common.UnknownType), nil
	case common.Value:
		return x, nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return common.NewIntValue(int32(x)), nil
		}
		return common.NewLongValue(int64(x)), nil
	case int32:
		return common.NewIntValue(x), nil
	case int64:
		return common.NewLongValue(x), nil
	case float64:
		return common.NewDoubleValue(x), nil
	case float32:
		return common.NewDoubleValue(float64(x)), nil
	case string:
		return common.NewStringValue(x), nil
	case bool:
		return common.NewBooleanValue(x), nil
	case []byte:
		return common.NewBytesValue(x), nil
	case time.Time:
		return common.NewDateValue(x.UnixMilli()), nil
	}
	return common.Value{}, common.NewError(common.UnsupportedOperationError, "unsupported parameter type %T", v)
}
