package sql

import (
	"fmt"
	"regexp"
	"strings"

	"mit.edu/dsg/rowdb/common"
)

// LikeExpr matches a string against a SQL LIKE pattern: % matches any run of characters, _ matches one, and a
// backslash makes the following %, _ or backslash literal. Any other backslash is itself literal. A constant pattern
// is compiled once when bound.
type LikeExpr struct {
	boolPredicate
	value   Expr
	pattern Expr
	negate  bool
	re      *regexp.Regexp
}

func Like(value, pattern Expr) Expr {
	e := &LikeExpr{value: value, pattern: pattern}
	e.self = e
	return e
}

func NotLike(value, pattern Expr) Expr {
	e := &LikeExpr{value: value, pattern: pattern, negate: true}
	e.self = e
	return e
}

func (e *LikeExpr) Bind(q *Query) (Expr, error) {
	value, err := e.value.Bind(q)
	if err != nil {
		return nil, err
	}
	pattern, err := e.pattern.Bind(q)
	if err != nil {
		return nil, err
	}
	bound := &LikeExpr{value: value, pattern: pattern, negate: e.negate}
	bound.self = bound
	if lit, ok := pattern.(*StringExpr); ok {
		if bound.re, err = compileLike(lit.value); err != nil {
			return nil, err
		}
	}
	return bound, nil
}

// likeToRegex converts LIKE syntax to an anchored Go regular expression. ReplaceAll on a QuoteMeta'd pattern
// cannot work because QuoteMeta leaves % and _ alone, so a literal % would be indistinguishable from a wildcard.
func likeToRegex(pattern string) string {
	var regexPattern strings.Builder
	regexPattern.WriteString("(?s)^")
	chars := []rune(pattern)
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		switch {
		case c == '\\' && i+1 < len(chars) && (chars[i+1] == '%' || chars[i+1] == '_' || chars[i+1] == '\\'):
			regexPattern.WriteString(regexp.QuoteMeta(string(chars[i+1])))
			i++
		case c == '%':
			regexPattern.WriteString(".*")
		case c == '_':
			regexPattern.WriteString(".")
		default:
			regexPattern.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	regexPattern.WriteString("$")
	return regexPattern.String()
}

func compileLike(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(likeToRegex(pattern))
	if err != nil {
		return nil, common.WrapError(common.ParseError, err, "invalid LIKE pattern '%s'", pattern)
	}
	return re, nil
}

func (e *LikeExpr) Cost(fromList []*FromItem) Cost {
	return maxCost(fromList, e.value, e.pattern)
}

func (e *LikeExpr) EvalBoolean(ctx *QueryContext) (Bool, error) {
	target, ok, err := e.value.EvalString(ctx)
	if err != nil || !ok {
		return Unknown, err
	}
	re := e.re
	if re == nil {
		pattern, ok, err := e.pattern.EvalString(ctx)
		if err != nil || !ok {
			return Unknown, err
		}
		if re, err = compileLike(pattern); err != nil {
			return Unknown, err
		}
	}
	return BoolOf(re.MatchString(target) != e.negate), nil
}

func (e *LikeExpr) InitGroup(ctx *QueryContext) error {
	return initGroupAll(ctx, e.value, e.pattern)
}

func (e *LikeExpr) EvalGroup(ctx *QueryContext) error {
	return evalGroupAll(ctx, e.value, e.pattern)
}

func (e *LikeExpr) String() string {
	if e.negate {
		return fmt.Sprintf("(%s NOT LIKE %s)", e.value.String(), e.pattern.String())
	}
	return fmt.Sprintf("(%s LIKE %s)", e.value.String(), e.pattern.String())
}
