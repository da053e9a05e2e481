package expr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Expr represents a node in an expression tree.
// Expressions are stateless and immutable, so one predicate may drive any number of scans.
type Expr interface {
	// Eval evaluates the expression against a record laid out by schema.
	Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error)

	// String returns a string representation of the expression.
	String() string
}

// Evaluate reports whether rec satisfies cond. A nil condition accepts every record; a condition that
// does not evaluate to a boolean is a type error.
func Evaluate(rec *storage.Record, schema *catalog.Schema, cond Expr) (bool, error) {
	if cond == nil {
		return true, nil
	}
	v, err := cond.Eval(rec, schema)
	if err != nil {
		return false, err
	}
	if v.Type() != common.BoolType {
		return false, common.NewError(common.TypeMismatchError, "condition %s yields %s, not bool", cond, v.Type())
	}
	return v.BoolValue(), nil
}

type ConstantValueExpr struct {
	val common.Value
}

func NewConstantValueExpression(val common.Value) *ConstantValueExpr {
	return &ConstantValueExpr{val: val}
}

func (e *ConstantValueExpr) Eval(*storage.Record, *catalog.Schema) (common.Value, error) {
	return e.val, nil
}

func (e *ConstantValueExpr) String() string {
	if e.val.Type() == common.StringType {
		return fmt.Sprintf("'%s'", e.val.StringValue())
	}
	return e.val.String()
}

// AttributeExpr reads one attribute of the record under evaluation.
type AttributeExpr struct {
	attrNum int
}

func NewAttributeExpression(attrNum int) *AttributeExpr {
	return &AttributeExpr{attrNum: attrNum}
}

// NewNamedAttributeExpression resolves name against schema.
func NewNamedAttributeExpression(schema *catalog.Schema, name string) (*AttributeExpr, error) {
	i, ok := schema.ColumnIndex(name)
	if !ok {
		return nil, common.NewError(common.InvalidSchemaError, "no attribute %q in %s", name, schema)
	}
	return &AttributeExpr{attrNum: i}, nil
}

func (e *AttributeExpr) Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error) {
	return schema.GetAttr(rec, e.attrNum)
}

func (e *AttributeExpr) String() string {
	return fmt.Sprintf("attr%d", e.attrNum)
}

type ComparisonType int

const (
	Equal ComparisonType = iota
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
)

func (c ComparisonType) String() string {
	switch c {
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEqual:
		return ">="
	case LessThanOrEqual:
		return "<="
	}
	return "???"
}

type ComparisonExpression struct {
	left     Expr
	right    Expr
	compType ComparisonType
}

func NewComparisonExpression(left Expr, right Expr, compType ComparisonType) *ComparisonExpression {
	return &ComparisonExpression{
		left:     left,
		right:    right,
		compType: compType,
	}
}

func (e *ComparisonExpression) Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error) {
	val1, val2, err := evalPair(e.left, e.right, rec, schema)
	if err != nil {
		return common.Value{}, err
	}
	if val1.Type() != val2.Type() {
		return common.Value{}, common.NewError(common.TypeMismatchError,
			"cannot compare %s with %s in %s", val1.Type(), val2.Type(), e)
	}

	cmp := val1.Compare(val2)
	var result bool
	switch e.compType {
	case Equal:
		result = cmp == 0
	case NotEqual:
		result = cmp != 0
	case GreaterThan:
		result = cmp > 0
	case LessThan:
		result = cmp < 0
	case GreaterThanOrEqual:
		result = cmp >= 0
	case LessThanOrEqual:
		result = cmp <= 0
	}
	return common.NewBoolValue(result), nil
}

func (e *ComparisonExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.compType.String(), e.right.String())
}

type BinaryLogicType int

const (
	And BinaryLogicType = iota
	Or
)

func (l BinaryLogicType) String() string {
	switch l {
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return "???"
}

type BinaryLogicExpression struct {
	left      Expr
	right     Expr
	logicType BinaryLogicType
}

func NewBinaryLogicExpression(left Expr, right Expr, logicType BinaryLogicType) *BinaryLogicExpression {
	return &BinaryLogicExpression{
		left:      left,
		right:     right,
		logicType: logicType,
	}
}

// Eval evaluates both sides, so a type error on either side is reported even when the other side alone
// decides the result.
func (e *BinaryLogicExpression) Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error) {
	val1, val2, err := evalPair(e.left, e.right, rec, schema)
	if err != nil {
		return common.Value{}, err
	}
	if val1.Type() != common.BoolType || val2.Type() != common.BoolType {
		return common.Value{}, common.NewError(common.TypeMismatchError,
			"%s needs bool operands, got %s and %s", e.logicType, val1.Type(), val2.Type())
	}

	switch e.logicType {
	case And:
		return common.NewBoolValue(val1.BoolValue() && val2.BoolValue()), nil
	case Or:
		return common.NewBoolValue(val1.BoolValue() || val2.BoolValue()), nil
	default:
		panic("unknown logic type")
	}
}

func (e *BinaryLogicExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.logicType.String(), e.right.String())
}

type NegationExpression struct {
	child Expr
}

func NewNegationExpression(child Expr) *NegationExpression {
	return &NegationExpression{
		child: child,
	}
}

func (e *NegationExpression) Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error) {
	val, err := e.child.Eval(rec, schema)
	if err != nil {
		return common.Value{}, err
	}
	if val.Type() != common.BoolType {
		return common.Value{}, common.NewError(common.TypeMismatchError, "NOT needs a bool operand, got %s", val.Type())
	}
	return common.NewBoolValue(!val.BoolValue()), nil
}

func (e *NegationExpression) String() string {
	return fmt.Sprintf("!(%s)", e.child.String())
}

type LikeExpression struct {
	left  Expr // The value to check
	right Expr // The pattern (usually a constant)
}

func NewLikeExpression(left Expr, right Expr) *LikeExpression {
	return &LikeExpression{left: left, right: right}
}

func (e *LikeExpression) Eval(rec *storage.Record, schema *catalog.Schema) (common.Value, error) {
	val, patternVal, err := evalPair(e.left, e.right, rec, schema)
	if err != nil {
		return common.Value{}, err
	}
	if val.Type() != common.StringType || patternVal.Type() != common.StringType {
		return common.Value{}, common.NewError(common.TypeMismatchError,
			"LIKE needs string operands, got %s and %s", val.Type(), patternVal.Type())
	}

	re, err := likePattern(patternVal.StringValue())
	if err != nil {
		return common.NewBoolValue(false), nil
	}
	return common.NewBoolValue(re.MatchString(val.StringValue())), nil
}

func (e *LikeExpression) String() string {
	return fmt.Sprintf("(%s LIKE %s)", e.left.String(), e.right.String())
}

// likePattern converts SQL LIKE syntax into an anchored regular expression. A backslash makes the
// following % or _ literal.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	chars := []rune(pattern)
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		switch {
		case c == '\\' && i+1 < len(chars) && (chars[i+1] == '%' || chars[i+1] == '_'):
			b.WriteString(regexp.QuoteMeta(string(chars[i+1])))
			i++
		case c == '%':
			b.WriteString(".*")
		case c == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func evalPair(left, right Expr, rec *storage.Record, schema *catalog.Schema) (common.Value, common.Value, error) {
	val1, err := left.Eval(rec, schema)
	if err != nil {
		return common.Value{}, common.Value{}, err
	}
	val2, err := right.Eval(rec, schema)
	if err != nil {
		return common.Value{}, common.Value{}, err
	}
	return val1, val2, nil
}
