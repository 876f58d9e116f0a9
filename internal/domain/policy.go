package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operator is the comparison a PolicyRule applies to the extracted Fact.
// The zero value is invalid so an unparsed operator never evaluates.
type Operator uint8

const (
	OperatorInvalid Operator = iota
	OperatorMatchOne
	OperatorMatchAll
	OperatorGreaterThan
	OperatorLessThan
	OperatorContains
	OperatorExists
	OperatorNotExists
)

var operatorNames = map[Operator]string{
	OperatorMatchOne:    "MATCH_ONE",
	OperatorMatchAll:    "MATCH_ALL",
	OperatorGreaterThan: "GREATER_THAN",
	OperatorLessThan:    "LESS_THAN",
	OperatorContains:    "CONTAINS",
	OperatorExists:      "EXISTS",
	OperatorNotExists:   "NOT_EXISTS",
}

// ParseOperator converts the wire name into an Operator.
func ParseOperator(name string) (Operator, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for op, opName := range operatorNames {
		if opName == normalized {
			return op, nil
		}
	}
	return OperatorInvalid, fmt.Errorf("unknown rule operator %q", name)
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "INVALID"
}

// Valid reports whether o is one of the declared operators.
func (o Operator) Valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// Numeric reports whether the operator compares numbers.
func (o Operator) Numeric() bool {
	return o == OperatorGreaterThan || o == OperatorLessThan
}

func (o Operator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid operator %d", o)
	}
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(text []byte) error {
	op, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// RuleValueKind tags the active member of a RuleValue.
type RuleValueKind uint8

const (
	RuleValueNone RuleValueKind = iota
	RuleValueNumber
	RuleValueString
	RuleValueList
)

// RuleValue is the threshold of a PolicyRule: a number, a string or a list of strings.
type RuleValue struct {
	kind   RuleValueKind
	number float64
	text   string
	list   []string
}

// NumberValue builds a numeric RuleValue.
func NumberValue(n float64) RuleValue {
	return RuleValue{kind: RuleValueNumber, number: n}
}

// StringValue builds a string RuleValue.
func StringValue(s string) RuleValue {
	return RuleValue{kind: RuleValueString, text: s}
}

// ListValue builds a list RuleValue. The input slice is copied.
func ListValue(items ...string) RuleValue {
	return RuleValue{kind: RuleValueList, list: append([]string(nil), items...)}
}

func (v RuleValue) Kind() RuleValueKind { return v.kind }

// Number returns the numeric threshold. String values holding a number are
// accepted because payer rules are frequently keyed in as text.
func (v RuleValue) Number() (float64, bool) {
	switch v.kind {
	case RuleValueNumber:
		return v.number, true
	case RuleValueString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Strings returns the value as a list of needles for text operators.
func (v RuleValue) Strings() []string {
	switch v.kind {
	case RuleValueList:
		return append([]string(nil), v.list...)
	case RuleValueString:
		return []string{v.text}
	case RuleValueNumber:
		return []string{strconv.FormatFloat(v.number, 'f', -1, 64)}
	default:
		return nil
	}
}

func (v RuleValue) String() string {
	switch v.kind {
	case RuleValueList:
		return "[" + strings.Join(v.list, ", ") + "]"
	case RuleValueNone:
		return ""
	default:
		return v.Strings()[0]
	}
}

func (v RuleValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case RuleValueNumber:
		return json.Marshal(v.number)
	case RuleValueString:
		return json.Marshal(v.text)
	case RuleValueList:
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

func (v *RuleValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ruleValueFrom(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v RuleValue) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case RuleValueNumber:
		return v.number, nil
	case RuleValueString:
		return v.text, nil
	case RuleValueList:
		return v.list, nil
	default:
		return nil, nil
	}
}

func (v *RuleValue) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ruleValueFrom(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func ruleValueFrom(raw interface{}) (RuleValue, error) {
	switch typed := raw.(type) {
	case nil:
		return RuleValue{}, nil
	case float64:
		return NumberValue(typed), nil
	case int:
		return NumberValue(float64(typed)), nil
	case string:
		return StringValue(typed), nil
	case bool:
		return StringValue(strconv.FormatBool(typed)), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			switch elem := item.(type) {
			case string:
				items = append(items, elem)
			case float64, int:
				items = append(items, fmt.Sprint(elem))
			default:
				return RuleValue{}, fmt.Errorf("unsupported rule value list element %T", item)
			}
		}
		return ListValue(items...), nil
	default:
		return RuleValue{}, fmt.Errorf("unsupported rule value type %T", raw)
	}
}

// PolicyRule is one codified medical-necessity criterion.
type PolicyRule struct {
	ID             string    `json:"id" yaml:"id"`
	Category       string    `json:"category" yaml:"category"`
	Operator       Operator  `json:"operator" yaml:"operator"`
	Value          RuleValue `json:"value" yaml:"value"`
	FailureMessage string    `json:"failureMessage" yaml:"failure_message"`
}

// Validate rejects rules the evaluator could never satisfy meaningfully.
func (r PolicyRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %s: category is required", r.ID)
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("rule %s: invalid operator", r.ID)
	}
	if r.Operator.Numeric() {
		if _, ok := r.Value.Number(); !ok {
			return fmt.Errorf("rule %s: %s requires a numeric value", r.ID, r.Operator)
		}
	}
	return nil
}

// Policy groups the rules that gate one procedure code.
type Policy struct {
	Code   string       `json:"code" yaml:"code"`
	Title  string       `json:"title,omitempty" yaml:"title,omitempty"`
	Payer  string       `json:"payer,omitempty" yaml:"payer,omitempty"`
	Active bool         `json:"active" yaml:"active"`
	Rules  []PolicyRule `json:"rules" yaml:"rules"`
}

// Categories returns the distinct rule categories in first-seen order.
func (p Policy) Categories() []string {
	seen := make(map[string]struct{}, len(p.Rules))
	var categories []string
	for _, rule := range p.Rules {
		if _, ok := seen[rule.Category]; ok {
			continue
		}
		seen[rule.Category] = struct{}{}
		categories = append(categories, rule.Category)
	}
	return categories
}
