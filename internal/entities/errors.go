package entities

import "fmt"

// ConfigurationError reports an invalid model or relation declaration
type ConfigurationError struct {
	Model    string
	Relation string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Model != "" && e.Relation != "":
		return fmt.Sprintf("invalid relation %s.%s: %s", e.Model, e.Relation, e.Reason)
	case e.Model != "":
		return fmt.Sprintf("invalid model %s: %s", e.Model, e.Reason)
	default:
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
}

// ParseError reports a malformed eager expression
type ParseError struct {
	Expression string
	Position   int // 0-based byte offset into Expression
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid eager expression %q at position %d: %s", e.Expression, e.Position, e.Reason)
}

// RelationError reports a relation name unknown to a model
type RelationError struct {
	Model    string
	Relation string
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("unknown relation %q for model %s", e.Relation, e.Model)
}

// CardinalityError reports more than one related record given to a one-to-one relation
type CardinalityError struct {
	Model    string
	Relation string
	Count    int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("relation %s.%s is one-to-one but got %d related records", e.Model, e.Relation, e.Count)
}
