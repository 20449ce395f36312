package parser

// RelationLookup answers relation questions about registered models
type RelationLookup interface {
	// RelatedModel returns the model a relation points to or a *entities.RelationError
	RelatedModel(model, relation string) (string, error)
}

// Validator checks relation names of a tree against concrete models
type Validator struct {
	lookup RelationLookup
}

// NewValidator creates a new Validator
func NewValidator(lookup RelationLookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate checks every named relation of the tree starting at model.
// Wildcards are expanded at fetch time and need no check.
func (v *Validator) Validate(model string, root *EagerNode) error {
	return v.validateNode(model, root)
}

func (v *Validator) validateNode(model string, node *EagerNode) error {
	for _, child := range node.Children {
		related, err := v.lookup.RelatedModel(model, child.RelationName)
		if err != nil {
			return err
		}

		// name.^ applies the same relation on the related model
		if child.AllRecursive && related != model {
			if _, err := v.lookup.RelatedModel(related, child.RelationName); err != nil {
				return err
			}
		}

		if err := v.validateNode(related, child); err != nil {
			return err
		}
	}
	return nil
}
