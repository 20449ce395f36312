package relation

import (
	"fmt"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// ModelLookup finds registered models by name
type ModelLookup interface {
	Model(name string) (*entities.Model, bool)
}

// Resolve turns a relation mapping declared on owner into a bound relation descriptor.
// It performs no I/O and returns a descriptor only when the whole declaration is valid.
func Resolve(owner *entities.Model, mapping *entities.RelationMapping, models ModelLookup, executor repositories.Executor) (*Relation, error) {
	fail := func(format string, args ...any) error {
		return &entities.ConfigurationError{
			Model:    owner.Name,
			Relation: mapping.Name,
			Reason:   fmt.Sprintf(format, args...),
		}
	}

	related, err := resolveRelatedModel(mapping, models)
	if err != nil {
		return nil, fail("%v", err)
	}

	switch mapping.Kind {
	case entities.OneToOne, entities.OneToMany, entities.ManyToMany:
	default:
		return nil, fail("unknown relation kind %s", mapping.Kind)
	}

	if mapping.Join == nil {
		return nil, fail("join is required")
	}
	from, err := entities.ParseColumnRef(mapping.Join.From)
	if err != nil {
		return nil, fail("join.from: %v", err)
	}
	to, err := entities.ParseColumnRef(mapping.Join.To)
	if err != nil {
		return nil, fail("join.to: %v", err)
	}

	// declared order wins when both orientations match (self references)
	var ownerRef, relatedRef entities.ColumnRef
	swapped := false
	switch {
	case from.Table == owner.Table && to.Table == related.Table:
		ownerRef, relatedRef = from, to
	case to.Table == owner.Table && from.Table == related.Table:
		ownerRef, relatedRef = to, from
		swapped = true
	default:
		return nil, fail("join %s = %s must reference tables %s and %s", from, to, owner.Table, related.Table)
	}

	rel := &Relation{
		name:            mapping.Name,
		kind:            mapping.Kind,
		owner:           owner,
		related:         related,
		ownerColumn:     ownerRef.Column,
		ownerProperty:   owner.ColumnMapper().ToProperty(ownerRef.Column),
		relatedColumn:   relatedRef.Column,
		relatedProperty: related.ColumnMapper().ToProperty(relatedRef.Column),
		filter:          mapping.Filter,
		executor:        executor,
	}

	through := mapping.Join.Through
	switch {
	case mapping.Kind == entities.ManyToMany && through == nil:
		return nil, fail("many_to_many relations require a through table")
	case mapping.Kind != entities.ManyToMany && through != nil:
		return nil, fail("%s relations do not take a through table", mapping.Kind)
	case through != nil:
		throughFrom, err := entities.ParseColumnRef(through.From)
		if err != nil {
			return nil, fail("through.from: %v", err)
		}
		throughTo, err := entities.ParseColumnRef(through.To)
		if err != nil {
			return nil, fail("through.to: %v", err)
		}
		if throughFrom.Table != throughTo.Table {
			return nil, fail("through columns %s and %s must name the same table", throughFrom, throughTo)
		}

		ownerSide, relatedSide := throughFrom, throughTo
		if swapped {
			ownerSide, relatedSide = throughTo, throughFrom
		}
		rel.joinTable = throughFrom.Table
		rel.joinTableOwnerColumn = ownerSide.Column
		rel.joinTableRelatedColumn = relatedSide.Column
	}

	if !invertible(owner.ColumnMapper(), rel.ownerColumn) {
		return nil, fail("column %s of %s does not map back from property %s", rel.ownerColumn, owner.Name, rel.ownerProperty)
	}
	if !invertible(related.ColumnMapper(), rel.relatedColumn) {
		return nil, fail("column %s of %s does not map back from property %s", rel.relatedColumn, related.Name, rel.relatedProperty)
	}

	return rel, nil
}

func resolveRelatedModel(mapping *entities.RelationMapping, models ModelLookup) (*entities.Model, error) {
	if mapping.Related != nil {
		registered, ok := models.Model(mapping.Related.Name)
		if !ok || registered != mapping.Related {
			return nil, fmt.Errorf("related model %s is not registered", mapping.Related.Name)
		}
		return registered, nil
	}

	if mapping.RelatedModel == "" {
		return nil, fmt.Errorf("related model is required")
	}
	related, ok := models.Model(mapping.RelatedModel)
	if !ok {
		return nil, fmt.Errorf("related model %s is not registered", mapping.RelatedModel)
	}
	return related, nil
}

func invertible(mapper entities.ColumnMapper, column string) bool {
	return mapper.ToColumn(mapper.ToProperty(column)) == column
}
