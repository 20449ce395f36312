package relation

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// Relation is a resolved relation descriptor.
// It is immutable after Resolve; WithExecutor returns a rebound copy.
type Relation struct {
	name    string
	kind    entities.RelationKind
	owner   *entities.Model
	related *entities.Model

	ownerColumn     string
	ownerProperty   string
	relatedColumn   string
	relatedProperty string

	joinTable              string
	joinTableOwnerColumn   string
	joinTableRelatedColumn string

	filter   sq.Sqlizer
	executor repositories.Executor
}

func (r *Relation) Name() string { return r.name }
func (r *Relation) Kind() entities.RelationKind { return r.kind }
func (r *Relation) OwnerModel() *entities.Model { return r.owner }
func (r *Relation) RelatedModel() *entities.Model { return r.related }
func (r *Relation) OwnerColumn() string { return r.ownerColumn }
func (r *Relation) OwnerProperty() string { return r.ownerProperty }
func (r *Relation) RelatedColumn() string { return r.relatedColumn }
func (r *Relation) RelatedProperty() string { return r.relatedProperty }
func (r *Relation) JoinTable() string { return r.joinTable }
func (r *Relation) JoinTableOwnerColumn() string { return r.joinTableOwnerColumn }
func (r *Relation) JoinTableRelatedColumn() string { return r.joinTableRelatedColumn }
func (r *Relation) Filter() sq.Sqlizer { return r.filter }
func (r *Relation) Executor() repositories.Executor { return r.executor }

// FullOwnerColumn returns the owner side of the join as "table.column"
func (r *Relation) FullOwnerColumn() string {
	return entities.ColumnRef{Table: r.owner.Table, Column: r.ownerColumn}.String()
}

// FullRelatedColumn returns the related side of the join as "table.column"
func (r *Relation) FullRelatedColumn() string {
	return entities.ColumnRef{Table: r.related.Table, Column: r.relatedColumn}.String()
}

// IsCollection reports whether the relation attaches a list of records
func (r *Relation) IsCollection() bool {
	return r.kind != entities.OneToOne
}

// WithExecutor returns a copy of the relation bound to another executor,
// typically a transaction. The receiver is not modified.
func (r *Relation) WithExecutor(ex repositories.Executor) *Relation {
	clone := *r
	clone.executor = ex
	return &clone
}

// Strategy returns the join strategy of the relation kind
func (r *Relation) Strategy() Strategy {
	switch r.kind {
	case entities.OneToOne:
		return &oneToOne{r}
	case entities.OneToMany:
		return &oneToMany{r}
	default:
		return &manyToMany{r}
	}
}
