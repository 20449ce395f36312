package entities

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// RelationKind identifies the join topology of a relation
type RelationKind int

const (
	RelationKindUnknown RelationKind = iota
	// OneToOne: the owner row holds the foreign key, one related record
	OneToOne
	// OneToMany: the related rows hold the foreign key, many related records
	OneToMany
	// ManyToMany: a join table holds both keys, many related records
	ManyToMany
)

var relationKindNames = map[RelationKind]string{
	OneToOne:   "one_to_one",
	OneToMany:  "one_to_many",
	ManyToMany: "many_to_many",
}

// String returns the declaration name of the kind
func (k RelationKind) String() string {
	if name, ok := relationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseRelationKind parses a declaration name such as "one_to_many"
func ParseRelationKind(name string) (RelationKind, error) {
	for k, n := range relationKindNames {
		if n == name {
			return k, nil
		}
	}
	return RelationKindUnknown, fmt.Errorf("unknown relation kind %q", name)
}

// ThroughSpec describes the join table of a many-to-many relation
type ThroughSpec struct {
	From string // Join table column paired with Join.From (e.g., "persons_movies.person_id")
	To   string // Join table column paired with Join.To (e.g., "persons_movies.movie_id")
}

// JoinSpec describes how owner and related tables are joined
type JoinSpec struct {
	From    string       // e.g., "persons.id"
	To      string       // e.g., "animals.owner_id"
	Through *ThroughSpec // Required for ManyToMany only
}

// RelationMapping is the declarative description of a relation
// Example: Person.pets = one_to_many Animal on persons.id = animals.owner_id
type RelationMapping struct {
	Name         string       // Relation name, also the property results are attached under
	Kind         RelationKind // Join topology
	RelatedModel string       // Related model name (resolved through the registry)
	Related      *Model       // Related model reference (takes precedence over RelatedModel)
	Join         *JoinSpec
	Filter       sq.Sqlizer // Applied to every fetch and mutation of the relation (optional)
}
