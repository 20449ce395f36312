package relation

import (
	"context"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// Strategy executes a relation's reads and writes for its join topology
type Strategy interface {
	// Fetch loads the related records of all owners in one batched query.
	// It does not touch the owners.
	Fetch(ctx context.Context, owners []entities.Record) (*FetchResult, error)

	// Attach sets the relation property of every owner from a fetch result
	Attach(owners []entities.Record, result *FetchResult)

	// Find fetches and attaches, returning the fetched related records
	Find(ctx context.Context, owners []entities.Record) ([]entities.Record, error)

	// Insert stores new related records and links them to the owner
	Insert(ctx context.Context, owner entities.Record, related []entities.Record) ([]entities.Record, error)

	// Update sets the given properties on the owner's related rows.
	// Every property must map to a declared column.
	Update(ctx context.Context, owner entities.Record, values entities.Record) (int64, error)

	// Patch is Update that ignores properties without a declared column
	Patch(ctx context.Context, owner entities.Record, values entities.Record) (int64, error)

	// Delete removes the owner's related rows
	Delete(ctx context.Context, owner entities.Record) (int64, error)

	// Relate links existing related rows to the owner
	Relate(ctx context.Context, owner entities.Record, ids ...any) error

	// Unrelate removes links between the owner and its related rows.
	// When ids are given only those related rows are unlinked.
	Unrelate(ctx context.Context, owner entities.Record, ids ...any) error
}

// FetchResult holds the related records of one batched fetch
type FetchResult struct {
	// Records are the distinct related records in fetch order
	Records []entities.Record

	byKey map[string][]entities.Record
}

func newFetchResult() *FetchResult {
	return &FetchResult{byKey: make(map[string][]entities.Record)}
}

func (f *FetchResult) add(key any, rec entities.Record) {
	k, ok := entities.KeyString(key)
	if !ok {
		return
	}
	f.byKey[k] = append(f.byKey[k], rec)
}

// For returns the related records fetched for a join key
func (f *FetchResult) For(key any) []entities.Record {
	k, ok := entities.KeyString(key)
	if !ok {
		return nil
	}
	return f.byKey[k]
}

// Len returns the number of distinct related records
func (f *FetchResult) Len() int {
	return len(f.Records)
}

// ownerKeys collects the distinct non-null values of property in owner order
func ownerKeys(owners []entities.Record, property string) []any {
	seen := make(map[string]bool, len(owners))
	var keys []any
	for _, o := range owners {
		v := o[property]
		k, ok := entities.KeyString(v)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}

// attach sets owner[name] from the result keyed by owner[property]
func attach(rel *Relation, owners []entities.Record, result *FetchResult) {
	for _, o := range owners {
		matched := result.For(o[rel.ownerProperty])
		if !rel.IsCollection() {
			if len(matched) == 0 {
				o[rel.name] = nil
				continue
			}
			o[rel.name] = matched[0]
			continue
		}

		list := make([]entities.Record, len(matched))
		copy(list, matched)
		o[rel.name] = list
	}
}

func find(ctx context.Context, s Strategy, owners []entities.Record) ([]entities.Record, error) {
	result, err := s.Fetch(ctx, owners)
	if err != nil {
		return nil, err
	}
	s.Attach(owners, result)
	return result.Records, nil
}

// filtered applies the relation filter to a query
func (r *Relation) filtered(q repositories.Query) repositories.Query {
	if r.filter == nil {
		return q
	}
	return q.Where(r.filter)
}

// relatedQuery starts a query over the related table ordered by the related identifier
func (r *Relation) relatedQuery() repositories.Query {
	return r.executor.Query(r.related.Table).
		OrderBy(entities.ColumnRef{Table: r.related.Table, Column: r.related.ID()}.String())
}

// ownerKey returns the owner's join key or an error when it is missing
func (r *Relation) ownerKey(owner entities.Record) (any, error) {
	v := owner[r.ownerProperty]
	if v == nil {
		return nil, fmt.Errorf("owner %s has no value for %s", r.owner.Name, r.ownerProperty)
	}
	return v, nil
}

// ownerID returns the owner's identifier or an error when it is missing
func (r *Relation) ownerID(owner entities.Record) (any, error) {
	v := owner[r.owner.IDProperty()]
	if v == nil {
		return nil, fmt.Errorf("owner %s has no value for %s", r.owner.Name, r.owner.IDProperty())
	}
	return v, nil
}

// updateOwner writes values onto the owner's own row
func (r *Relation) updateOwner(ctx context.Context, ex repositories.Executor, owner entities.Record, values entities.Row) error {
	id, err := r.ownerID(owner)
	if err != nil {
		return err
	}
	_, err = ex.Query(r.owner.Table).Where(sq.Eq{r.owner.ID(): id}).Update(ctx, values)
	if err != nil {
		return fmt.Errorf("failed to update owner of relation %s: %w", r.name, err)
	}
	return nil
}

// updateValues converts record values into a row of the related table.
// Only the given properties are set. Strict conversion rejects properties
// that are not declared columns; lenient conversion drops them.
func (r *Relation) updateValues(values entities.Record, strict bool) (entities.Row, error) {
	row := r.related.RecordToRow(values)
	if len(r.related.Columns) == 0 {
		return row, nil
	}
	for c := range row {
		if slices.Contains(r.related.Columns, c) {
			continue
		}
		if strict {
			return nil, fmt.Errorf("failed to update relation %s: unknown column %q for model %s", r.name, c, r.related.Name)
		}
		delete(row, c)
	}
	return row, nil
}

// recordsOf converts related rows into records
func (r *Relation) recordsOf(rows []entities.Row) []entities.Record {
	out := make([]entities.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.related.RowToRecord(row))
	}
	return out
}

// restrict narrows a query to the given related keys when any are given
func restrict(q repositories.Query, column string, ids []any) repositories.Query {
	if len(ids) == 0 {
		return q
	}
	return q.WhereIn(column, ids)
}
