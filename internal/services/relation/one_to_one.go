package relation

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// oneToOne: the owner row holds the key of at most one related row
type oneToOne struct {
	*Relation
}

func (s *oneToOne) Fetch(ctx context.Context, owners []entities.Record) (*FetchResult, error) {
	result := newFetchResult()

	keys := ownerKeys(owners, s.ownerProperty)
	if len(keys) == 0 {
		return result, nil
	}

	q := s.filtered(s.relatedQuery().WhereIn(s.FullRelatedColumn(), keys))
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relation %s: %w", s.name, err)
	}

	for _, rec := range s.recordsOf(rows) {
		result.Records = append(result.Records, rec)
		result.add(rec[s.relatedProperty], rec)
	}
	return result, nil
}

func (s *oneToOne) Attach(owners []entities.Record, result *FetchResult) {
	attach(s.Relation, owners, result)
}

func (s *oneToOne) Find(ctx context.Context, owners []entities.Record) ([]entities.Record, error) {
	return find(ctx, s, owners)
}

func (s *oneToOne) Insert(ctx context.Context, owner entities.Record, related []entities.Record) ([]entities.Record, error) {
	if len(related) > 1 {
		return nil, &entities.CardinalityError{Model: s.owner.Name, Relation: s.name, Count: len(related)}
	}
	if len(related) == 0 {
		return nil, nil
	}

	var inserted entities.Record
	err := s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		rows, err := tx.Query(s.related.Table).Insert(ctx, s.related.RecordToRow(related[0]))
		if err != nil {
			return fmt.Errorf("failed to insert into relation %s: %w", s.name, err)
		}
		inserted = s.related.RowToRecord(rows[0])

		return s.updateOwner(ctx, tx, owner, entities.Row{s.ownerColumn: inserted[s.relatedProperty]})
	})
	if err != nil {
		return nil, err
	}

	owner[s.ownerProperty] = inserted[s.relatedProperty]
	return []entities.Record{inserted}, nil
}

func (s *oneToOne) Update(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, true)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *oneToOne) Patch(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, false)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *oneToOne) update(ctx context.Context, owner entities.Record, row entities.Row) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	q := s.filtered(s.executor.Query(s.related.Table).Where(sq.Eq{s.FullRelatedColumn(): key}))
	n, err := q.Update(ctx, row)
	if err != nil {
		return 0, fmt.Errorf("failed to update relation %s: %w", s.name, err)
	}
	return n, nil
}

func (s *oneToOne) Delete(ctx context.Context, owner entities.Record) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	q := s.filtered(s.executor.Query(s.related.Table).Where(sq.Eq{s.FullRelatedColumn(): key}))
	n, err := q.Delete(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relation %s: %w", s.name, err)
	}
	return n, nil
}

func (s *oneToOne) Relate(ctx context.Context, owner entities.Record, ids ...any) error {
	if len(ids) > 1 {
		return &entities.CardinalityError{Model: s.owner.Name, Relation: s.name, Count: len(ids)}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.updateOwner(ctx, s.executor, owner, entities.Row{s.ownerColumn: ids[0]}); err != nil {
		return err
	}
	owner[s.ownerProperty] = ids[0]
	return nil
}

func (s *oneToOne) Unrelate(ctx context.Context, owner entities.Record, ids ...any) error {
	current := owner[s.ownerProperty]
	if current == nil {
		return nil
	}
	if len(ids) > 0 && !containsKey(ids, current) {
		return nil
	}

	if err := s.updateOwner(ctx, s.executor, owner, entities.Row{s.ownerColumn: nil}); err != nil {
		return err
	}
	owner[s.ownerProperty] = nil
	return nil
}

func containsKey(ids []any, key any) bool {
	want, ok := entities.KeyString(key)
	if !ok {
		return false
	}
	for _, id := range ids {
		if k, ok := entities.KeyString(id); ok && k == want {
			return true
		}
	}
	return false
}
