package relation

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// oneToMany: the related rows hold the owner's key
type oneToMany struct {
	*Relation
}

func (s *oneToMany) Fetch(ctx context.Context, owners []entities.Record) (*FetchResult, error) {
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

func (s *oneToMany) Attach(owners []entities.Record, result *FetchResult) {
	attach(s.Relation, owners, result)
}

func (s *oneToMany) Find(ctx context.Context, owners []entities.Record) ([]entities.Record, error) {
	return find(ctx, s, owners)
}

func (s *oneToMany) Insert(ctx context.Context, owner entities.Record, related []entities.Record) ([]entities.Record, error) {
	if len(related) == 0 {
		return nil, nil
	}
	key, err := s.ownerKey(owner)
	if err != nil {
		return nil, err
	}

	rows := make([]entities.Row, 0, len(related))
	for _, rec := range related {
		row := s.related.RecordToRow(rec)
		row[s.relatedColumn] = key
		rows = append(rows, row)
	}

	var inserted []entities.Row
	err = s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		var err error
		inserted, err = tx.Query(s.related.Table).Insert(ctx, rows...)
		if err != nil {
			return fmt.Errorf("failed to insert into relation %s: %w", s.name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.recordsOf(inserted), nil
}

func (s *oneToMany) Update(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, true)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *oneToMany) Patch(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, false)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *oneToMany) update(ctx context.Context, owner entities.Record, row entities.Row) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	n, err := s.owned(key).Update(ctx, row)
	if err != nil {
		return 0, fmt.Errorf("failed to update relation %s: %w", s.name, err)
	}
	return n, nil
}

func (s *oneToMany) Delete(ctx context.Context, owner entities.Record) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	n, err := s.owned(key).Delete(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relation %s: %w", s.name, err)
	}
	return n, nil
}

func (s *oneToMany) Relate(ctx context.Context, owner entities.Record, ids ...any) error {
	if len(ids) == 0 {
		return nil
	}
	key, err := s.ownerKey(owner)
	if err != nil {
		return err
	}

	idColumn := entities.ColumnRef{Table: s.related.Table, Column: s.related.ID()}.String()
	_, err = s.executor.Query(s.related.Table).
		WhereIn(idColumn, ids).
		Update(ctx, entities.Row{s.relatedColumn: key})
	if err != nil {
		return fmt.Errorf("failed to relate %s: %w", s.name, err)
	}
	return nil
}

func (s *oneToMany) Unrelate(ctx context.Context, owner entities.Record, ids ...any) error {
	key := owner[s.ownerProperty]
	if key == nil {
		return nil
	}

	idColumn := entities.ColumnRef{Table: s.related.Table, Column: s.related.ID()}.String()
	_, err := restrict(s.owned(key), idColumn, ids).Update(ctx, entities.Row{s.relatedColumn: nil})
	if err != nil {
		return fmt.Errorf("failed to unrelate %s: %w", s.name, err)
	}
	return nil
}

// owned selects the related rows pointing at key, confined by the filter
func (s *oneToMany) owned(key any) repositories.Query {
	return s.filtered(s.executor.Query(s.related.Table).Where(sq.Eq{s.FullRelatedColumn(): key}))
}
