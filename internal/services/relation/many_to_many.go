package relation

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// ownerKeyAlias carries the join table's owner key alongside each related row
const ownerKeyAlias = "_owner_key"

// manyToMany: a join table pairs owner keys with related keys
type manyToMany struct {
	*Relation
}

func (s *manyToMany) joinColumn(column string) string {
	return entities.ColumnRef{Table: s.joinTable, Column: column}.String()
}

// reachable selects the related rows linked to any of the owner keys through the join table
func (s *manyToMany) reachable(ex repositories.Executor, keys []any) repositories.Query {
	q := ex.Query(s.related.Table).
		Join(s.joinTable, s.joinColumn(s.joinTableRelatedColumn), s.FullRelatedColumn()).
		WhereIn(s.joinColumn(s.joinTableOwnerColumn), keys)
	return s.filtered(q)
}

func (s *manyToMany) Fetch(ctx context.Context, owners []entities.Record) (*FetchResult, error) {
	result := newFetchResult()

	keys := ownerKeys(owners, s.ownerProperty)
	if len(keys) == 0 {
		return result, nil
	}

	q := s.reachable(s.executor, keys).
		Select(s.related.Table+".*", s.joinColumn(s.joinTableOwnerColumn)+" AS "+ownerKeyAlias).
		OrderBy(entities.ColumnRef{Table: s.related.Table, Column: s.related.ID()}.String())
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relation %s: %w", s.name, err)
	}

	// a related row linked to several owners comes back once per link
	distinct := make(map[string]entities.Record, len(rows))
	for _, row := range rows {
		ownerKey := row[ownerKeyAlias]
		plain := row.Clone()
		delete(plain, ownerKeyAlias)

		rec := s.related.RowToRecord(plain)
		if k, ok := entities.KeyString(rec[s.relatedProperty]); ok {
			if seen, dup := distinct[k]; dup {
				rec = seen
			} else {
				distinct[k] = rec
				result.Records = append(result.Records, rec)
			}
		} else {
			result.Records = append(result.Records, rec)
		}
		result.add(ownerKey, rec)
	}
	return result, nil
}

func (s *manyToMany) Attach(owners []entities.Record, result *FetchResult) {
	attach(s.Relation, owners, result)
}

func (s *manyToMany) Find(ctx context.Context, owners []entities.Record) ([]entities.Record, error) {
	return find(ctx, s, owners)
}

func (s *manyToMany) Insert(ctx context.Context, owner entities.Record, related []entities.Record) ([]entities.Record, error) {
	if len(related) == 0 {
		return nil, nil
	}
	key, err := s.ownerKey(owner)
	if err != nil {
		return nil, err
	}

	rows := make([]entities.Row, 0, len(related))
	for _, rec := range related {
		rows = append(rows, s.related.RecordToRow(rec))
	}

	var inserted []entities.Row
	err = s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		var err error
		inserted, err = tx.Query(s.related.Table).Insert(ctx, rows...)
		if err != nil {
			return fmt.Errorf("failed to insert into relation %s: %w", s.name, err)
		}

		links := make([]entities.Row, 0, len(inserted))
		for _, row := range inserted {
			links = append(links, s.link(key, row[s.relatedColumn]))
		}
		if _, err := tx.Query(s.joinTable).Insert(ctx, links...); err != nil {
			return fmt.Errorf("failed to link relation %s: %w", s.name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.recordsOf(inserted), nil
}

func (s *manyToMany) Update(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, true)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *manyToMany) Patch(ctx context.Context, owner entities.Record, values entities.Record) (int64, error) {
	row, err := s.updateValues(values, false)
	if err != nil || len(row) == 0 {
		return 0, err
	}
	return s.update(ctx, owner, row)
}

func (s *manyToMany) update(ctx context.Context, owner entities.Record, row entities.Row) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	var n int64
	err := s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		ids, err := s.relatedKeys(ctx, tx, key, nil)
		if err != nil || len(ids) == 0 {
			return err
		}

		n, err = tx.Query(s.related.Table).WhereIn(s.FullRelatedColumn(), ids).Update(ctx, row)
		if err != nil {
			return fmt.Errorf("failed to update relation %s: %w", s.name, err)
		}
		return nil
	})
	return n, err
}

func (s *manyToMany) Delete(ctx context.Context, owner entities.Record) (int64, error) {
	key := owner[s.ownerProperty]
	if key == nil {
		return 0, nil
	}

	var n int64
	err := s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		ids, err := s.relatedKeys(ctx, tx, key, nil)
		if err != nil || len(ids) == 0 {
			return err
		}

		// links of every owner pointing at the deleted rows go too
		if _, err := tx.Query(s.joinTable).WhereIn(s.joinColumn(s.joinTableRelatedColumn), ids).Delete(ctx); err != nil {
			return fmt.Errorf("failed to unlink relation %s: %w", s.name, err)
		}

		n, err = tx.Query(s.related.Table).WhereIn(s.FullRelatedColumn(), ids).Delete(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete relation %s: %w", s.name, err)
		}
		return nil
	})
	return n, err
}

func (s *manyToMany) Relate(ctx context.Context, owner entities.Record, ids ...any) error {
	if len(ids) == 0 {
		return nil
	}
	key, err := s.ownerKey(owner)
	if err != nil {
		return err
	}

	links := make([]entities.Row, 0, len(ids))
	for _, id := range ids {
		links = append(links, s.link(key, id))
	}

	return s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		if _, err := tx.Query(s.joinTable).Insert(ctx, links...); err != nil {
			return fmt.Errorf("failed to relate %s: %w", s.name, err)
		}
		return nil
	})
}

func (s *manyToMany) Unrelate(ctx context.Context, owner entities.Record, ids ...any) error {
	key := owner[s.ownerProperty]
	if key == nil {
		return nil
	}

	return s.executor.Transaction(ctx, func(tx repositories.Executor) error {
		targets := ids
		if s.filter != nil {
			// the filter constrains related rows, so resolve it before touching links
			var err error
			targets, err = s.relatedKeys(ctx, tx, key, ids)
			if err != nil || len(targets) == 0 {
				return err
			}
		}

		q := tx.Query(s.joinTable).Where(sq.Eq{s.joinColumn(s.joinTableOwnerColumn): key})
		if _, err := restrict(q, s.joinColumn(s.joinTableRelatedColumn), targets).Delete(ctx); err != nil {
			return fmt.Errorf("failed to unrelate %s: %w", s.name, err)
		}
		return nil
	})
}

// relatedKeys returns the related keys linked to the owner key, confined by the
// filter and, when given, by ids
func (s *manyToMany) relatedKeys(ctx context.Context, ex repositories.Executor, key any, ids []any) ([]any, error) {
	q := restrict(s.reachable(ex, []any{key}), s.FullRelatedColumn(), ids).Select(s.FullRelatedColumn())
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read links of relation %s: %w", s.name, err)
	}

	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row[s.relatedColumn])
	}
	return keys, nil
}

func (s *manyToMany) link(ownerKey, relatedKey any) entities.Row {
	return entities.Row{
		s.joinTableOwnerColumn:   ownerKey,
		s.joinTableRelatedColumn: relatedKey,
	}
}
