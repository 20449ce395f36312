package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

const (
	errUnableToInstantiate = "unable to instantiate memory executor: %w"
	errUnableToQueryRows   = "unable to query rows of %s: %w"
	errUnableToWriteRows   = "unable to write rows of %s: %w"
)

const (
	tableRows = "rows"

	indexID    = "id"
	indexTable = "table"
)

// storedRow is the memdb object holding one row of any logical table.
// Stored objects are never mutated; updates insert a replacement.
type storedRow struct {
	Table  string
	Seq    uint64
	Values entities.Row
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableRows: {
			Name: tableRows,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Table"},
							&memdb.UintFieldIndex{Field: "Seq"},
						},
					},
				},
				indexTable: {
					Name:    indexTable,
					Indexer: &memdb.StringFieldIndex{Field: "Table"},
				},
			},
		},
	},
}

// Table declares a logical table whose identifier column is generated on insert
type Table struct {
	Name     string
	IDColumn string
}

type sequences struct {
	mu       sync.Mutex
	seq      uint64
	idColumn map[string]string
	nextID   map[string]int64
}

// Executor implements repositories.Executor on top of go-memdb.
// Rows of every logical table live in one memdb table indexed by table name,
// in insertion order.
type Executor struct {
	db   *memdb.MemDB
	seqs *sequences
	txn  *memdb.Txn // set on transactional executors
}

// NewExecutor creates an empty in-memory executor.
// Tables listed here get auto-incremented identifiers; other tables are accepted as-is.
func NewExecutor(tables ...Table) (*Executor, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}

	seqs := &sequences{
		idColumn: make(map[string]string, len(tables)),
		nextID:   make(map[string]int64, len(tables)),
	}
	for _, t := range tables {
		if t.IDColumn != "" {
			seqs.idColumn[t.Name] = t.IDColumn
		}
	}

	return &Executor{db: db, seqs: seqs}, nil
}

// Query starts a query over the given table
func (e *Executor) Query(table string) repositories.Query {
	return &query{ex: e, table: table}
}

// Transaction runs fn inside a single write transaction
func (e *Executor) Transaction(ctx context.Context, fn func(tx repositories.Executor) error) error {
	if e.txn != nil {
		return fn(e)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := e.db.Txn(true)
	tx := &Executor{db: e.db, seqs: e.seqs, txn: txn}
	if err := fn(tx); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// read returns a transaction for reading and a function releasing it
func (e *Executor) read() (*memdb.Txn, func()) {
	if e.txn != nil {
		return e.txn, func() {}
	}
	txn := e.db.Txn(false)
	return txn, txn.Abort
}

// write runs fn in the executor's transaction or in a new committed one
func (e *Executor) write(fn func(txn *memdb.Txn) error) error {
	if e.txn != nil {
		return fn(e.txn)
	}
	txn := e.db.Txn(true)
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// scan returns the stored rows of a logical table in insertion order
func scan(txn *memdb.Txn, table string) ([]*storedRow, error) {
	it, err := txn.Get(tableRows, indexTable, table)
	if err != nil {
		return nil, err
	}
	var rows []*storedRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*storedRow))
	}
	return rows, nil
}

// assign allocates a row sequence and, for declared tables, a missing identifier
func (s *sequences) assign(table string, values entities.Row) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	col, ok := s.idColumn[table]
	if !ok {
		return s.seq
	}

	if id, present := values[col]; present && id != nil {
		if n, isInt := toInt64(id); isInt && n >= s.nextID[table] {
			s.nextID[table] = n
		}
		return s.seq
	}

	s.nextID[table]++
	values[col] = s.nextID[table]
	return s.seq
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
