package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const snapshotTable = "snapshots"

var snapshotColumns = []string{"id", "name", "kind", "created_at", "payload"}

// snapshotRow keeps created_at as unix nanoseconds.
type snapshotRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Kind      string `db:"kind"`
	CreatedAt int64  `db:"created_at"`
	Payload   []byte `db:"payload"`
}

func (r snapshotRow) snapshot() *Snapshot {
	return &Snapshot{
		ID:        r.ID,
		Name:      r.Name,
		Kind:      r.Kind,
		CreatedAt: time.Unix(0, r.CreatedAt),
		Payload:   r.Payload,
	}
}

// SQLStore keeps the snapshots in a single table of a sqlite or mysql database.
type SQLStore struct {
	DSN     string
	Dialect Dialect

	mu sync.RWMutex
	DB *sqlx.DB
}

func NewSQLiteStore(path string) *SQLStore {
	return &SQLStore{DSN: path, Dialect: &SQLiteDialect{}}
}

func NewMySQLStore(dsn string) (*SQLStore, error) {
	dsn, err := ReformatMysqlDSN(dsn)
	if err != nil {
		return nil, err
	}

	return &SQLStore{DSN: dsn, Dialect: &MySQLDialect{}}, nil
}

// NewSQLStoreWithDB wraps an opened connection, the schema is created by Init.
func NewSQLStoreWithDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{Dialect: GetDialect(db.DriverName()), DB: db}
}

func ReformatMysqlDSN(dsn string) (string, error) {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}

	config.ParseTime = true
	return config.FormatDSN(), nil
}

func (s *SQLStore) builder() sq.StatementBuilderType {
	return s.Dialect.ConfigurePlaceholder(sq.StatementBuilder)
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DB == nil {
		if s.DSN == "" {
			return errors.Errorf("%s dsn is required", s.Dialect.DriverName())
		}

		db, err := sqlx.ConnectContext(ctx, s.Dialect.DriverName(), s.DSN)
		if err != nil {
			return errors.Wrapf(err, "open %s", s.Dialect.DriverName())
		}
		s.DB = db
	}

	// concurrent processes creating the same sqlite file are serialized
	if _, ok := s.Dialect.(*SQLiteDialect); ok && s.DSN != "" && s.DSN != ":memory:" {
		lock := flock.New(s.DSN + ".lock")
		if err := lock.Lock(); err != nil {
			log.WithError(err).Errorf("sqlite schema lock error: %s", err)
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.WithError(err).Errorf("sqlite schema unlock error: %s", err)
			}
		}()
	}

	for _, stmt := range s.Dialect.Schema() {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create snapshots table")
		}
	}

	return nil
}

func (s *SQLStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.DB == nil {
		return nil, errors.New("sql store is not initialized")
	}
	return s.DB, nil
}

func (s *SQLStore) Save(ctx context.Context, snapshot *Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	prepare(snapshot)
	query, args, err := s.builder().
		Insert(snapshotTable).
		Columns(snapshotColumns...).
		Values(snapshot.ID, snapshot.Name, snapshot.Kind, snapshot.CreatedAt.UnixNano(), snapshot.Payload).
		Suffix(s.Dialect.UpsertSuffix(snapshotColumns[1:]...)).
		ToSql()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLStore) get(ctx context.Context, what string, sel sq.SelectBuilder) (*Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	var row snapshotRow
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, what)
		}
		return nil, err
	}

	return row.snapshot(), nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	sel := s.builder().Select(snapshotColumns...).From(snapshotTable).Where(sq.Eq{"id": id})
	return s.get(ctx, "id "+id, sel)
}

func (s *SQLStore) LoadByName(ctx context.Context, name string) (*Snapshot, error) {
	sel := s.builder().Select(snapshotColumns...).
		From(snapshotTable).
		Where(sq.Eq{"name": name}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1)
	return s.get(ctx, "name "+name, sel)
}

// List returns the snapshots in creation order, without payloads.
func (s *SQLStore) List(ctx context.Context) ([]Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query, args, err := s.builder().
		Select(snapshotColumns[:4]...).
		From(snapshotTable).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []snapshotRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	list := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		list = append(list, *row.snapshot())
	}
	return list, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	query, args, err := s.builder().Delete(snapshotTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DB == nil {
		return nil
	}

	err := s.DB.Close()
	s.DB = nil
	return err
}
