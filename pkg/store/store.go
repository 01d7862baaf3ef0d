package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/metrics"
)

var log = logrus.WithField("component", "store")

// MaxSaveRetries bounds the retries of SaveModel on transient database errors.
var MaxSaveRetries uint64 = 5

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrUnknownBackend = errors.New("unsupported store backend")
)

// Snapshot is an encoded model kept under a human readable name.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   []byte    `json:"-"`
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks . Store

// Store persists model snapshots. Names are not unique: LoadByName returns
// the most recent snapshot saved under a name.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	LoadByName(ctx context.Context, name string) (*Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewStore creates a store backend. path is the database file for sqlite
// and the dsn for mysql.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	case "mysql":
		return NewMySQLStore(path)
	}

	return nil, errors.Wrapf(ErrUnknownBackend, "%q", kind)
}

// prepare fills the id and the creation time of a new snapshot.
func prepare(s *Snapshot) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
}

// SaveModel encodes m and saves it under name.
func SaveModel(ctx context.Context, st Store, name string, m hawkes.Model) (*Snapshot, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode model")
	}

	kind, err := hawkes.SnapshotKind(payload)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{Name: name, Kind: kind, Payload: payload}
	if err := retrySave(ctx, func() error {
		err := st.Save(ctx, s)
		metrics.IncSnapshotSave(kind, err)
		return err
	}); err != nil {
		return nil, err
	}

	log.Infof("saved %s snapshot %q as %s (%d bytes)", kind, name, s.ID, len(payload))
	return s, nil
}

// LoadModel restores the most recent model saved under name.
func LoadModel(ctx context.Context, st Store, name string) (hawkes.Model, error) {
	s, err := st.LoadByName(ctx, name)
	if err != nil {
		return nil, err
	}

	m, err := hawkes.Restore(s.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "restore snapshot %s", s.ID)
	}

	return m, nil
}

func retrySave(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	return backoff.RetryNotify(func() error {
		err := op()
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, MaxSaveRetries), ctx), func(err error, d time.Duration) {
		log.WithError(err).Warnf("save snapshot failed, retrying in %s", d)
	})
}
