package cmdutil

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/c9s/qrhawkes/pkg/store"
)

// OpenStore opens the store selected by the flags defined by StoreFlags.
// It returns a nil store when no backend is selected.
func OpenStore(ctx context.Context, flags *pflag.FlagSet) (store.Store, string, error) {
	backend, err := flags.GetString("store")
	if err != nil {
		return nil, "", err
	}

	path, err := flags.GetString("store-path")
	if err != nil {
		return nil, "", err
	}

	name, err := flags.GetString("snapshot")
	if err != nil {
		return nil, "", err
	}

	if backend == "" {
		return nil, name, nil
	}

	st, err := store.NewStore(backend, path)
	if err != nil {
		return nil, "", err
	}

	if err := st.Init(ctx); err != nil {
		return nil, "", err
	}

	return st, name, nil
}
