package jobdef

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fileimport/internal/sink"
)

// PgxProviders returns a ProviderFunc writing through pool.
//
// Jobs in external commit mode get one transaction for the whole run: every
// file of the run is written inside it and it is committed only when all
// files were imported, rolled back otherwise.
func PgxProviders(pool *pgxpool.Pool) ProviderFunc {
	return func(ctx context.Context, job *Job) (sink.StatementProvider, FinishFunc, error) {
		provider, err := sink.NewPgxProvider(pool, job.InsertSQL)
		if err != nil {
			return nil, nil, err
		}

		mode, err := sink.ParseCommitMode(job.CommitMode)
		if err != nil {
			return nil, nil, err
		}
		if mode != sink.CommitExternal {
			return provider, nil, nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("begin run transaction: %w", err)
		}
		finish := func(ctx context.Context, failed bool) error {
			if failed {
				return tx.Rollback(ctx)
			}
			return tx.Commit(ctx)
		}
		return provider.InTx(tx), finish, nil
	}
}
