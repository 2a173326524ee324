package joblock

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Guard serializes named background jobs across all service instances
// using postgres session advisory locks. A job skips its run when the
// lock is already held elsewhere.
type Guard struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Guard {
	return &Guard{pool: pool}
}

// Run executes fn while holding the advisory lock for name. Returns
// (false, nil) when another holder has the lock.
func (g *Guard) Run(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	key := lockKey(name)
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key)
	}()

	return true, fn(ctx)
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
