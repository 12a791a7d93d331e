package db

import (
	"context"
	"fmt"
	"time"

	"group-ride/internal/config"
	"group-ride/internal/mylogger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	ctx   context.Context
	cfg   *config.DBconfig
	mylog mylogger.Logger
	pool  *pgxpool.Pool
}

// New connects to PostgreSQL, retrying up to cfg.MaxRetries times.
func New(ctx context.Context, dbCfg *config.DBconfig, mylog mylogger.Logger) (*DB, error) {
	d := &DB{
		cfg:   dbCfg,
		ctx:   ctx,
		mylog: mylog,
	}

	if err := d.connect(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Close closes the pool
func (d *DB) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// IsAlive pings the DB to verify it's responsive
func (d *DB) IsAlive() error {
	if d.pool == nil {
		return fmt.Errorf("DB is not initialized")
	}
	ctx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
	defer cancel()
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (d *DB) connect() error {
	attempts := d.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.New(d.ctx, d.cfg.DSN())
		if err == nil {
			err = pool.Ping(d.ctx)
			if err != nil {
				pool.Close()
			}
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to connect to database: %w", err)
			d.mylog.Error(fmt.Sprintf("DB connection attempt %d failed", i+1), err)

			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After(time.Second * time.Duration(i+1)):
			}
			continue
		}

		d.pool = pool
		d.mylog.Info("Successfully connected to the database")
		return nil
	}

	return fmt.Errorf("failed to connect to the database after %d attempts: %w", attempts, lastErr)
}
