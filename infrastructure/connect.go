package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vitovidale/video-insight-service/config"
	"github.com/vitovidale/video-insight-service/logger"
)

// OpenPostgres opens the catalog database and waits for it to answer a ping.
// Containers start in any order, so the first attempts are expected to fail.
func OpenPostgres(ctx context.Context, cfg config.Postgres, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	err = connectWithRetry(ctx, log, "postgres", cfg.ConnectTries, cfg.ConnectWait.Duration, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// DialRabbitMQ connects to the broker with the same retry policy as Postgres.
func DialRabbitMQ(ctx context.Context, cfg config.RabbitMQ, log *logger.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	err := connectWithRetry(ctx, log, "rabbitmq", cfg.ConnectTries, cfg.ConnectWait.Duration, func(context.Context) error {
		c, err := amqp.Dial(cfg.URL())
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func connectWithRetry(ctx context.Context, log *logger.Logger, what string, tries int, wait time.Duration, attempt func(context.Context) error) error {
	if tries <= 0 {
		tries = 1
	}
	var err error
	for i := 1; i <= tries; i++ {
		if err = attempt(ctx); err == nil {
			log.Info("connection established", "target", what)
			return nil
		}
		if i == tries {
			break
		}
		log.Warn("connection attempt failed, retrying", "target", what, "attempt", i, "of", tries, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("connect to %s after %d attempts: %w", what, tries, err)
}

// DefaultQueryTimeout bounds one repository call when none is configured.
const DefaultQueryTimeout = 5 * time.Second

// boundQuery caps ctx at timeout unless it already ends sooner.
func boundQuery(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
