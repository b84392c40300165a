package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bulkadmin/internal/models"
	"github.com/wolfeidau/bulkadmin/internal/store"
)

// ProgressChannel is the LISTEN/NOTIFY channel carrying "<org id>/<operation id>" payloads.
const ProgressChannel = "bulk_operation_progress"

// Notifier announces persisted operation changes to every process sharing the database.
type Notifier struct {
	pool *pgxpool.Pool
	cfg  StoreConfig
}

// NewNotifier creates a notifier publishing on ProgressChannel.
func NewNotifier(pool *pgxpool.Pool, cfg StoreConfig) *Notifier {
	cfg.ApplyDefaults()
	return &Notifier{pool: pool, cfg: cfg}
}

// Notify sends the operation key. Listeners re-read the row, so the payload stays small.
func (n *Notifier) Notify(ctx context.Context, op *models.BulkOperation) error {
	ctx, cancel := n.cfg.queryContext(ctx)
	defer cancel()

	_, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, ProgressChannel, notifyPayload(op.OrgID, op.ID))
	if err != nil {
		return fmt.Errorf("failed to notify progress: %w", mapPostgresError(err))
	}
	return nil
}

// SnapshotPublisher receives snapshots loaded by a Listener. Resync is called each time
// LISTEN is (re)established so changes notified while disconnected are not lost.
type SnapshotPublisher interface {
	Publish(snap models.Snapshot)
	Resync(ctx context.Context)
}

// Listener turns notifications into snapshots for local subscribers.
type Listener struct {
	pool      *pgxpool.Pool
	store     store.OperationStore
	publisher SnapshotPublisher

	retryDelay time.Duration
}

// NewListener creates a listener that loads snapshots from st and hands them to publisher.
func NewListener(pool *pgxpool.Pool, st store.OperationStore, publisher SnapshotPublisher) *Listener {
	return &Listener{
		pool:       pool,
		store:      st,
		publisher:  publisher,
		retryDelay: time.Second,
	}
}

// Run listens until ctx is done, reconnecting after connection errors.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		log.Warn().Err(err).Dur("retry_in", l.retryDelay).Msg("Progress listener disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	// LISTEN state is bound to the session, so the connection is not returned to the pool
	defer func() {
		conn.Conn().Close(context.Background()) //nolint:errcheck
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+ProgressChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	log.Info().Str("channel", ProgressChannel).Msg("Listening for operation progress")

	l.publisher.Resync(ctx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		orgID, id, err := parseNotifyPayload(n.Payload)
		if err != nil {
			log.Warn().Err(err).Str("payload", n.Payload).Msg("Ignoring malformed progress notification")
			continue
		}

		op, err := l.store.GetOperation(ctx, orgID, id)
		if err != nil {
			log.Warn().Err(err).Str("operation_id", id.String()).Msg("Failed to load notified operation")
			continue
		}

		l.publisher.Publish(op.Snapshot())
	}
}

func notifyPayload(orgID, id uuid.UUID) string {
	return orgID.String() + "/" + id.String()
}

func parseNotifyPayload(payload string) (uuid.UUID, uuid.UUID, error) {
	org, op, ok := strings.Cut(payload, "/")
	if !ok {
		return uuid.Nil, uuid.Nil, errors.New("missing separator")
	}

	orgID, err := uuid.Parse(org)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid org id: %w", err)
	}

	id, err := uuid.Parse(op)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid operation id: %w", err)
	}

	return orgID, id, nil
}
