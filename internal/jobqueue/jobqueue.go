/*
Package jobqueue provides a River-based job queue that decouples live
notification delivery from the write path. The durable notification row
commits first; a delivery job then pushes the event to the recipient's
live connection if one exists. Failure or latency in delivery never
blocks or fails the write that triggered it.

For configuration and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/yardline/internal/notifications"
	"github.com/yardline/internal/realtime"
	apperrors "github.com/yardline/pkg/errors"
)

// NotificationDeliverArgs represents the arguments for a live delivery job.
type NotificationDeliverArgs struct {
	NotificationID int64  `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
}

// Kind returns the job kind for River.
func (NotificationDeliverArgs) Kind() string {
	return "notification_deliver"
}

// NotificationDeliverWorker pushes a recorded notification to the
// recipient's live connection.
type NotificationDeliverWorker struct {
	river.WorkerDefaults[NotificationDeliverArgs]
	ledger   *notifications.Ledger
	registry *realtime.Registry
}

// Work loads the notification and attempts the live push. A recipient
// without a connection is not an error: the durable row already holds
// the event for polling, so the job completes as "not delivered".
func (w *NotificationDeliverWorker) Work(ctx context.Context, job *river.Job[NotificationDeliverArgs]) error {
	args := job.Args

	n, err := w.ledger.GetByID(ctx, args.NotificationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotificationNotFound) {
			// Deleted between enqueue and delivery (cascade with its
			// subject); nothing left to push.
			log.Debug().Int64("notification_id", args.NotificationID).Msg("notification gone before delivery")
			return nil
		}
		return fmt.Errorf("failed to load notification for delivery: %w", err)
	}

	event := realtime.Event{
		Type: realtime.EventNotification,
		Notification: &realtime.NotificationPayload{
			ID:        n.ID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			CreatedAt: n.CreatedAt,
			Read:      n.Read,
		},
	}

	delivered := w.registry.Send(ctx, args.RecipientID, event)
	log.Debug().
		Int64("notification_id", n.ID).
		Str("recipient_id", args.RecipientID).
		Bool("delivered", delivered).
		Msg("live delivery attempted")

	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance wired to the
// notification ledger and the live connection registry.
func NewJobQueue(databaseURL string, ledger *notifications.Ledger, registry *realtime.Registry) (*JobQueue, error) {
	config := GetQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &NotificationDeliverWorker{ledger: ledger, registry: registry})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:     config.RiverQueueConfig(),
		Workers:    workers,
		JobTimeout: config.JobTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueDelivery queues a live delivery job for a recorded
// notification. Implements the messaging service's DeliveryQueue.
func (jq *JobQueue) EnqueueDelivery(ctx context.Context, notificationID int64, recipientID string) error {
	args := NotificationDeliverArgs{
		NotificationID: notificationID,
		RecipientID:    recipientID,
	}

	_, err := jq.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: jq.config.MaxRetries})
	if err != nil {
		return fmt.Errorf("failed to queue notification delivery job: %w", err)
	}

	return nil
}
