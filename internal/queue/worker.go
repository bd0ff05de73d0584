package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// Transferrer executes a transfer. processor.TransferProcessor satisfies it.
type Transferrer interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, description string) (*model.TransferResult, error)
}

// Worker consumes transfer commands from the queue and records their outcome
type Worker struct {
	client    redis.UniversalClient
	transfers Transferrer
	log       logrus.FieldLogger
	stopCh    chan struct{}

	// BlockTimeout bounds each BLPOP so Stop is noticed
	BlockTimeout time.Duration
	// MaxRetryElapsed bounds how long a busy transfer is retried
	MaxRetryElapsed time.Duration
	now             func() time.Time
}

// NewWorker creates a new Worker
func NewWorker(client redis.UniversalClient, transfers Transferrer, log logrus.FieldLogger) *Worker {
	return &Worker{
		client:          client,
		transfers:       transfers,
		log:             log,
		stopCh:          make(chan struct{}),
		BlockTimeout:    5 * time.Second,
		MaxRetryElapsed: 30 * time.Second,
		now:             time.Now,
	}
}

// Start consumes messages until ctx is cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) {
	w.log.WithField("queue", QueueName).Info("worker started, listening for transfers")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping due to context cancellation")
			return
		case <-w.stopCh:
			w.log.Info("worker stopping due to stop signal")
			return
		default:
			result, err := w.client.BLPop(ctx, w.BlockTimeout, QueueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				w.log.WithError(err).Error("error reading from queue")
				time.Sleep(time.Second)
				continue
			}

			// result[0] is the queue name, result[1] is the message
			if len(result) < 2 {
				continue
			}
			w.processMessage(ctx, result[1])
		}
	}
}

// Stop signals the worker to stop processing
func (w *Worker) Stop() {
	close(w.stopCh)
}

// ProcessOne pops and processes a single message without blocking.
// It reports whether a message was available.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	data, err := w.client.LPop(ctx, QueueName).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.processMessage(ctx, data)
	return true, nil
}

func (w *Worker) processMessage(ctx context.Context, data string) {
	var cmd TransferCommand
	if err := json.Unmarshal([]byte(data), &cmd); err != nil || cmd.RequestID == "" {
		w.log.WithField("message", data).WithError(err).Error("dropping malformed transfer command")
		return
	}

	entry := w.log.WithFields(logrus.Fields{
		"request_id":      cmd.RequestID,
		"from_account_id": cmd.FromAccountID,
		"to_account_id":   cmd.ToAccountID,
		"amount":          cmd.Amount.String(),
	})

	result, attempts, err := w.execute(ctx, cmd)
	if err != nil && interrupted(ctx, err) {
		// nothing was committed; hand the command back for the next worker
		if rerr := w.client.LPush(context.WithoutCancel(ctx), QueueName, data).Err(); rerr != nil {
			entry.WithError(rerr).Error("failed to requeue interrupted transfer command")
		} else {
			entry.WithField("attempts", attempts).Info("requeued transfer command on shutdown")
			return
		}
	}

	status := &TransferStatus{
		RequestID:   cmd.RequestID,
		RequestedBy: cmd.RequestedBy,
		Attempts:    attempts,
		UpdatedAt:   w.now().UTC(),
	}
	if err != nil {
		status.Status = RequestStatusFailed
		status.Error = err.Error()
		status.ErrorKind = model.KindOf(err).String()
		entry.WithError(err).WithField("attempts", attempts).Warn("queued transfer failed")
	} else {
		status.Status = RequestStatusCompleted
		status.Result = result
		entry.WithField("attempts", attempts).Info("queued transfer completed")
	}

	// the outcome outlives a cancelled worker context
	if err := writeStatus(context.WithoutCancel(ctx), w.client, status); err != nil {
		entry.WithError(err).Error("failed to store transfer outcome")
	}
}

// execute runs the transfer, retrying with exponential backoff while accounts are busy.
// Every other error is final.
func (w *Worker) execute(ctx context.Context, cmd TransferCommand) (*model.TransferResult, int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = w.MaxRetryElapsed

	var (
		result   *model.TransferResult
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		var err error
		result, err = w.transfers.Transfer(ctx, cmd.FromAccountID, cmd.ToAccountID, cmd.Amount, cmd.Description)
		if err != nil && !model.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, attempts, err
	}
	return result, attempts, nil
}

// interrupted reports whether err came from the worker shutting down while the transfer was
// still waiting for its accounts, rather than from the transfer itself
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return model.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
