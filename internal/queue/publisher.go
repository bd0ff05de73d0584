package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

const (
	// QueueName is the Redis list key for pending transfer commands
	QueueName = "transfers:pending"

	// ResultTTL is how long a request's outcome stays queryable
	ResultTTL = 24 * time.Hour

	resultKeyPrefix = "transfers:result:"
)

// RequestStatus is the lifecycle of an asynchronous transfer request
type RequestStatus string

const (
	RequestStatusQueued    RequestStatus = "QUEUED"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusFailed    RequestStatus = "FAILED"
)

// TransferCommand is the message published to the queue
type TransferCommand struct {
	RequestID     string          `json:"request_id"`
	FromAccountID uuid.UUID       `json:"from_account_id"`
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	RequestedBy   string          `json:"requested_by"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TransferStatus is the stored outcome of a transfer request
type TransferStatus struct {
	RequestID   string                `json:"request_id"`
	Status      RequestStatus         `json:"status"`
	RequestedBy string                `json:"requested_by"`
	Result      *model.TransferResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorKind   string                `json:"error_kind,omitempty"`
	Attempts    int                   `json:"attempts,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ResultKey is the Redis key holding the status of a request
func ResultKey(requestID string) string {
	return resultKeyPrefix + requestID
}

// Publisher handles publishing transfer commands to Redis
type Publisher struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewPublisher creates a new Publisher
func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// PublishTransfer records the request as QUEUED and appends it to the queue in one
// MULTI/EXEC, so a request id is never visible without its command or vice versa
func (p *Publisher) PublishTransfer(ctx context.Context, cmd TransferCommand) (*TransferStatus, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	cmd.PublishedAt = p.now().UTC()

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	status := &TransferStatus{
		RequestID:   cmd.RequestID,
		Status:      RequestStatusQueued,
		RequestedBy: cmd.RequestedBy,
		UpdatedAt:   cmd.PublishedAt,
	}
	statusData, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ResultKey(cmd.RequestID), statusData, ResultTTL)
		// RPUSH + BLPOP keeps the queue FIFO
		pipe.RPush(ctx, QueueName, data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish to queue: %w", err)
	}
	return status, nil
}

// Status returns the stored outcome of a request
func (p *Publisher) Status(ctx context.Context, requestID string) (*TransferStatus, error) {
	return readStatus(ctx, p.client, requestID)
}

// QueueLength returns the current number of messages in the queue
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, QueueName).Result()
}

func readStatus(ctx context.Context, client redis.UniversalClient, requestID string) (*TransferStatus, error) {
	data, err := client.Get(ctx, ResultKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrTransferRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer status: %w", err)
	}

	var status TransferStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfer status: %w", err)
	}
	return &status, nil
}

func writeStatus(ctx context.Context, client redis.UniversalClient, status *TransferStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return client.Set(ctx, ResultKey(status.RequestID), data, ResultTTL).Err()
}
