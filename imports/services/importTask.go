package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeProcessImport = "import:process"
	ImportQueue       = "imports"
)

type ProcessImportPayload struct {
	ImportID string `json:"importId"`
}

// TaskEnqueuer is the part of *asynq.Client the intake path needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewProcessImportTask builds the queue message for one import. The task id is the
// import id so the same import cannot be queued twice while it is still pending.
func NewProcessImportTask(importID uuid.UUID, maxRetry int, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessImportPayload{ImportID: importID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal import task payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(ImportQueue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(importID.String()),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeProcessImport, payload, opts...), nil
}

type importRunner interface {
	ProcessImport(ctx context.Context, importID uuid.UUID) error
}

// ImportTaskHandler hands queued import ids to the processor
type ImportTaskHandler struct {
	processor importRunner
	logger    *zap.Logger
}

func NewImportTaskHandler(processor importRunner, logger *zap.Logger) *ImportTaskHandler {
	return &ImportTaskHandler{processor: processor, logger: logger}
}

func (h *ImportTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload ProcessImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode import task payload: %v: %w", err, asynq.SkipRetry)
	}
	importID, err := uuid.Parse(payload.ImportID)
	if err != nil {
		return fmt.Errorf("invalid import id %q: %v: %w", payload.ImportID, err, asynq.SkipRetry)
	}

	h.logger.Info("Import job received",
		zap.String("import_id", importID.String()),
		zap.String("task_type", task.Type()),
	)
	return h.processor.ProcessImport(ctx, importID)
}

// NewImportWorker builds the asynq server that consumes one import at a time
func NewImportWorker(redisOpt asynq.RedisConnOpt, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{ImportQueue: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Import job failed",
				zap.String("task_type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
				zap.String("type", "job_failed"),
			)
		}),
	})
}

// NewImportMux routes import tasks to the handler
func NewImportMux(handler *ImportTaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessImport, handler)
	return mux
}
