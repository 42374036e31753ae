package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TopicValidate = "imports.validate"
	TopicCommit   = "imports.commit"
)

// Task is the payload of every import message.
type Task struct {
	JobID          string `json:"job_id"`
	OrganizationID string `json:"organization_id"`
}

type HandlerFunc func(ctx context.Context, task Task) error

// Runner executes import tasks in the background over an in-process watermill pub/sub.
// Handlers always ack: failures belong in job state, not in redelivery.
type Runner struct {
	pubSub *gochannel.GoChannel
	router *message.Router
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger, buffer int64) (*Runner, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job router: %w", err)
	}
	router.AddMiddleware(middleware.CorrelationID, middleware.Recoverer)

	return &Runner{pubSub: pubSub, router: router, logger: logger}, nil
}

// Handle registers fn for topic. Must be called before Start.
func (r *Runner) Handle(topic string, fn HandlerFunc) {
	r.router.AddNoPublisherHandler(topic+".handler", topic, r.pubSub, func(msg *message.Message) (err error) {
		var task Task
		if jsonErr := json.Unmarshal(msg.Payload, &task); jsonErr != nil {
			r.logger.Error("Dropping malformed import task", "topic", topic, "message_id", msg.UUID, "error", jsonErr)
			return nil
		}

		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Import task panicked",
					"topic", topic,
					"job_id", task.JobID,
					"panic_value", p,
					"stack_trace", string(debug.Stack()))
				err = nil
			}
		}()

		if handlerErr := fn(msg.Context(), task); handlerErr != nil {
			r.logger.Error("Import task failed", "topic", topic, "job_id", task.JobID, "error", handlerErr)
		}
		return nil
	})
}

// Start runs the router in the background and returns once it accepts messages.
func (r *Runner) Start(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		errs <- r.router.Run(ctx)
	}()

	select {
	case <-r.router.Running():
		return nil
	case err := <-errs:
		return fmt.Errorf("job router stopped: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch enqueues a task. It does not wait for the handler.
func (r *Runner) Dispatch(ctx context.Context, topic string, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal import task: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(task.JobID, msg)

	if err := r.pubSub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to dispatch %s for job %s: %w", topic, task.JobID, err)
	}
	return nil
}

func (r *Runner) Close() error {
	if err := r.router.Close(); err != nil {
		return err
	}
	return r.pubSub.Close()
}
