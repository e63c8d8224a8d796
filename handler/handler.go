package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"lecture-narrator/dto"
	"lecture-narrator/service"
)

type ServiceDependencies struct {
	Pipeline service.Pipeline
}

// PipelineHandler runs one lecture pipeline message. Malformed messages are
// permanent failures and go straight to the dead-letter queue.
func PipelineHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.PipelineMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal pipeline message")
		return backoff.Permanent(fmt.Errorf("%w: %v", service.ErrNonRetryable, err))
	}

	zerolog.Ctx(ctx).Info().
		Str("lecture_id", message.LectureId.String()).
		Str("run_id", message.RunId.String()).
		Str("format", message.Format.String()).
		Msg("received pipeline message")

	return deps.Pipeline.Run(ctx, message)
}
