package moderation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/model"
)

// ChatDirectory supplies the live set of chats the bot administers. Only
// healthy chats (connectivity and admin rights confirmed) are returned.
type ChatDirectory interface {
	HealthyChatIDs(ctx context.Context) ([]int64, error)
}

// forEachChat applies op to every healthy chat, isolating per-chat failures so
// one chat never prevents attempts on the rest. A directory failure means op
// is never invoked and the error propagates to the caller.
//
// An excluded chat and every chat left unattempted after cancellation count as
// skipped. The only contract is the three counts; ordering between chats is
// not observable.
func (s *Service) forEachChat(
	ctx context.Context,
	exclude *int64,
	op func(ctx context.Context, chatID int64) error,
) (model.CrossChatResult, error) {
	chatIDs, err := s.dir.HealthyChatIDs(ctx)
	if err != nil {
		return model.CrossChatResult{}, fmt.Errorf("list healthy chats: %w", err)
	}

	var result model.CrossChatResult
	for _, chatID := range chatIDs {
		if exclude != nil && chatID == *exclude {
			result.SkippedCount++
			continue
		}
		if ctx.Err() != nil {
			result.SkippedCount++
			continue
		}

		if opErr := runChatOp(ctx, chatID, op); opErr != nil {
			result.FailCount++
			s.logger.Warn("per-chat operation failed",
				zap.Int64("chat_id", chatID),
				zap.Error(opErr),
			)
			continue
		}
		result.SuccessCount++
	}

	return result, nil
}

// runChatOp contains a panic from a single chat's operation so the remaining
// chats are still attempted.
func runChatOp(ctx context.Context, chatID int64, op func(context.Context, int64) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat operation panicked: %v", r)
		}
	}()
	return op(ctx, chatID)
}
