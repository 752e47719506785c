package moderation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/model"
)

const (
	JobTypeUnban = "unban"

	defaultTempBanReason = "Temporary ban"
)

// UnbanJobPayload is the deferred job body scheduled by TempBan.
type UnbanJobPayload struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

// ChatAPI is the per-chat moderation primitive surface. Every call is an
// independent network request that may fail per chat.
type ChatAPI interface {
	BanChatMember(ctx context.Context, chatID, userID int64, until *time.Time) error
	UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error
	RestrictChatMember(ctx context.Context, chatID, userID int64, until time.Time) error
}

// MemberStore is the authoritative member record. Chat-level state is a
// projection of it.
type MemberStore interface {
	SetBanStatus(ctx context.Context, userID int64, isBanned bool, expiresAt *time.Time) error
	UpdateTrustStatus(ctx context.Context, userID int64, isTrusted bool) error
	AddWarning(ctx context.Context, entry model.WarningEntry) (int, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, jobType string, payload interface{}, delay time.Duration) (string, error)
}

type Config struct {
	WarningTTL time.Duration
}

type Service struct {
	dir       ChatDirectory
	api       ChatAPI
	members   MemberStore
	scheduler Scheduler
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(dir ChatDirectory, api ChatAPI, members MemberStore, scheduler Scheduler, cfg Config, logger *zap.Logger) *Service {
	if cfg.WarningTTL <= 0 {
		cfg.WarningTTL = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		dir:       dir,
		api:       api,
		members:   members,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Ban removes the user from every healthy chat and then sets the authoritative
// ban flag. The flag write happens regardless of per-chat failures: it records
// policy, not what each chat managed to enforce. With zero healthy chats the
// ban still succeeds and still sets the flag.
func (s *Service) Ban(ctx context.Context, userID int64, actor model.Actor, reason string, excludeChatID *int64) model.ModerationResult {
	fanout, err := s.forEachChat(ctx, excludeChatID, func(ctx context.Context, chatID int64) error {
		return s.api.BanChatMember(ctx, chatID, userID, nil)
	})
	if err != nil {
		s.logger.Error("ban aborted before fan-out", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	if err := s.members.SetBanStatus(ctx, userID, true, nil); err != nil {
		s.logger.Error("set ban status", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("user banned",
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.String("reason", reason),
		zap.Int("chats_affected", fanout.SuccessCount),
		zap.Int("chats_failed", fanout.FailCount),
	)

	return model.ModerationResult{
		Success:       fanout.FailCount == 0 || fanout.SuccessCount > 0,
		ChatsAffected: fanout.SuccessCount,
		ChatsFailed:   fanout.FailCount,
	}
}

// TempBan bans like Ban but with an expiry, and schedules a deferred unban job
// keyed to the user. An empty reason defaults to a fixed literal.
func (s *Service) TempBan(ctx context.Context, userID int64, actor model.Actor, duration time.Duration, reason string, excludeChatID *int64) model.ModerationResult {
	if strings.TrimSpace(reason) == "" {
		reason = defaultTempBanReason
	}
	expiresAt := s.now().UTC().Add(duration)

	fanout, err := s.forEachChat(ctx, excludeChatID, func(ctx context.Context, chatID int64) error {
		return s.api.BanChatMember(ctx, chatID, userID, &expiresAt)
	})
	if err != nil {
		s.logger.Error("temp ban aborted before fan-out", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	if err := s.members.SetBanStatus(ctx, userID, true, &expiresAt); err != nil {
		s.logger.Error("set temp ban status", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	if _, err := s.scheduler.Schedule(ctx, JobTypeUnban, UnbanJobPayload{UserID: userID, Reason: reason}, duration); err != nil {
		// The ban is already applied; the expiry baked into the per-chat
		// calls still lifts it on Telegram's side.
		s.logger.Error("schedule deferred unban", zap.Int64("user_id", userID), zap.Error(err))
	}

	s.logger.Info("user temp banned",
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.String("reason", reason),
		zap.Time("expires_at", expiresAt),
		zap.Int("chats_affected", fanout.SuccessCount),
		zap.Int("chats_failed", fanout.FailCount),
	)

	return model.ModerationResult{
		Success:       fanout.FailCount == 0 || fanout.SuccessCount > 0,
		ChatsAffected: fanout.SuccessCount,
		ChatsFailed:   fanout.FailCount,
		ExpiresAt:     &expiresAt,
	}
}

// Unban lifts the ban in every healthy chat first and only then clears the
// authoritative flag. The ordering is a contract: clearing the flag before the
// chat calls complete would let a concurrent re-join check see the user as
// clean while chats still enforce the old ban.
func (s *Service) Unban(ctx context.Context, userID int64, actor model.Actor, reason string) model.ModerationResult {
	fanout, err := s.forEachChat(ctx, nil, func(ctx context.Context, chatID int64) error {
		return s.api.UnbanChatMember(ctx, chatID, userID, true)
	})
	if err != nil {
		s.logger.Error("unban aborted before fan-out", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	if err := s.members.SetBanStatus(ctx, userID, false, nil); err != nil {
		s.logger.Error("clear ban status", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("user unbanned",
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.String("reason", reason),
		zap.Int("chats_affected", fanout.SuccessCount),
		zap.Int("chats_failed", fanout.FailCount),
	)

	return model.ModerationResult{
		Success:       fanout.FailCount == 0 || fanout.SuccessCount > 0,
		ChatsAffected: fanout.SuccessCount,
		ChatsFailed:   fanout.FailCount,
	}
}

// BanInChat applies the ban to exactly one chat without consulting the
// directory, for moderation events already scoped to a single chat. The
// authoritative flag contract is the same as Ban.
func (s *Service) BanInChat(ctx context.Context, chatID, userID int64, actor model.Actor, reason string) model.ModerationResult {
	affected, failed := 1, 0
	if err := s.api.BanChatMember(ctx, chatID, userID, nil); err != nil {
		affected, failed = 0, 1
		s.logger.Warn("single-chat ban failed", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.members.SetBanStatus(ctx, userID, true, nil); err != nil {
		s.logger.Error("set ban status", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("user banned in single chat",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.String("reason", reason),
	)

	return model.ModerationResult{
		Success:       failed == 0 || affected > 0,
		ChatsAffected: affected,
		ChatsFailed:   failed,
	}
}

// Restrict mutes the user. With a chat id it issues one restrict call; without
// one it fans the same call across every healthy chat. The permission payload
// denies all content sending uniformly, partial mutes are not supported.
func (s *Service) Restrict(ctx context.Context, userID int64, actor model.Actor, duration time.Duration, chatID *int64) model.ModerationResult {
	expiresAt := s.now().UTC().Add(duration)

	if chatID != nil {
		affected, failed := 1, 0
		if err := s.api.RestrictChatMember(ctx, *chatID, userID, expiresAt); err != nil {
			affected, failed = 0, 1
			s.logger.Warn("single-chat restrict failed", zap.Int64("chat_id", *chatID), zap.Int64("user_id", userID), zap.Error(err))
		}
		return model.ModerationResult{
			Success:       failed == 0 || affected > 0,
			ChatsAffected: affected,
			ChatsFailed:   failed,
			ExpiresAt:     &expiresAt,
		}
	}

	fanout, err := s.forEachChat(ctx, nil, func(ctx context.Context, chatID int64) error {
		return s.api.RestrictChatMember(ctx, chatID, userID, expiresAt)
	})
	if err != nil {
		s.logger.Error("restrict aborted before fan-out", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("user restricted",
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.Time("expires_at", expiresAt),
		zap.Int("chats_affected", fanout.SuccessCount),
		zap.Int("chats_failed", fanout.FailCount),
	)

	return model.ModerationResult{
		Success:       fanout.FailCount == 0 || fanout.SuccessCount > 0,
		ChatsAffected: fanout.SuccessCount,
		ChatsFailed:   fanout.FailCount,
		ExpiresAt:     &expiresAt,
	}
}

type WarnInput struct {
	UserID    int64
	Actor     model.Actor
	Reason    string
	ChatID    int64
	MessageID *int64
}

// Warn appends one warning entry and reports the post-append count of active
// (non-expired) warnings. The caller uses that count for auto-ban decisions.
func (s *Service) Warn(ctx context.Context, input WarnInput) model.ModerationResult {
	issuedAt := s.now().UTC()
	count, err := s.members.AddWarning(ctx, model.WarningEntry{
		UserID:    input.UserID,
		Reason:    input.Reason,
		IssuedBy:  input.Actor.Identifier(),
		ChatID:    input.ChatID,
		MessageID: input.MessageID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.cfg.WarningTTL),
	})
	if err != nil {
		s.logger.Warn("add warning failed", zap.Int64("user_id", input.UserID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("user warned",
		zap.Int64("user_id", input.UserID),
		zap.String("actor", input.Actor.Identifier()),
		zap.String("reason", input.Reason),
		zap.Int("active_warnings", count),
	)

	return model.ModerationResult{Success: true, WarningCount: count}
}

// Trust flips the detection-bypass flag on the authoritative record. No chat
// calls are involved; trusting an already-trusted user is a no-op success.
func (s *Service) Trust(ctx context.Context, userID int64, actor model.Actor, trusted bool) model.ModerationResult {
	if err := s.members.UpdateTrustStatus(ctx, userID, trusted); err != nil {
		s.logger.Warn("update trust status failed", zap.Int64("user_id", userID), zap.Error(err))
		return model.FailedResult(err)
	}

	s.logger.Info("trust status updated",
		zap.Int64("user_id", userID),
		zap.String("actor", actor.Identifier()),
		zap.Bool("trusted", trusted),
	)

	return model.ModerationResult{Success: true}
}
