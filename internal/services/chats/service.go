package chats

import (
	"context"
	"fmt"
)

type Repo interface {
	HealthyChatIDs(ctx context.Context) ([]int64, error)
	UpsertChat(ctx context.Context, chatID int64, title string) error
	MarkUnhealthy(ctx context.Context, chatID int64) error
}

// Service is the chat directory: the set of chats the bot administers, used
// by every cross-chat fan-out.
type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) HealthyChatIDs(ctx context.Context) ([]int64, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("chats repo is not configured")
	}
	return s.repo.HealthyChatIDs(ctx)
}

func (s *Service) Track(ctx context.Context, chatID int64, title string) error {
	if s.repo == nil {
		return fmt.Errorf("chats repo is not configured")
	}
	return s.repo.UpsertChat(ctx, chatID, title)
}

func (s *Service) MarkUnhealthy(ctx context.Context, chatID int64) error {
	if s.repo == nil {
		return fmt.Errorf("chats repo is not configured")
	}
	return s.repo.MarkUnhealthy(ctx, chatID)
}
