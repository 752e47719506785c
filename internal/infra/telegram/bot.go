package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CommandUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	Command   string
	Args      string
	ReplyTo   *ReplyRef
	MessageID int
}

type ReplyRef struct {
	UserID    int64
	Username  string
	MessageID int
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	Username   string
	MessageID  int
	Data       string
}

type MemberUpdate struct {
	ChatID    int64
	ChatTitle string
	UserID    int64
	Username  string
	Joined    bool
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate)
	OnCallback func(context.Context, CallbackUpdate)
	OnMember   func(context.Context, MemberUpdate)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	dryRun      bool
}

func NewBot(token string, pollTimeout int) (*Bot, error) {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	if strings.TrimSpace(token) == "" {
		return &Bot{pollTimeout: pollTimeout, dryRun: true}, nil
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api, pollTimeout: pollTimeout}, nil
}

func (b *Bot) DryRun() bool {
	return b.dryRun
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b.dryRun {
		<-ctx.Done()
		return nil
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update, handlers)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) {
	if msg := update.Message; msg != nil && msg.From != nil {
		if msg.NewChatMembers != nil && handlers.OnMember != nil {
			for _, joined := range msg.NewChatMembers {
				handlers.OnMember(ctx, MemberUpdate{
					ChatID:    msg.Chat.ID,
					ChatTitle: msg.Chat.Title,
					UserID:    joined.ID,
					Username:  joined.UserName,
					Joined:    true,
				})
			}
		}

		if msg.IsCommand() && handlers.OnCommand != nil {
			cmd := CommandUpdate{
				ChatID:    msg.Chat.ID,
				UserID:    msg.From.ID,
				Username:  msg.From.UserName,
				Command:   msg.Command(),
				Args:      msg.CommandArguments(),
				MessageID: msg.MessageID,
			}
			if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
				cmd.ReplyTo = &ReplyRef{
					UserID:    reply.From.ID,
					Username:  reply.From.UserName,
					MessageID: reply.MessageID,
				}
			}
			handlers.OnCommand(ctx, cmd)
		}
	}

	if cb := update.CallbackQuery; cb != nil && cb.From != nil && handlers.OnCallback != nil {
		chatID := int64(0)
		messageID := 0
		if cb.Message != nil {
			chatID = cb.Message.Chat.ID
			messageID = cb.Message.MessageID
		}
		handlers.OnCallback(ctx, CallbackUpdate{
			CallbackID: cb.ID,
			ChatID:     chatID,
			UserID:     cb.From.ID,
			Username:   cb.From.UserName,
			MessageID:  messageID,
			Data:       cb.Data,
		})
	}
}

// noPermissions denies every content-sending permission uniformly. Partial
// mutes are not a supported configuration.
var noPermissions = tgbotapi.ChatPermissions{
	CanSendMessages:       false,
	CanSendMediaMessages:  false,
	CanSendPolls:          false,
	CanSendOtherMessages:  false,
	CanAddWebPagePreviews: false,
	CanChangeInfo:         false,
	CanInviteUsers:        false,
	CanPinMessages:        false,
}

func (b *Bot) BanChatMember(ctx context.Context, chatID, userID int64, until *time.Time) error {
	if b.dryRun {
		return nil
	}

	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}
	if until != nil {
		cfg.UntilDate = until.Unix()
	}

	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("ban member %d in chat %d: %w", userID, chatID, err)
	}

	_ = ctx
	return nil
}

func (b *Bot) UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error {
	if b.dryRun {
		return nil
	}

	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     onlyIfBanned,
	}

	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("unban member %d in chat %d: %w", userID, chatID, err)
	}

	_ = ctx
	return nil
}

func (b *Bot) RestrictChatMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	if b.dryRun {
		return nil
	}

	perms := noPermissions
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        until.Unix(),
		Permissions:      &perms,
	}

	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("restrict member %d in chat %d: %w", userID, chatID, err)
	}

	_ = ctx
	return nil
}

// IsChatAdmin reports whether the user administers the given chat. Dry-run
// mode answers true so local flows stay exercisable without a live token.
func (b *Bot) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if b.dryRun {
		return true, nil
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d in chat %d: %w", userID, chatID, err)
	}

	_ = ctx
	return member.IsCreator() || member.IsAdministrator(), nil
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if b.dryRun {
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) SendReply(ctx context.Context, chatID int64, replyTo int, text string) error {
	if b.dryRun {
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram reply: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) SendInline(ctx context.Context, chatID int64, text string, rows [][]InlineButton) (int, error) {
	if b.dryRun {
		return 0, nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = BuildInlineKeyboard(rows)
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send inline message: %w", err)
	}

	_ = ctx
	return sent.MessageID, nil
}

func (b *Bot) SendPhotoURL(ctx context.Context, chatID int64, photoURL, caption string) error {
	if b.dryRun {
		return nil
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}

	_ = ctx
	return nil
}

// EditMessageText replaces the message body and drops its inline keyboard,
// which is how a resolved case stops being clickable.
func (b *Bot) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if b.dryRun {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit telegram message: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if b.dryRun {
		return nil
	}

	cfg := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if b.dryRun || strings.TrimSpace(callbackID) == "" {
		return nil
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	_ = ctx
	return nil
}
