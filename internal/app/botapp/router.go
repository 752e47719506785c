package botapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/enums"
	"github.com/ivankudzin/guardbot/internal/domain/model"
	tginfra "github.com/ivankudzin/guardbot/internal/infra/telegram"
	modsvc "github.com/ivankudzin/guardbot/internal/services/moderation"
	reviewsvc "github.com/ivankudzin/guardbot/internal/services/reviews"
)

const helpText = `Moderation commands (reply to a message or pass a user id):
/ban [reason] - ban everywhere
/tempban [duration] [reason] - ban with expiry, e.g. /tempban 12h flooding
/unban [reason] - lift a ban everywhere
/mute [duration] - mute here, or /mute global [duration]
/warn [reason] - issue a warning
/trust, /untrust - toggle the detection bypass flag
/spam - delete the replied message and ban the sender everywhere
/report - flag the replied message for review`

func (a *App) handleCommand(ctx context.Context, cmd tginfra.CommandUpdate) {
	switch cmd.Command {
	case "start", "help":
		a.reply(ctx, cmd, helpText)
	case "report":
		a.handleReport(ctx, cmd)
	case "ban", "tempban", "unban", "mute", "warn", "trust", "untrust", "spam":
		if !a.authorize(ctx, cmd) {
			return
		}
		a.handleModerationCommand(ctx, cmd)
	}
}

func (a *App) handleModerationCommand(ctx context.Context, cmd tginfra.CommandUpdate) {
	target, rest, ok := resolveTarget(cmd)
	if !ok {
		a.reply(ctx, cmd, "Reply to the offender's message or pass their user id.")
		return
	}

	actor := model.ChatMemberActor(cmd.UserID, cmd.Username)

	switch cmd.Command {
	case "ban":
		res := a.moderationService.Ban(ctx, target.UserID, actor, rest, nil)
		a.reply(ctx, cmd, renderResult("Ban", res))
	case "tempban":
		duration, reason := splitDuration(rest, a.cfg.Moderation.DefaultTempBan)
		res := a.moderationService.TempBan(ctx, target.UserID, actor, duration, reason, nil)
		a.reply(ctx, cmd, renderResult("Temp ban", res))
	case "unban":
		res := a.moderationService.Unban(ctx, target.UserID, actor, rest)
		a.reply(ctx, cmd, renderResult("Unban", res))
	case "mute":
		a.handleMute(ctx, cmd, target.UserID, actor, rest)
	case "warn":
		a.handleWarn(ctx, cmd, target, actor, rest)
	case "trust":
		res := a.moderationService.Trust(ctx, target.UserID, actor, true)
		a.reply(ctx, cmd, renderResult("Trust", res))
	case "untrust":
		res := a.moderationService.Trust(ctx, target.UserID, actor, false)
		a.reply(ctx, cmd, renderResult("Untrust", res))
	case "spam":
		a.handleSpam(ctx, cmd, target, actor)
	}
}

// handleSpam handles the one-chat-already-done ban shape: the offending
// message is removed and the user banned here first, then the fan-out skips
// this chat.
func (a *App) handleSpam(ctx context.Context, cmd tginfra.CommandUpdate, target targetRef, actor model.Actor) {
	if target.MessageID != nil {
		if err := a.bot.DeleteMessage(ctx, cmd.ChatID, int(*target.MessageID)); err != nil {
			a.logger.Warn("failed to delete spam message", zap.Int64("chat_id", cmd.ChatID), zap.Error(err))
		}
	}

	local := a.moderationService.BanInChat(ctx, cmd.ChatID, target.UserID, actor, "spam")
	if !local.Success {
		a.reply(ctx, cmd, renderResult("Spam ban", local))
		return
	}

	res := a.moderationService.Ban(ctx, target.UserID, actor, "spam", &cmd.ChatID)
	a.reply(ctx, cmd, renderSpamOutcome(res))
}

// renderSpamOutcome folds the already-applied local ban into the fan-out
// result. A fan-out that hard-fails after the local ban is a partial outcome,
// not a plain failure.
func renderSpamOutcome(global model.ModerationResult) string {
	if !global.Success {
		return renderResult("Spam ban", global) + ". The user is banned in this chat only."
	}
	global.ChatsAffected++
	return renderResult("Spam ban", global)
}

func (a *App) handleMute(ctx context.Context, cmd tginfra.CommandUpdate, userID int64, actor model.Actor, args string) {
	global := false
	if strings.HasPrefix(args, "global") {
		global = true
		args = strings.TrimSpace(strings.TrimPrefix(args, "global"))
	}
	duration, _ := splitDuration(args, a.cfg.Moderation.DefaultTempBan)

	chatID := &cmd.ChatID
	if global {
		chatID = nil
	}
	res := a.moderationService.Restrict(ctx, userID, actor, duration, chatID)
	a.reply(ctx, cmd, renderResult("Mute", res))
}

func (a *App) handleWarn(ctx context.Context, cmd tginfra.CommandUpdate, target targetRef, actor model.Actor, reason string) {
	res := a.moderationService.Warn(ctx, modsvc.WarnInput{
		UserID:    target.UserID,
		Actor:     actor,
		Reason:    reason,
		ChatID:    cmd.ChatID,
		MessageID: target.MessageID,
	})
	if !res.Success {
		a.reply(ctx, cmd, renderResult("Warn", res))
		return
	}

	a.reply(ctx, cmd, fmt.Sprintf("Warning issued, active warnings: %d", res.WarningCount))

	limit := a.cfg.Moderation.AutoBanWarnings
	if limit > 0 && res.WarningCount >= limit {
		banRes := a.moderationService.Ban(ctx, target.UserID, model.SystemActor("warning-limit"),
			fmt.Sprintf("reached %d active warnings", res.WarningCount), nil)
		a.reply(ctx, cmd, renderResult("Auto ban", banRes))
	}
}

func (a *App) handleReport(ctx context.Context, cmd tginfra.CommandUpdate) {
	if cmd.ReplyTo == nil {
		a.reply(ctx, cmd, "Reply to the message you want to report.")
		return
	}

	messageID := int64(cmd.ReplyTo.MessageID)
	rc, choices, err := a.reviewsService.OpenCase(ctx, enums.CaseKindContentReport, cmd.ChatID, cmd.ReplyTo.UserID, &messageID)
	if err != nil {
		a.logger.Error("failed to open report case", zap.Error(err))
		a.reply(ctx, cmd, "Could not file the report, try again later.")
		return
	}

	reviewChat := cmd.ChatID
	if a.cfg.Telegram.OwnerTGID != 0 {
		reviewChat = a.cfg.Telegram.OwnerTGID
	}

	prompt := fmt.Sprintf("Report #%d in chat %d: user %d, message %d. Reported by %s.",
		rc.ID, cmd.ChatID, cmd.ReplyTo.UserID, cmd.ReplyTo.MessageID, renderUser(cmd.UserID, cmd.Username))
	if _, err := a.bot.SendInline(ctx, reviewChat, prompt, keyboardRows(choices)); err != nil {
		a.logger.Error("failed to post review keyboard", zap.Int64("case_id", rc.ID), zap.Error(err))
		return
	}

	a.reply(ctx, cmd, "Report filed, moderators will take a look.")
}

func (a *App) handleCallback(ctx context.Context, cb tginfra.CallbackUpdate) {
	if !reviewsvc.IsReviewCallback(cb.Data) {
		_ = a.bot.AnswerCallback(ctx, cb.CallbackID, "", false)
		return
	}

	fb := a.reviewsService.HandleCallback(ctx, reviewsvc.CallbackInput{
		Data:      cb.Data,
		ChatID:    cb.ChatID,
		MessageID: cb.MessageID,
		Reviewer:  model.ChatMemberActor(cb.UserID, cb.Username),
	})
	if err := a.bot.AnswerCallback(ctx, cb.CallbackID, fb.Text, fb.Alert); err != nil {
		a.logger.Warn("failed to answer callback", zap.Error(err))
	}
}

// handleMember keeps the chat directory current and re-enforces bans: the
// member record is policy, so a banned user joining a chat gets removed again.
func (a *App) handleMember(ctx context.Context, update tginfra.MemberUpdate) {
	if !update.Joined {
		return
	}

	if err := a.chatsService.Track(ctx, update.ChatID, update.ChatTitle); err != nil {
		a.logger.Warn("failed to track chat", zap.Int64("chat_id", update.ChatID), zap.Error(err))
	}
	if err := a.membersRepo.UpsertMember(ctx, update.UserID, update.Username); err != nil {
		a.logger.Warn("failed to upsert member", zap.Int64("user_id", update.UserID), zap.Error(err))
		return
	}

	record, err := a.membersRepo.GetMember(ctx, update.UserID)
	if err != nil {
		a.logger.Warn("failed to load member record", zap.Int64("user_id", update.UserID), zap.Error(err))
		return
	}
	if record.IsBanned {
		res := a.moderationService.BanInChat(ctx, update.ChatID, update.UserID, model.SystemActor("rejoin-guard"), "banned member rejoined")
		if !res.Success {
			a.logger.Warn("failed to re-enforce ban on rejoin",
				zap.Int64("user_id", update.UserID),
				zap.Int64("chat_id", update.ChatID),
				zap.String("error", res.ErrorMessage))
		}
	}
}

func (a *App) authorize(ctx context.Context, cmd tginfra.CommandUpdate) bool {
	if cmd.UserID == a.cfg.Telegram.OwnerTGID {
		return true
	}

	isAdmin, err := a.bot.IsChatAdmin(ctx, cmd.ChatID, cmd.UserID)
	if err != nil {
		a.logger.Warn("admin check failed", zap.Int64("chat_id", cmd.ChatID), zap.Error(err))
		return false
	}
	if !isAdmin {
		a.reply(ctx, cmd, "Admins only.")
	}
	return isAdmin
}

func (a *App) reply(ctx context.Context, cmd tginfra.CommandUpdate, text string) {
	if err := a.bot.SendReply(ctx, cmd.ChatID, cmd.MessageID, text); err != nil {
		a.logger.Warn("failed to send reply", zap.Int64("chat_id", cmd.ChatID), zap.Error(err))
	}
}

type targetRef struct {
	UserID    int64
	MessageID *int64
}

// resolveTarget picks the acted-on user: the replied-to message author when
// present, otherwise a leading numeric id argument. The remaining args come
// back as free text (usually a reason).
func resolveTarget(cmd tginfra.CommandUpdate) (targetRef, string, bool) {
	if cmd.ReplyTo != nil {
		messageID := int64(cmd.ReplyTo.MessageID)
		return targetRef{UserID: cmd.ReplyTo.UserID, MessageID: &messageID}, strings.TrimSpace(cmd.Args), true
	}

	fields := strings.Fields(cmd.Args)
	if len(fields) == 0 {
		return targetRef{}, "", false
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID <= 0 {
		return targetRef{}, "", false
	}

	return targetRef{UserID: userID}, strings.TrimSpace(strings.Join(fields[1:], " ")), true
}

// splitDuration peels a leading duration off the args, falling back to the
// default when the first token does not parse.
func splitDuration(args string, fallback time.Duration) (time.Duration, string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fallback, ""
	}

	d, err := time.ParseDuration(fields[0])
	if err != nil || d <= 0 {
		return fallback, strings.TrimSpace(args)
	}

	return d, strings.TrimSpace(strings.Join(fields[1:], " "))
}

func keyboardRows(choices []reviewsvc.Choice) [][]tginfra.InlineButton {
	rows := make([][]tginfra.InlineButton, 0, (len(choices)+1)/2)
	for i := 0; i < len(choices); i += 2 {
		row := []tginfra.InlineButton{{Text: choices[i].Label, Data: choices[i].Data}}
		if i+1 < len(choices) {
			row = append(row, tginfra.InlineButton{Text: choices[i+1].Label, Data: choices[i+1].Data})
		}
		rows = append(rows, row)
	}
	return rows
}

func renderUser(userID int64, username string) string {
	if strings.TrimSpace(username) != "" {
		return "@" + username
	}
	return strconv.FormatInt(userID, 10)
}

func renderResult(verb string, res model.ModerationResult) string {
	if !res.Success {
		return fmt.Sprintf("%s failed: %s", verb, res.ErrorMessage)
	}

	text := fmt.Sprintf("%s: %d chats ok, %d failed", verb, res.ChatsAffected, res.ChatsFailed)
	if res.ExpiresAt != nil {
		text += ", until " + res.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	return text
}
