package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/enums"
	"github.com/ivankudzin/guardbot/internal/domain/model"
	redisrepo "github.com/ivankudzin/guardbot/internal/repo/redis"
	"github.com/ivankudzin/guardbot/internal/services/moderation"
)

// CaseStore is the durable side of the review queue. TryUpdateStatus is the
// single write that resolves a case; everything else in this package exists to
// funnel exactly one caller through it per case.
type CaseStore interface {
	Create(ctx context.Context, kind enums.CaseKind, chatID, userID int64, messageID *int64) (model.ReviewCase, error)
	GetByID(ctx context.Context, caseID int64) (model.ReviewCase, error)
	TryUpdateStatus(ctx context.Context, caseID int64, status enums.CaseStatus, reviewedBy, actionTaken, notes string) (bool, error)
	CountPending(ctx context.Context) (int, error)
}

// ContextStore holds the short-lived callback pointers. TTL enforcement is the
// store's job, not ours.
type ContextStore interface {
	Put(ctx context.Context, cc model.CallbackContext) error
	GetByID(ctx context.Context, contextID string) (model.CallbackContext, error)
	Delete(ctx context.Context, contextID string) error
}

// Moderator is the subset of moderation verbs the outcome handlers invoke.
type Moderator interface {
	Ban(ctx context.Context, userID int64, actor model.Actor, reason string, excludeChatID *int64) model.ModerationResult
	TempBan(ctx context.Context, userID int64, actor model.Actor, duration time.Duration, reason string, excludeChatID *int64) model.ModerationResult
	BanInChat(ctx context.Context, chatID, userID int64, actor model.Actor, reason string) model.ModerationResult
	Warn(ctx context.Context, input moderation.WarnInput) model.ModerationResult
	Trust(ctx context.Context, userID int64, actor model.Actor, trusted bool) model.ModerationResult
}

// Messenger updates the chat surface after a resolution. All of its failures
// are non-fatal to the state transition itself.
type Messenger interface {
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
	SendPhotoURL(ctx context.Context, chatID int64, photoURL, caption string) error
}

// AssetDrawer supplies a random celebration media URL when the queue drains.
type AssetDrawer interface {
	Draw(ctx context.Context) (string, error)
}

type Config struct {
	TempBanDuration time.Duration
}

type Service struct {
	cases    CaseStore
	contexts ContextStore
	mod      Moderator
	msgr     Messenger
	assets   AssetDrawer
	cfg      Config
	logger   *zap.Logger
}

// NewService wires the review state machine. assets may be nil when the
// celebration pool is not configured.
func NewService(
	cases CaseStore,
	contexts ContextStore,
	mod Moderator,
	msgr Messenger,
	assets AssetDrawer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.TempBanDuration <= 0 {
		cfg.TempBanDuration = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cases:    cases,
		contexts: contexts,
		mod:      mod,
		msgr:     msgr,
		assets:   assets,
		cfg:      cfg,
		logger:   logger,
	}
}

// Choice is one keyboard option offered to a reviewer. Data is an opaque
// callback payload produced by FormatCallback.
type Choice struct {
	Label string
	Data  string
}

// OpenCase records a new pending case and mints the callback context the
// review keyboard will point at.
func (s *Service) OpenCase(
	ctx context.Context,
	kind enums.CaseKind,
	chatID, userID int64,
	messageID *int64,
) (model.ReviewCase, []Choice, error) {
	rc, err := s.cases.Create(ctx, kind, chatID, userID, messageID)
	if err != nil {
		return model.ReviewCase{}, nil, fmt.Errorf("open review case: %w", err)
	}

	cc := model.CallbackContext{
		ContextID: uuid.NewString(),
		CaseID:    rc.ID,
		Kind:      kind,
		ChatID:    chatID,
		UserID:    userID,
	}
	if messageID != nil {
		cc.MessageID = *messageID
	}
	if err := s.contexts.Put(ctx, cc); err != nil {
		return model.ReviewCase{}, nil, fmt.Errorf("store callback context: %w", err)
	}

	return rc, choicesFor(kind, cc.ContextID), nil
}

func choicesFor(kind enums.CaseKind, contextID string) []Choice {
	switch kind {
	case enums.CaseKindContentReport:
		return []Choice{
			{Label: "Spam, ban", Data: FormatCallback(contextID, int(enums.ReportActionSpam))},
			{Label: "Warn", Data: FormatCallback(contextID, int(enums.ReportActionWarn))},
			{Label: "Temp ban", Data: FormatCallback(contextID, int(enums.ReportActionTempBan))},
			{Label: "Dismiss", Data: FormatCallback(contextID, int(enums.ReportActionDismiss))},
		}
	case enums.CaseKindImpersonationAlert:
		return []Choice{
			{Label: "Confirm scam", Data: FormatCallback(contextID, int(enums.ImpersonationActionConfirmScam))},
			{Label: "False positive", Data: FormatCallback(contextID, int(enums.ImpersonationActionFalsePositive))},
			{Label: "Whitelist", Data: FormatCallback(contextID, int(enums.ImpersonationActionWhitelist))},
		}
	case enums.CaseKindExamFailure:
		return []Choice{
			{Label: "Approve", Data: FormatCallback(contextID, int(enums.ExamActionApprove))},
			{Label: "Deny", Data: FormatCallback(contextID, int(enums.ExamActionDeny))},
			{Label: "Deny and ban", Data: FormatCallback(contextID, int(enums.ExamActionDenyAndBan))},
		}
	default:
		return nil
	}
}

// CallbackInput carries one inbound button press. ChatID and MessageID locate
// the keyboard message itself, which may live in a different chat than the
// reported content.
type CallbackInput struct {
	Data      string
	ChatID    int64
	MessageID int
	Reviewer  model.Actor
}

// Feedback is what the transport shows the pressing operator. An empty Text
// means the press was ignored (malformed or forged payload).
type Feedback struct {
	Text  string
	Alert bool
}

// outcome is the result of one kind-specific handler run, before the status
// compare-and-set is attempted.
type outcome struct {
	status        enums.CaseStatus
	action        string
	notes         string
	deleteFlagged bool
	replyText     string
}

// HandleCallback drives a single case resolution attempt:
// resolve context, re-check Pending, run the outcome handler, then take the
// compare-and-set write. The context is deleted whenever the case is found
// terminal, whether this press resolved it or lost the race.
func (s *Service) HandleCallback(ctx context.Context, input CallbackInput) Feedback {
	contextID, code, err := ParseCallback(input.Data)
	if err != nil {
		s.logger.Warn("ignoring malformed review callback", zap.String("data", input.Data))
		return Feedback{}
	}

	cc, err := s.contexts.GetByID(ctx, contextID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrContextNotFound) {
			return Feedback{Text: "This review button has expired.", Alert: true}
		}
		s.logger.Error("callback context lookup failed", zap.String("context_id", contextID), zap.Error(err))
		return Feedback{Text: "Temporary error, try again.", Alert: true}
	}

	rc, err := s.cases.GetByID(ctx, cc.CaseID)
	if err != nil {
		s.logger.Error("review case lookup failed", zap.Int64("case_id", cc.CaseID), zap.Error(err))
		return Feedback{Text: "Temporary error, try again.", Alert: true}
	}
	if rc.Status != enums.CaseStatusPending {
		s.deleteContext(ctx, contextID)
		return alreadyHandled(rc)
	}

	out, ok, err := s.runOutcome(ctx, cc, rc, code, input.Reviewer)
	if !ok {
		s.logger.Warn("review callback carries out-of-range action code",
			zap.Int64("case_id", rc.ID),
			zap.String("kind", string(rc.Kind)),
			zap.Int("code", code))
		return Feedback{}
	}
	if err != nil {
		s.logger.Error("review outcome handler failed",
			zap.Int64("case_id", rc.ID),
			zap.String("action", out.action),
			zap.Error(err))
		return Feedback{Text: fmt.Sprintf("Action failed: %s", err), Alert: true}
	}

	won, err := s.cases.TryUpdateStatus(ctx, rc.ID, out.status, input.Reviewer.Label(), out.action, out.notes)
	if err != nil {
		s.logger.Error("review status update failed", zap.Int64("case_id", rc.ID), zap.Error(err))
		return Feedback{Text: "Temporary error, try again.", Alert: true}
	}
	if !won {
		s.deleteContext(ctx, contextID)
		resolved, ferr := s.cases.GetByID(ctx, cc.CaseID)
		if ferr != nil {
			s.logger.Error("re-fetch after lost race failed", zap.Int64("case_id", cc.CaseID), zap.Error(ferr))
			return Feedback{Text: "Already handled by another reviewer.", Alert: true}
		}
		return alreadyHandled(resolved)
	}

	s.deleteContext(ctx, contextID)
	summary := fmt.Sprintf("Case #%d (%s): %s by %s", rc.ID, rc.Kind, out.action, input.Reviewer.Label())
	if err := s.msgr.EditMessageText(ctx, input.ChatID, input.MessageID, summary); err != nil {
		s.logger.Warn("failed to update review message", zap.Int64("case_id", rc.ID), zap.Error(err))
	}
	s.cleanup(ctx, cc, out)
	s.maybeCelebrate(ctx, input.ChatID)

	return Feedback{Text: fmt.Sprintf("Done: %s", out.action)}
}

// runOutcome dispatches on the case kind. The bool result reports whether the
// raw action code was valid for that kind at all; invalid codes are rejected
// before any side effect.
func (s *Service) runOutcome(
	ctx context.Context,
	cc model.CallbackContext,
	rc model.ReviewCase,
	code int,
	reviewer model.Actor,
) (outcome, bool, error) {
	switch rc.Kind {
	case enums.CaseKindContentReport:
		action, ok := enums.ParseReportAction(code)
		if !ok {
			return outcome{}, false, nil
		}
		return s.runReportOutcome(ctx, cc, rc, action, reviewer)
	case enums.CaseKindImpersonationAlert:
		action, ok := enums.ParseImpersonationAction(code)
		if !ok {
			return outcome{}, false, nil
		}
		return s.runImpersonationOutcome(ctx, cc, rc, action, reviewer)
	case enums.CaseKindExamFailure:
		action, ok := enums.ParseExamAction(code)
		if !ok {
			return outcome{}, false, nil
		}
		return s.runExamOutcome(ctx, cc, rc, action, reviewer)
	default:
		return outcome{}, false, nil
	}
}

func (s *Service) runReportOutcome(
	ctx context.Context,
	cc model.CallbackContext,
	rc model.ReviewCase,
	action enums.ReportAction,
	reviewer model.Actor,
) (outcome, bool, error) {
	out := outcome{status: enums.CaseStatusReviewed, action: action.String()}
	reason := fmt.Sprintf("report #%d", rc.ID)

	switch action {
	case enums.ReportActionSpam:
		res := s.mod.Ban(ctx, cc.UserID, reviewer, "spam, "+reason, nil)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
		out.notes = fmt.Sprintf("banned in %d chats, %d failed", res.ChatsAffected, res.ChatsFailed)
		out.deleteFlagged = true
	case enums.ReportActionWarn:
		res := s.mod.Warn(ctx, moderation.WarnInput{
			UserID:    cc.UserID,
			Actor:     reviewer,
			Reason:    reason,
			ChatID:    cc.ChatID,
			MessageID: rc.MessageID,
		})
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
		out.notes = fmt.Sprintf("active warnings: %d", res.WarningCount)
	case enums.ReportActionTempBan:
		res := s.mod.TempBan(ctx, cc.UserID, reviewer, s.cfg.TempBanDuration, "", nil)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
		if res.ExpiresAt != nil {
			out.notes = "until " + res.ExpiresAt.UTC().Format(time.RFC3339)
		}
	case enums.ReportActionDismiss:
		out.status = enums.CaseStatusDismissed
		out.replyText = "Report reviewed and dismissed."
	}

	return out, true, nil
}

func (s *Service) runImpersonationOutcome(
	ctx context.Context,
	cc model.CallbackContext,
	rc model.ReviewCase,
	action enums.ImpersonationAction,
	reviewer model.Actor,
) (outcome, bool, error) {
	out := outcome{status: enums.CaseStatusReviewed, action: action.String()}

	switch action {
	case enums.ImpersonationActionConfirmScam:
		res := s.mod.Ban(ctx, cc.UserID, reviewer, fmt.Sprintf("impersonation, case #%d", rc.ID), nil)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
		out.notes = fmt.Sprintf("banned in %d chats, %d failed", res.ChatsAffected, res.ChatsFailed)
		out.deleteFlagged = true
	case enums.ImpersonationActionFalsePositive:
		out.status = enums.CaseStatusDismissed
	case enums.ImpersonationActionWhitelist:
		res := s.mod.Trust(ctx, cc.UserID, reviewer, true)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
	}

	return out, true, nil
}

func (s *Service) runExamOutcome(
	ctx context.Context,
	cc model.CallbackContext,
	rc model.ReviewCase,
	action enums.ExamAction,
	reviewer model.Actor,
) (outcome, bool, error) {
	out := outcome{status: enums.CaseStatusReviewed, action: action.String()}
	reason := fmt.Sprintf("entry exam, case #%d", rc.ID)

	switch action {
	case enums.ExamActionApprove:
		res := s.mod.Trust(ctx, cc.UserID, reviewer, true)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
	case enums.ExamActionDeny:
		res := s.mod.BanInChat(ctx, cc.ChatID, cc.UserID, reviewer, reason)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
	case enums.ExamActionDenyAndBan:
		res := s.mod.Ban(ctx, cc.UserID, reviewer, reason, nil)
		if !res.Success {
			return out, true, errors.New(res.ErrorMessage)
		}
		out.notes = fmt.Sprintf("banned in %d chats, %d failed", res.ChatsAffected, res.ChatsFailed)
	}

	return out, true, nil
}

// cleanup handles the per-action chat side effects after a won transition.
// Failures here never undo the resolution.
func (s *Service) cleanup(ctx context.Context, cc model.CallbackContext, out outcome) {
	if cc.MessageID == 0 {
		return
	}

	if out.deleteFlagged {
		if err := s.msgr.DeleteMessage(ctx, cc.ChatID, int(cc.MessageID)); err != nil {
			s.logger.Warn("failed to delete flagged message",
				zap.Int64("chat_id", cc.ChatID),
				zap.Int64("message_id", cc.MessageID),
				zap.Error(err))
		}
		return
	}

	if out.replyText != "" {
		if err := s.msgr.SendReply(ctx, cc.ChatID, int(cc.MessageID), out.replyText); err != nil {
			s.logger.Warn("failed to reply to reported message",
				zap.Int64("chat_id", cc.ChatID),
				zap.Error(err))
		}
	}
}

// maybeCelebrate posts a random media asset when the last pending case has
// just been cleared.
func (s *Service) maybeCelebrate(ctx context.Context, chatID int64) {
	if s.assets == nil {
		return
	}

	pending, err := s.cases.CountPending(ctx)
	if err != nil {
		s.logger.Warn("pending case count failed", zap.Error(err))
		return
	}
	if pending != 0 {
		return
	}

	url, err := s.assets.Draw(ctx)
	if err != nil {
		s.logger.Debug("no celebration asset drawn", zap.Error(err))
		return
	}
	if err := s.msgr.SendPhotoURL(ctx, chatID, url, "Queue is clear!"); err != nil {
		s.logger.Warn("failed to send celebration", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *Service) deleteContext(ctx context.Context, contextID string) {
	if err := s.contexts.Delete(ctx, contextID); err != nil {
		s.logger.Warn("failed to delete callback context", zap.String("context_id", contextID), zap.Error(err))
	}
}

func alreadyHandled(rc model.ReviewCase) Feedback {
	when := "unknown time"
	if rc.ReviewedAt != nil {
		when = rc.ReviewedAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	by := rc.ReviewedBy
	if by == "" {
		by = "another reviewer"
	}

	return Feedback{
		Text:  fmt.Sprintf("Already handled by %s (%s) at %s", by, rc.ActionTaken, when),
		Alert: true,
	}
}
