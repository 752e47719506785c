package reviews

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivankudzin/guardbot/internal/domain/enums"
	"github.com/ivankudzin/guardbot/internal/domain/model"
	redisrepo "github.com/ivankudzin/guardbot/internal/repo/redis"
	"github.com/ivankudzin/guardbot/internal/services/moderation"
)

type fakeCaseStore struct {
	mu     sync.Mutex
	nextID int64
	cases  map[int64]model.ReviewCase

	casWins int
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{nextID: 1, cases: make(map[int64]model.ReviewCase)}
}

func (f *fakeCaseStore) put(rc model.ReviewCase) model.ReviewCase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rc.ID == 0 {
		rc.ID = f.nextID
		f.nextID++
	}
	f.cases[rc.ID] = rc
	return rc
}

func (f *fakeCaseStore) Create(_ context.Context, kind enums.CaseKind, chatID, userID int64, messageID *int64) (model.ReviewCase, error) {
	return f.put(model.ReviewCase{
		Kind:      kind,
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Status:    enums.CaseStatusPending,
		CreatedAt: time.Now(),
	}), nil
}

func (f *fakeCaseStore) GetByID(_ context.Context, caseID int64) (model.ReviewCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.cases[caseID]
	if !ok {
		return model.ReviewCase{}, context.Canceled
	}
	return rc, nil
}

func (f *fakeCaseStore) TryUpdateStatus(_ context.Context, caseID int64, status enums.CaseStatus, reviewedBy, actionTaken, notes string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.cases[caseID]
	if !ok || rc.Status != enums.CaseStatusPending {
		return false, nil
	}
	now := time.Now()
	rc.Status = status
	rc.ReviewedBy = reviewedBy
	rc.ReviewedAt = &now
	rc.ActionTaken = actionTaken
	rc.AdminNotes = notes
	f.cases[caseID] = rc
	f.casWins++
	return true, nil
}

func (f *fakeCaseStore) CountPending(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rc := range f.cases {
		if rc.Status == enums.CaseStatusPending {
			count++
		}
	}
	return count, nil
}

type fakeContextStore struct {
	mu       sync.Mutex
	contexts map[string]model.CallbackContext
	deleted  []string

	// afterGet, when set, runs after each lookup outside the lock.
	afterGet func()
}

func newFakeContextStore() *fakeContextStore {
	return &fakeContextStore{contexts: make(map[string]model.CallbackContext)}
}

func (f *fakeContextStore) Put(_ context.Context, cc model.CallbackContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[cc.ContextID] = cc
	return nil
}

func (f *fakeContextStore) GetByID(_ context.Context, contextID string) (model.CallbackContext, error) {
	f.mu.Lock()
	cc, ok := f.contexts[contextID]
	f.mu.Unlock()
	if f.afterGet != nil {
		f.afterGet()
	}
	if !ok {
		return model.CallbackContext{}, redisrepo.ErrContextNotFound
	}
	return cc, nil
}

func (f *fakeContextStore) Delete(_ context.Context, contextID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.contexts, contextID)
	f.deleted = append(f.deleted, contextID)
	return nil
}

func (f *fakeContextStore) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

type fakeModerator struct {
	mu    sync.Mutex
	calls []string

	fail bool
}

func (f *fakeModerator) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeModerator) result() model.ModerationResult {
	if f.fail {
		return model.FailedResult(context.DeadlineExceeded)
	}
	return model.ModerationResult{Success: true, ChatsAffected: 3}
}

func (f *fakeModerator) Ban(_ context.Context, _ int64, _ model.Actor, _ string, _ *int64) model.ModerationResult {
	f.record("ban")
	return f.result()
}

func (f *fakeModerator) TempBan(_ context.Context, _ int64, _ model.Actor, d time.Duration, _ string, _ *int64) model.ModerationResult {
	f.record("tempban")
	res := f.result()
	if res.Success {
		exp := time.Now().Add(d)
		res.ExpiresAt = &exp
	}
	return res
}

func (f *fakeModerator) BanInChat(_ context.Context, _, _ int64, _ model.Actor, _ string) model.ModerationResult {
	f.record("baninchat")
	return f.result()
}

func (f *fakeModerator) Warn(_ context.Context, _ moderation.WarnInput) model.ModerationResult {
	f.record("warn")
	res := f.result()
	if res.Success {
		res.WarningCount = 2
	}
	return res
}

func (f *fakeModerator) Trust(_ context.Context, _ int64, _ model.Actor, _ bool) model.ModerationResult {
	f.record("trust")
	return f.result()
}

func (f *fakeModerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMessenger struct {
	mu       sync.Mutex
	edits    []string
	deletes  []int64
	replies  []string
	photoURL string
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, int64(messageID))
	return nil
}

func (f *fakeMessenger) SendReply(_ context.Context, _ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) SendPhotoURL(_ context.Context, _ int64, photoURL, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoURL = photoURL
	return nil
}

type fakeDrawer struct {
	url string
}

func (f *fakeDrawer) Draw(_ context.Context) (string, error) {
	return f.url, nil
}

func newTestService(cases *fakeCaseStore, contexts *fakeContextStore, mod *fakeModerator, msgr *fakeMessenger, drawer AssetDrawer) *Service {
	return NewService(cases, contexts, mod, msgr, drawer, Config{TempBanDuration: time.Hour}, nil)
}

func pendingReportCase(t *testing.T, cases *fakeCaseStore, contexts *fakeContextStore) (model.ReviewCase, string) {
	t.Helper()
	msgID := int64(555)
	rc := cases.put(model.ReviewCase{
		Kind:      enums.CaseKindContentReport,
		ChatID:    -100,
		UserID:    42,
		MessageID: &msgID,
		Status:    enums.CaseStatusPending,
	})
	cc := model.CallbackContext{
		ContextID: "ctx-1",
		CaseID:    rc.ID,
		Kind:      rc.Kind,
		ChatID:    rc.ChatID,
		UserID:    rc.UserID,
		MessageID: msgID,
	}
	if err := contexts.Put(context.Background(), cc); err != nil {
		t.Fatalf("put context: %v", err)
	}
	return rc, cc.ContextID
}

func TestHandleCallbackExpiredContext(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	fb := svc.HandleCallback(context.Background(), CallbackInput{
		Data:     FormatCallback("gone", int(enums.ReportActionSpam)),
		Reviewer: model.ChatMemberActor(1, "op"),
	})

	if !strings.Contains(fb.Text, "expired") {
		t.Fatalf("expected expired feedback, got %q", fb.Text)
	}
	if mod.callCount() != 0 {
		t.Fatalf("expected no moderation calls, got %d", mod.callCount())
	}
}

func TestHandleCallbackAlreadyReviewed(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	reviewedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rc := cases.put(model.ReviewCase{
		Kind:        enums.CaseKindContentReport,
		ChatID:      -100,
		UserID:      42,
		Status:      enums.CaseStatusReviewed,
		ReviewedBy:  "alice",
		ReviewedAt:  &reviewedAt,
		ActionTaken: "SPAM",
	})
	cc := model.CallbackContext{ContextID: "ctx-stale", CaseID: rc.ID, Kind: rc.Kind, ChatID: rc.ChatID, UserID: rc.UserID}
	if err := contexts.Put(context.Background(), cc); err != nil {
		t.Fatalf("put context: %v", err)
	}

	fb := svc.HandleCallback(context.Background(), CallbackInput{
		Data:     FormatCallback("ctx-stale", int(enums.ReportActionWarn)),
		Reviewer: model.ChatMemberActor(2, "bob"),
	})

	if !strings.Contains(fb.Text, "alice") || !strings.Contains(fb.Text, "SPAM") {
		t.Fatalf("expected already-handled feedback naming the first reviewer, got %q", fb.Text)
	}
	if mod.callCount() != 0 {
		t.Fatalf("expected zero moderation calls, got %d", mod.callCount())
	}
	if contexts.stored() != 0 {
		t.Fatalf("expected callback context to be deleted")
	}
}

func TestHandleCallbackSpamResolvesAndCleansUp(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	rc, contextID := pendingReportCase(t, cases, contexts)

	fb := svc.HandleCallback(context.Background(), CallbackInput{
		Data:      FormatCallback(contextID, int(enums.ReportActionSpam)),
		ChatID:    -200,
		MessageID: 17,
		Reviewer:  model.ChatMemberActor(2, "bob"),
	})

	if fb.Text == "" || fb.Alert {
		t.Fatalf("expected plain success feedback, got %+v", fb)
	}
	resolved, _ := cases.GetByID(context.Background(), rc.ID)
	if resolved.Status != enums.CaseStatusReviewed {
		t.Fatalf("expected REVIEWED status, got %s", resolved.Status)
	}
	if resolved.ReviewedBy != "bob" || resolved.ActionTaken != "SPAM" {
		t.Fatalf("unexpected resolution record: %+v", resolved)
	}
	if got := mod.callCount(); got != 1 {
		t.Fatalf("expected exactly one moderation call, got %d", got)
	}
	if len(msgr.edits) != 1 {
		t.Fatalf("expected the keyboard message to be edited once, got %d edits", len(msgr.edits))
	}
	if len(msgr.deletes) != 1 || msgr.deletes[0] != 555 {
		t.Fatalf("expected the flagged message 555 to be deleted, got %v", msgr.deletes)
	}
	if contexts.stored() != 0 {
		t.Fatalf("expected callback context to be deleted")
	}
}

func TestHandleCallbackDismissRepliesInsteadOfDeleting(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	rc, contextID := pendingReportCase(t, cases, contexts)

	svc.HandleCallback(context.Background(), CallbackInput{
		Data:      FormatCallback(contextID, int(enums.ReportActionDismiss)),
		ChatID:    -200,
		MessageID: 17,
		Reviewer:  model.ChatMemberActor(2, "bob"),
	})

	resolved, _ := cases.GetByID(context.Background(), rc.ID)
	if resolved.Status != enums.CaseStatusDismissed {
		t.Fatalf("expected DISMISSED status, got %s", resolved.Status)
	}
	if mod.callCount() != 0 {
		t.Fatalf("dismissal must not call moderation, got %d calls", mod.callCount())
	}
	if len(msgr.deletes) != 0 {
		t.Fatalf("dismissal must not delete the reported message")
	}
	if len(msgr.replies) != 1 {
		t.Fatalf("expected one reply to the reported message, got %d", len(msgr.replies))
	}
}

func TestHandleCallbackRejectsOutOfRangeCode(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	rc, contextID := pendingReportCase(t, cases, contexts)

	fb := svc.HandleCallback(context.Background(), CallbackInput{
		Data:     FormatCallback(contextID, 99),
		Reviewer: model.ChatMemberActor(2, "bob"),
	})

	if fb.Text != "" {
		t.Fatalf("forged codes must be silently ignored, got %q", fb.Text)
	}
	if mod.callCount() != 0 {
		t.Fatalf("expected no side effects, got %d moderation calls", mod.callCount())
	}
	still, _ := cases.GetByID(context.Background(), rc.ID)
	if still.Status != enums.CaseStatusPending {
		t.Fatalf("case must remain PENDING, got %s", still.Status)
	}
}

func TestHandleCallbackFailedOutcomeKeepsCasePending(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{fail: true}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	rc, contextID := pendingReportCase(t, cases, contexts)

	fb := svc.HandleCallback(context.Background(), CallbackInput{
		Data:     FormatCallback(contextID, int(enums.ReportActionSpam)),
		Reviewer: model.ChatMemberActor(2, "bob"),
	})

	if !fb.Alert || !strings.Contains(fb.Text, "failed") {
		t.Fatalf("expected a failure alert, got %+v", fb)
	}
	still, _ := cases.GetByID(context.Background(), rc.ID)
	if still.Status != enums.CaseStatusPending {
		t.Fatalf("case must remain PENDING after a failed outcome, got %s", still.Status)
	}
	if contexts.stored() != 1 {
		t.Fatalf("context must survive a failed outcome so the reviewer can retry")
	}
}

func TestConcurrentResolutionExactlyOneWins(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	_, contextID := pendingReportCase(t, cases, contexts)

	// Hold both handlers at the context fetch until each has a live context in
	// hand, so both reach the status transition and the store decides the winner.
	var gate sync.WaitGroup
	gate.Add(2)
	contexts.afterGet = func() {
		gate.Done()
		gate.Wait()
	}

	feedbacks := make([]Feedback, 2)
	var wg sync.WaitGroup
	for i, reviewer := range []model.Actor{
		model.ChatMemberActor(1, "alice"),
		model.ChatMemberActor(2, "bob"),
	} {
		wg.Add(1)
		go func(slot int, who model.Actor) {
			defer wg.Done()
			feedbacks[slot] = svc.HandleCallback(context.Background(), CallbackInput{
				Data:      FormatCallback(contextID, int(enums.ReportActionSpam)),
				ChatID:    -200,
				MessageID: 17,
				Reviewer:  who,
			})
		}(i, reviewer)
	}
	wg.Wait()

	if cases.casWins != 1 {
		t.Fatalf("expected exactly one winning status transition, got %d", cases.casWins)
	}

	wins, losses := 0, 0
	for _, fb := range feedbacks {
		switch {
		case strings.HasPrefix(fb.Text, "Done"):
			wins++
		case strings.Contains(fb.Text, "Already handled"):
			losses++
		default:
			t.Fatalf("unexpected feedback %q", fb.Text)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", wins, losses)
	}
	if contexts.stored() != 0 {
		t.Fatalf("callback context must be deleted win or lose")
	}
}

func TestOpenCaseMintsContextAndChoices(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	svc := newTestService(cases, contexts, &fakeModerator{}, &fakeMessenger{}, nil)

	msgID := int64(77)
	rc, choices, err := svc.OpenCase(context.Background(), enums.CaseKindContentReport, -100, 42, &msgID)
	if err != nil {
		t.Fatalf("open case: %v", err)
	}
	if rc.Status != enums.CaseStatusPending {
		t.Fatalf("new case must be PENDING, got %s", rc.Status)
	}
	if len(choices) != 4 {
		t.Fatalf("expected 4 report choices, got %d", len(choices))
	}
	if contexts.stored() != 1 {
		t.Fatalf("expected one stored callback context")
	}
	for _, c := range choices {
		contextID, code, perr := ParseCallback(c.Data)
		if perr != nil {
			t.Fatalf("choice %q does not parse back: %v", c.Data, perr)
		}
		cc, gerr := contexts.GetByID(context.Background(), contextID)
		if gerr != nil {
			t.Fatalf("choice points at missing context %q", contextID)
		}
		if cc.CaseID != rc.ID {
			t.Fatalf("context case id = %d, want %d", cc.CaseID, rc.ID)
		}
		if _, ok := enums.ParseReportAction(code); !ok {
			t.Fatalf("choice carries invalid action code %d", code)
		}
	}
}

func TestLegacyReportPrefixStillAccepted(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	svc := newTestService(cases, contexts, mod, msgr, nil)

	rc, contextID := pendingReportCase(t, cases, contexts)

	legacy := "rpt:" + contextID + ":4"
	svc.HandleCallback(context.Background(), CallbackInput{
		Data:      legacy,
		ChatID:    -200,
		MessageID: 17,
		Reviewer:  model.ChatMemberActor(2, "bob"),
	})

	resolved, _ := cases.GetByID(context.Background(), rc.ID)
	if resolved.Status != enums.CaseStatusDismissed {
		t.Fatalf("legacy payload must drive the same state machine, got %s", resolved.Status)
	}
}

func TestResolutionCelebratesWhenQueueDrains(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	drawer := &fakeDrawer{url: "https://cdn.example/party.gif"}
	svc := newTestService(cases, contexts, mod, msgr, drawer)

	_, contextID := pendingReportCase(t, cases, contexts)

	svc.HandleCallback(context.Background(), CallbackInput{
		Data:      FormatCallback(contextID, int(enums.ReportActionDismiss)),
		ChatID:    -200,
		MessageID: 17,
		Reviewer:  model.ChatMemberActor(2, "bob"),
	})

	if msgr.photoURL != drawer.url {
		t.Fatalf("expected celebration photo %q, got %q", drawer.url, msgr.photoURL)
	}
}

func TestNoCelebrationWhileCasesRemain(t *testing.T) {
	cases := newFakeCaseStore()
	contexts := newFakeContextStore()
	mod := &fakeModerator{}
	msgr := &fakeMessenger{}
	drawer := &fakeDrawer{url: "https://cdn.example/party.gif"}
	svc := newTestService(cases, contexts, mod, msgr, drawer)

	_, contextID := pendingReportCase(t, cases, contexts)
	cases.put(model.ReviewCase{Kind: enums.CaseKindExamFailure, ChatID: -1, UserID: 9, Status: enums.CaseStatusPending})

	svc.HandleCallback(context.Background(), CallbackInput{
		Data:      FormatCallback(contextID, int(enums.ReportActionDismiss)),
		ChatID:    -200,
		MessageID: 17,
		Reviewer:  model.ChatMemberActor(2, "bob"),
	})

	if msgr.photoURL != "" {
		t.Fatalf("must not celebrate while a case is still pending, got %q", msgr.photoURL)
	}
}
