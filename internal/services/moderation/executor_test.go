package moderation

import (
	"context"
	"errors"
	"testing"
)

func TestForEachChatCountsSumToDirectorySize(t *testing.T) {
	dir := &fakeDirectory{ids: []int64{1, 2, 3, 4, 5, 6}}
	svc := newTestService(dir, &fakeChatAPI{}, &fakeMemberStore{}, &fakeScheduler{})

	failing := map[int64]bool{2: true, 5: true}
	result, err := svc.forEachChat(context.Background(), nil, func(_ context.Context, chatID int64) error {
		if failing[chatID] {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected executor error: %v", err)
	}

	if result.SuccessCount+result.FailCount != len(dir.ids) {
		t.Fatalf("success+fail must cover every chat: %+v", result)
	}
	if result.SuccessCount != 4 || result.FailCount != 2 || result.SkippedCount != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestForEachChatContainsPerChatPanic(t *testing.T) {
	dir := &fakeDirectory{ids: []int64{1, 2, 3}}
	svc := newTestService(dir, &fakeChatAPI{}, &fakeMemberStore{}, &fakeScheduler{})

	var attempted []int64
	result, err := svc.forEachChat(context.Background(), nil, func(_ context.Context, chatID int64) error {
		attempted = append(attempted, chatID)
		if chatID == 2 {
			panic("telegram client blew up")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected executor error: %v", err)
	}

	if len(attempted) != 3 {
		t.Fatalf("a panicking chat must not stop the rest, attempted %v", attempted)
	}
	if result.SuccessCount != 2 || result.FailCount != 1 || result.SkippedCount != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestForEachChatStopsStartingCallsAfterCancel(t *testing.T) {
	dir := &fakeDirectory{ids: []int64{1, 2, 3, 4, 5}}
	svc := newTestService(dir, &fakeChatAPI{}, &fakeMemberStore{}, &fakeScheduler{})

	ctx, cancel := context.WithCancel(context.Background())
	attempted := 0
	result, err := svc.forEachChat(ctx, nil, func(_ context.Context, _ int64) error {
		attempted++
		if attempted == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected executor error: %v", err)
	}

	if attempted != 2 {
		t.Fatalf("expected no new calls after cancellation, attempted %d", attempted)
	}
	if result.SuccessCount != 2 || result.SkippedCount != 3 {
		t.Fatalf("unexpected counts after cancel: %+v", result)
	}
}
