package handler

import (
	"errors"
	"testing"

	"github.com/artur/tubegrab/internal/downloader"
)

type mockSubmitter struct {
	submissions []downloader.Submission
	id          string
	err         error
}

func (m *mockSubmitter) Submit(sub downloader.Submission) (string, error) {
	m.submissions = append(m.submissions, sub)
	return m.id, m.err
}

func TestDownloadHandler_CanHandle(t *testing.T) {
	handler := NewDownloadHandler(&mockSubmitter{}, "telegram", nil)

	if !handler.CanHandle(textUpdate("https://youtu.be/abc", 1)) {
		t.Error("Expected link to be handled")
	}
	if handler.CanHandle(textUpdate("no link here", 1)) {
		t.Error("Expected plain text to be ignored")
	}
	if handler.CanHandle(commandUpdate("/start https://youtu.be/abc")) {
		t.Error("Expected commands to be ignored")
	}
}

func TestDownloadHandler_Submits(t *testing.T) {
	submitter := &mockSubmitter{id: "abc"}
	sender := &mockSender{}
	handler := NewDownloadHandler(submitter, "telegram", nil)

	handler.Handle(sender, textUpdate("grab https://youtu.be/abc now", 1))

	if len(submitter.submissions) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(submitter.submissions))
	}
	sub := submitter.submissions[0]
	if sub.URL != "https://youtu.be/abc" || sub.Folder != "telegram" || sub.Source != "telegram" || sub.ReplyChatID != 100 {
		t.Errorf("Unexpected submission: %+v", sub)
	}

	texts := sender.Texts()
	if len(texts) != 1 || texts[0] != "⏳ Download started: abc" {
		t.Errorf("Unexpected replies: %v", texts)
	}

	// completion goes back to the same chat
	sub.Done(downloader.Outcome{ID: "abc", Title: "Clip", Folder: "telegram"})
	texts = sender.Texts()
	if len(texts) != 2 || texts[1] != "✅ Downloaded: Clip (folder telegram)" {
		t.Errorf("Unexpected completion reply: %v", texts)
	}
	if sender.sent[1].ChatID != 100 {
		t.Errorf("Completion sent to chat %d, want 100", sender.sent[1].ChatID)
	}
}

func TestDownloadHandler_AllowedUsers(t *testing.T) {
	submitter := &mockSubmitter{id: "abc"}
	sender := &mockSender{}
	handler := NewDownloadHandler(submitter, "telegram", []int64{7})

	handler.Handle(sender, textUpdate("https://youtu.be/abc", 8))
	if len(submitter.submissions) != 0 {
		t.Error("Stranger should not be able to submit")
	}
	if texts := sender.Texts(); len(texts) != 1 || texts[0] != "⛔ You are not allowed to download here." {
		t.Errorf("Unexpected replies: %v", texts)
	}

	handler.Handle(sender, textUpdate("https://youtu.be/abc", 7))
	if len(submitter.submissions) != 1 {
		t.Error("Allowed user should be able to submit")
	}
}

func TestDownloadHandler_Rejected(t *testing.T) {
	submitter := &mockSubmitter{err: errors.New("disk full")}
	sender := &mockSender{}
	handler := NewDownloadHandler(submitter, "telegram", nil)

	handler.Handle(sender, textUpdate("https://youtu.be/abc", 1))

	if texts := sender.Texts(); len(texts) != 1 || texts[0] != "❌ Failed to start download: disk full" {
		t.Errorf("Unexpected replies: %v", texts)
	}
}
