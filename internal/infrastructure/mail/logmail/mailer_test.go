package logmail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/kirillkom/termination-portal/internal/core/ports"
)

func TestSendInvitationLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	m := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	id, err := m.SendInvitation(context.Background(), ports.Invitation{
		CaseID:      "case-1",
		CaseNumber:  "TC-01",
		ClientEmail: "anna@example.com",
		PortalURL:   "https://portal.example.com/p/tok",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(id, "log-") {
		t.Fatalf("unexpected id %q", id)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "mail_logged" || entry["message_id"] != id || entry["kind"] != "invitation" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestSendReminderRequiresRecipient(t *testing.T) {
	m := New(nil)
	if _, err := m.SendReminder(context.Background(), ports.Invitation{CaseNumber: "TC-01"}); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
}
