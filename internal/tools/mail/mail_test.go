package mail

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/tools"
)

func newRegistry(t *testing.T) (*tools.Registry, *mailbox.Mailbox) {
	t.Helper()
	box := mailbox.New()
	reg := tools.NewRegistry(slog.Default())
	Register(reg, box)
	return reg, box
}

func TestSendMail_DeliversToRecipient(t *testing.T) {
	reg, box := newRegistry(t)
	ctx := WithCaller(context.Background(), "a")

	params, _ := json.Marshal(map[string]any{
		"to_agent": "p",
		"subject":  "hello",
		"body":     "hi there",
	})
	res, err := reg.Execute(ctx, "send_mail", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("send_mail reported error: %s", res.Error)
	}
	if !box.HasUnread("p") {
		t.Fatalf("expected unread mail for p")
	}
}

func TestSendMail_RequiresSubjectAndRecipient(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := WithCaller(context.Background(), "a")

	params, _ := json.Marshal(map[string]any{"body": "no subject or recipient"})
	res, err := reg.Execute(ctx, "send_mail", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected validation error, got success: %+v", res)
	}
}

func TestCheckMail_MarksReadAndOrdersByPriority(t *testing.T) {
	reg, box := newRegistry(t)
	send := func(from, subject, priority string) {
		ctx := WithCaller(context.Background(), from)
		params, _ := json.Marshal(map[string]any{
			"to_agent": "p", "subject": subject, "body": "x", "priority": priority,
		})
		if _, err := reg.Execute(ctx, "send_mail", params); err != nil {
			t.Fatalf("send_mail: %v", err)
		}
	}
	send("a", "first", "low")
	send("a", "second", "urgent")

	ctx := WithCaller(context.Background(), "p")
	res, err := reg.Execute(ctx, "check_mail", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("check_mail reported error: %s", res.Error)
	}
	firstIdx := strings.Index(res.Content, `"first"`)
	secondIdx := strings.Index(res.Content, `"second"`)
	if firstIdx < 0 || secondIdx < 0 || secondIdx > firstIdx {
		t.Fatalf("expected urgent mail (second) before low-priority mail (first): %s", res.Content)
	}
	if box.HasUnread("p") {
		t.Fatalf("check_mail must mark all returned mail as read")
	}
}

func TestCheckMail_RequiresCallerInContext(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Execute(context.Background(), "check_mail", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error when no caller agent is set")
	}
}

func TestSendMailWithSwitch_CarriesSwitchHint(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := WithCaller(context.Background(), "a")
	params, _ := json.Marshal(map[string]any{
		"to_agent": "patricia",
		"subject":  "plz",
		"body":     "...",
	})
	res, err := reg.Execute(ctx, "send_mail_with_switch", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("send_mail_with_switch reported error: %s", res.Error)
	}
	if !strings.Contains(res.Content, `"_switch_to_agent":"patricia"`) {
		t.Fatalf("expected switch hint in result, got: %s", res.Content)
	}
}
