// Package mail implements the three in-core mail tools every agent
// instance sees regardless of its tool filters (spec §4.2, §4.8):
// check_mail, send_mail, and send_mail_with_switch. These are the only
// tools this runtime builds itself rather than treating as an out-of-scope
// leaf capability (spec §1); the Mailbox and Agent-Switch Handler are core
// components, not plugin-style tools.
//
// Grounded on the teacher's internal/tools/message.Tool shape (name,
// Description, Schema, Execute over a shared backing store) applied to
// internal/mailbox instead of internal/channels.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Register declares the three mail tools against reg, bound to box and the
// calling agent's id (resolved at Execute time from CallerAgentID in ctx,
// since one Tool instance is shared by every agent per spec §3 "Tools are
// shared singletons; invocation is stateless per call").
func Register(reg *tools.Registry, box *mailbox.Mailbox) {
	reg.Declare(tools.Spec{
		Name:     "check_mail",
		Category: "mail",
		Sets:     []string{"mail"},
		New:      func() (tools.Tool, error) { return &checkMailTool{box: box}, nil },
	})
	reg.Declare(tools.Spec{
		Name:     "send_mail",
		Category: "mail",
		Sets:     []string{"mail"},
		New:      func() (tools.Tool, error) { return &sendMailTool{box: box}, nil },
	})
	reg.Declare(tools.Spec{
		Name:     "send_mail_with_switch",
		Category: "mail",
		Sets:     []string{"mail"},
		New:      func() (tools.Tool, error) { return &sendMailSwitchTool{box: box}, nil },
	})
}

// callerKey is the context key agentrt stamps with the invoking agent's id
// before calling Registry.Execute, so these singleton tools know whose
// mailbox to check without per-agent instantiation.
type callerKey struct{}

// WithCaller annotates ctx with the agent id executing the next tool call.
func WithCaller(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, callerKey{}, agentID)
}

func callerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

func errResult(format string, a ...any) *tools.ToolResult {
	return &tools.ToolResult{IsError: true, Error: fmt.Sprintf(format, a...)}
}

func jsonResult(v any) *tools.ToolResult {
	payload, err := json.Marshal(v)
	if err != nil {
		return errResult("marshal result: %v", err)
	}
	return &tools.ToolResult{Content: string(payload)}
}

var checkMailSchema = json.RawMessage(`{
  "type": "object",
  "properties": {}
}`)

type checkMailTool struct{ box *mailbox.Mailbox }

func (t *checkMailTool) Name() string            { return "check_mail" }
func (t *checkMailTool) Category() string        { return "mail" }
func (t *checkMailTool) Tags() []string          { return nil }
func (t *checkMailTool) Sets() []string          { return []string{"mail"} }
func (t *checkMailTool) Schema() json.RawMessage { return checkMailSchema }
func (t *checkMailTool) Description() string {
	return "Check your mailbox and mark all unread mail as read. Returns every unread item, highest priority first."
}

func (t *checkMailTool) Execute(ctx context.Context, _ json.RawMessage) (*tools.ToolResult, error) {
	agentID := callerFrom(ctx)
	if agentID == "" {
		return errResult("check_mail: no caller agent in context"), nil
	}
	mails := t.box.CheckAll(agentID)
	return jsonResult(map[string]any{"mail": mails, "count": len(mails)}), nil
}

var sendMailSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "to_agent": {"type": "string", "description": "Recipient agent id."},
    "subject": {"type": "string"},
    "body": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]}
  },
  "required": ["to_agent", "subject", "body"]
}`)

type sendMailInput struct {
	ToAgent  string         `json:"to_agent"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sendMailTool struct{ box *mailbox.Mailbox }

func (t *sendMailTool) Name() string            { return "send_mail" }
func (t *sendMailTool) Category() string        { return "mail" }
func (t *sendMailTool) Tags() []string          { return nil }
func (t *sendMailTool) Sets() []string          { return []string{"mail"} }
func (t *sendMailTool) Schema() json.RawMessage { return sendMailSchema }
func (t *sendMailTool) Description() string {
	return "Send mail to another agent's mailbox. Does not switch control; the recipient must check_mail on its own turn."
}

func (t *sendMailTool) Execute(ctx context.Context, params json.RawMessage) (*tools.ToolResult, error) {
	from := callerFrom(ctx)
	var in sendMailInput
	if err := json.Unmarshal(params, &in); err != nil {
		return errResult("send_mail: invalid parameters: %v", err), nil
	}
	if in.ToAgent == "" || in.Subject == "" {
		return errResult("send_mail: to_agent and subject are required"), nil
	}
	priority := models.Priority(in.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}
	id := uuid.NewString()
	t.box.Send(&models.Mail{
		ID:        id,
		From:      from,
		To:        in.ToAgent,
		Subject:   in.Subject,
		Body:      in.Body,
		Priority:  priority,
		Metadata:  in.Metadata,
		CreatedAt: time.Now(),
	})
	return jsonResult(map[string]any{"id": id, "delivered_to": models.CanonicalID(in.ToAgent)}), nil
}

var sendMailSwitchSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "to_agent": {"type": "string", "description": "Agent id, full name, or first name."},
    "subject": {"type": "string"},
    "body": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]}
  },
  "required": ["to_agent", "subject", "body"]
}`)

// sendMailSwitchTool is identical to sendMailTool except for the
// `_switch_to_agent` hint its result carries (spec §3 "Tool" invariant),
// which internal/switching.Handler (via agentrt.SwitchConsult) interprets
// to suspend the caller and activate the target.
type sendMailSwitchTool struct{ box *mailbox.Mailbox }

func (t *sendMailSwitchTool) Name() string            { return "send_mail_with_switch" }
func (t *sendMailSwitchTool) Category() string        { return "mail" }
func (t *sendMailSwitchTool) Tags() []string          { return nil }
func (t *sendMailSwitchTool) Sets() []string          { return []string{"mail"} }
func (t *sendMailSwitchTool) Schema() json.RawMessage { return sendMailSwitchSchema }
func (t *sendMailSwitchTool) Description() string {
	return "Send mail to another agent and synchronously switch control to it so it can process the mail immediately."
}

func (t *sendMailSwitchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.ToolResult, error) {
	from := callerFrom(ctx)
	var in sendMailInput
	if err := json.Unmarshal(params, &in); err != nil {
		return errResult("send_mail_with_switch: invalid parameters: %v", err), nil
	}
	if in.ToAgent == "" || in.Subject == "" {
		return errResult("send_mail_with_switch: to_agent and subject are required"), nil
	}
	priority := models.Priority(in.Priority)
	if priority == "" {
		priority = models.PriorityNormal
	}
	id := uuid.NewString()
	t.box.Send(&models.Mail{
		ID:        id,
		From:      from,
		To:        in.ToAgent,
		Subject:   in.Subject,
		Body:      in.Body,
		Priority:  priority,
		Metadata:  in.Metadata,
		CreatedAt: time.Now(),
	})
	return jsonResult(map[string]any{
		"id":               id,
		"delivered_to":     models.CanonicalID(in.ToAgent),
		"_switch_to_agent": in.ToAgent,
	}), nil
}
