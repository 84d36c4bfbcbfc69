package models

import "testing"

func TestContext_TruncatePreservesSystemMessage(t *testing.T) {
	c := NewContext("you are a helpful agent")
	for i := 0; i < 5; i++ {
		c.Append(ContextMessage{Role: RoleUser, Content: "msg"})
	}

	c.Truncate(3)

	if len(c.Messages) != 3 {
		t.Fatalf("expected 3 messages after truncate, got %d", len(c.Messages))
	}
	if c.Messages[0].Role != RoleSystem {
		t.Fatalf("truncate must never drop the leading system message, got role %q", c.Messages[0].Role)
	}
}

func TestContext_TruncateWithoutSystemMessage(t *testing.T) {
	c := &Context{}
	for i := 0; i < 5; i++ {
		c.Append(ContextMessage{Role: RoleUser, Content: "msg"})
	}

	c.Truncate(2)

	if len(c.Messages) != 2 {
		t.Fatalf("expected 2 messages after truncate, got %d", len(c.Messages))
	}
}

func TestContext_TruncateNoop(t *testing.T) {
	c := NewContext("sys")
	c.Append(ContextMessage{Role: RoleUser, Content: "hi"})
	c.Truncate(10)
	if len(c.Messages) != 2 {
		t.Fatalf("truncate with a larger budget than len(Messages) must be a no-op, got %d", len(c.Messages))
	}
}

func TestContext_CloneIsIndependent(t *testing.T) {
	c := NewContext("sys")
	c.Append(ContextMessage{Role: RoleUser, Content: "hi"})
	clone := c.Clone()
	clone.Append(ContextMessage{Role: RoleAssistant, Content: "ho"})

	if len(c.Messages) != 2 {
		t.Fatalf("mutating the clone must not affect the original, original has %d messages", len(c.Messages))
	}
	if len(clone.Messages) != 3 {
		t.Fatalf("expected 3 messages in clone, got %d", len(clone.Messages))
	}
}

func TestContext_HasSystem(t *testing.T) {
	withSys := NewContext("sys")
	if !withSys.HasSystem() {
		t.Fatalf("expected HasSystem true when constructed with a system prompt")
	}
	bare := &Context{}
	if bare.HasSystem() {
		t.Fatalf("expected HasSystem false for an empty context")
	}
}
