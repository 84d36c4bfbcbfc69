package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

func send(mb *Mailbox, to, subject string, p models.Priority) {
	mb.Send(&models.Mail{
		ID:        subject,
		From:      "alice",
		To:        to,
		Subject:   subject,
		Body:      "body",
		Priority:  p,
		CreatedAt: time.Now(),
	})
}

func TestMailbox_PriorityThenFIFO(t *testing.T) {
	mb := New()
	send(mb, "p", "first", models.PriorityNormal)
	send(mb, "p", "urgent-one", models.PriorityUrgent)
	send(mb, "p", "second", models.PriorityNormal)
	send(mb, "p", "urgent-two", models.PriorityUrgent)

	want := []string{"urgent-one", "urgent-two", "first", "second"}
	for _, w := range want {
		m := mb.Check("p")
		if m == nil {
			t.Fatalf("expected mail %q, got nil", w)
		}
		if m.Subject != w {
			t.Fatalf("subject = %q, want %q", m.Subject, w)
		}
	}
	if m := mb.Check("p"); m != nil {
		t.Fatalf("expected no more mail, got %q", m.Subject)
	}
}

func TestMailbox_CaseInsensitiveAgentID(t *testing.T) {
	mb := New()
	send(mb, "P", "hello", models.PriorityNormal)
	if !mb.HasUnread("p") {
		t.Fatal("expected HasUnread(\"p\") true for mail sent to \"P\"")
	}
}

func TestMailbox_ConcurrentCheckNeverDoubleDelivers(t *testing.T) {
	mb := New()
	const n = 200
	for i := 0; i < n; i++ {
		send(mb, "t", "m", models.PriorityNormal)
	}

	var mu sync.Mutex
	delivered := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				m := mb.Check("t")
				if m == nil {
					return
				}
				mu.Lock()
				if delivered[m.Seq()] {
					t.Errorf("mail seq %d delivered twice", m.Seq())
				}
				delivered[m.Seq()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(delivered) != n {
		t.Fatalf("delivered %d items, want %d", len(delivered), n)
	}
}

func TestMailbox_UnreadCountAndClear(t *testing.T) {
	mb := New()
	send(mb, "q", "a", models.PriorityLow)
	send(mb, "q", "b", models.PriorityLow)
	if got := mb.UnreadCount("q"); got != 2 {
		t.Fatalf("UnreadCount = %d, want 2", got)
	}
	mb.Check("q")
	if got := mb.UnreadCount("q"); got != 1 {
		t.Fatalf("UnreadCount after one Check = %d, want 1", got)
	}
	mb.Clear("q")
	if mb.HasUnread("q") {
		t.Fatal("expected no unread mail after Clear")
	}
	if len(mb.All("q")) != 0 {
		t.Fatal("expected empty history after Clear")
	}
}

func TestAnnotate(t *testing.T) {
	mb := New()
	if got := Annotate("hello", mb, "r"); got != "hello" {
		t.Fatalf("Annotate with empty mailbox should be a no-op, got %q", got)
	}
	send(mb, "r", "a", models.PriorityNormal)
	got := Annotate("hello", mb, "r")
	want := "hello\n\n[You have 1 unread mail. Use check_mail to read it.]"
	if got != want {
		t.Fatalf("Annotate = %q, want %q", got, want)
	}
	if !mb.HasUnread("r") {
		t.Fatal("Annotate must not consume unread mail")
	}
}
