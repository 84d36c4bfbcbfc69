package mailbox

import "fmt"

// Annotate appends an unread-mail reminder to an agent's response text when
// its mailbox holds unread mail the agent did not just check as part of
// producing that response. It is a pure function rather than a method on
// Mailbox so it composes independently of any particular notification
// delivery path (spec.md §9 "capability composition over decorators").
//
// Ported from the original's agents/mail_notification.py: the reminder is
// informational only and never mutates mailbox state.
func Annotate(response string, box *Mailbox, agentID string) string {
	n := box.UnreadCount(agentID)
	if n == 0 {
		return response
	}
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s\n\n[You have %d unread mail%s. Use check_mail to read it.]", response, n, plural)
}
