package modelclient

import "testing"

func TestHasQuirk(t *testing.T) {
	if !HasQuirk("gpt-4-turbo", QuirkNoToolsWithStructuredOutput) {
		t.Fatal("expected gpt-4-turbo to carry the no-tools-with-structured-output quirk")
	}
	if HasQuirk("gpt-4o", QuirkNoToolsWithStructuredOutput) {
		t.Fatal("gpt-4o should not carry any quirk")
	}
	if HasQuirk("unknown-model", "anything") {
		t.Fatal("unknown model should report no quirks")
	}
}
