package schedule

import "testing"

func TestSignature_NormalizesPrompt(t *testing.T) {
	a := Schedule{AgentID: "a", Type: TypeInterval, IntervalMs: 60000, TaskPrompt: "Take   a Screenshot"}
	b := Schedule{AgentID: "a", Type: TypeInterval, IntervalMs: 60000, TaskPrompt: "take a screenshot"}
	c := Schedule{AgentID: "a", Type: TypeInterval, IntervalMs: 60000, TaskPrompt: "  TAKE\ta  screenshot \n"}

	if a.Signature() != b.Signature() {
		t.Errorf("case/whitespace variants must share a signature:\n%s\n%s", a.Signature(), b.Signature())
	}
	if a.Signature() != c.Signature() {
		t.Errorf("whitespace runs must collapse:\n%s\n%s", a.Signature(), c.Signature())
	}
}

func TestSignature_DistinguishesParameters(t *testing.T) {
	base := Schedule{AgentID: "a", Type: TypeInterval, IntervalMs: 60000, TaskPrompt: "take a screenshot"}

	slower := base
	slower.IntervalMs = 120000
	if base.Signature() == slower.Signature() {
		t.Error("different intervals must produce different signatures")
	}

	otherAgent := base
	otherAgent.AgentID = "b"
	if base.Signature() == otherAgent.Signature() {
		t.Error("different agents must produce different signatures")
	}

	otherPrompt := base
	otherPrompt.TaskPrompt = "take two screenshots"
	if base.Signature() == otherPrompt.Signature() {
		t.Error("different prompts must produce different signatures")
	}

	cronSched := Schedule{AgentID: "a", Type: TypeCron, Cron: "0 9 * * 1", TaskPrompt: "take a screenshot"}
	if base.Signature() == cronSched.Signature() {
		t.Error("different schedule types must produce different signatures")
	}
}
