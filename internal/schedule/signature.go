package schedule

import (
	"fmt"
	"strings"
)

// Signature derives the stable identity string used to detect functionally
// duplicate schedules: same agent, same trigger timing, same normalized
// prompt. Two schedules are duplicates iff their signatures are equal.
func (s *Schedule) Signature() string {
	switch s.Type {
	case TypeInterval:
		return fmt.Sprintf("%s|interval|%d|%s", s.AgentID, s.IntervalMs, normalizePrompt(s.TaskPrompt))
	case TypeCron:
		return fmt.Sprintf("%s|cron|%s|%s", s.AgentID, normalizePrompt(s.Cron), normalizePrompt(s.TaskPrompt))
	default:
		return fmt.Sprintf("%s|%s|%s", s.AgentID, s.Type, normalizePrompt(s.TaskPrompt))
	}
}

// normalizePrompt trims, collapses internal whitespace runs to one space,
// and case-folds, so cosmetic differences don't defeat duplicate detection.
func normalizePrompt(prompt string) string {
	return strings.ToLower(strings.Join(strings.Fields(prompt), " "))
}
