package pipeline

import "strings"

const (
	IntentCoding      = "coding"
	IntentSearch      = "search"
	IntentExplanation = "explanation"
	IntentGeneral     = "general"
)

// intentGroups is a priority list, not a set of independent classifiers.
// The first group with a matching keyword wins.
var intentGroups = []struct {
	intent   string
	keywords []string
}{
	{IntentCoding, []string{"code", "debug", "fix", "implement"}},
	{IntentSearch, []string{"search", "find", "look for"}},
	{IntentExplanation, []string{"explain", "help", "how", "why"}},
}

func classifyIntent(query string) string {
	lower := strings.ToLower(query)
	for _, group := range intentGroups {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.intent
			}
		}
	}
	return IntentGeneral
}
