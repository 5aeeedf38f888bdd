package guardrails

import (
	"regexp"
	"time"
)

// KeywordRule flags a query when any keyword appears as a substring.
// Overridable rules are suppressed when the text carries a safe-context token.
type KeywordRule struct {
	Category    string
	Keywords    []string
	Overridable bool
}

// PatternRule flags a query or response on a regex match.
type PatternRule struct {
	ViolationType string
	Reason        string
	Overridable   bool
	Patterns      []*regexp.Regexp
}

// RuleSet is the complete, data-driven refusal policy. It is fixed at build
// time; rulesVersion/rulesUpdated change whenever the tables do.
type RuleSet struct {
	Keyword       []KeywordRule
	Contextual    []PatternRule
	Sensitive     []PatternRule
	HarmfulAdvice []PatternRule

	SafeContexts       []string
	MedicalIndicators  []string
	MedicalDisclaimers []string
}

const rulesVersion = "1.0"

var rulesUpdated = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

var defaultRules = RuleSet{
	Keyword: []KeywordRule{
		{Category: "violence", Overridable: true,
			Keywords: []string{"kill", "murder", "attack", "bomb", "weapon", "gun", "shoot", "stab"}},
		{Category: "hacking", Overridable: true,
			Keywords: []string{"hack", "exploit", "breach", "phishing", "malware", "virus", "trojan"}},
		{Category: "drugs", Overridable: true,
			Keywords: []string{"meth", "heroin", "cocaine", "fentanyl", "synthesize", "manufacture"}},
		{Category: "self_harm", Overridable: true,
			Keywords: []string{"suicide", "self-harm", "overdose", "cutting", "starvation"}},
		{Category: "illegal", Overridable: true,
			Keywords: []string{"forgery", "counterfeit", "smuggle", "traffick", "launder"}},
		{Category: "explicit", Overridable: true,
			Keywords: []string{"porn", "sex", "nude", "erotic", "fetish", "adult content"}},
		{Category: "hate", Overridable: true,
			Keywords: []string{"racist", "sexist", "homophobic", "transphobic", "bigot"}},
	},

	Contextual: []PatternRule{
		{
			ViolationType: "bypass_attempt",
			Reason:        "Query appears to attempt bypassing safety restrictions or legal boundaries",
			Overridable:   true,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)how to.*without getting caught`),
				regexp.MustCompile(`(?i)ways to.*illegally`),
				regexp.MustCompile(`(?i)secret methods?.*`),
				regexp.MustCompile(`(?i)hidden techniques?.*`),
				regexp.MustCompile(`(?i)bypass.*restrictions?`),
				regexp.MustCompile(`(?i)circumvent.*laws?`),
			},
		},
		{
			ViolationType: "harmful_roleplay",
			Reason:        "Query involves role-playing harmful or illegal activities",
			Overridable:   true,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)pretend.*(?:kill|murder|attack)`),
				regexp.MustCompile(`(?i)role.*play.*(?:criminal|terrorist|hacker)`),
				regexp.MustCompile(`(?i)act like.*(?:drug dealer|criminal)`),
			},
		},
	},

	// Highest-severity categories. Never overridable: a safe-context token
	// must not relax these.
	Sensitive: []PatternRule{
		{
			ViolationType: "sensitive_topic",
			Reason:        "Query involves highly sensitive topics that require special handling",
			Overridable:   false,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)child.*(?:abuse|exploitation|porn)`),
				regexp.MustCompile(`(?i)minor.*(?:sexual|explicit)`),
				regexp.MustCompile(`(?i)underage.*(?:content|material)`),
				regexp.MustCompile(`(?i)genocide|holocaust.*deny`),
				regexp.MustCompile(`(?i)conspiracy.*government.*control`),
			},
		},
	},

	HarmfulAdvice: []PatternRule{
		{
			ViolationType: "harmful_instructions",
			Reason:        "Response contains actionable harmful instructions",
			Overridable:   false,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)here.*s.*how to.*(?:kill|murder|attack|hack)`),
				regexp.MustCompile(`(?i)step.*by.*step.*(?:bomb|weapon|drug)`),
				regexp.MustCompile(`(?i)follow these steps.*(?:illegal|criminal)`),
			},
		},
	},

	SafeContexts: []string{
		"historical", "educational", "academic", "research", "fiction", "literature",
		"medical study", "psychological research", "legal analysis", "news reporting",
	},

	MedicalIndicators:  []string{"medical", "health", "disease", "treatment", "cure"},
	MedicalDisclaimers: []string{"consult a doctor", "professional medical advice", "not a substitute"},
}

// restrictedCategories is the human-readable policy surface exported through
// Guidelines. Display data only; enforcement runs off the rule tables above.
var restrictedCategories = map[string][]string{
	"harmful_activities": {
		"violent crimes", "terrorism", "hacking", "illegal activities",
		"creating weapons", "harm to others", "self-harm", "suicide",
	},
	"sensitive_topics": {
		"explicit sexual content", "child exploitation", "hate speech",
		"discrimination", "harassment", "bullying",
	},
	"illegal_substances": {
		"drug manufacturing", "illegal drugs", "controlled substances",
	},
	"privacy_violation": {
		"personal information", "doxxing", "identity theft", "surveillance",
	},
	"misinformation": {
		"false medical advice", "conspiracy theories", "disinformation",
	},
}

var guidelineStatements = []string{
	"Do not assist with queries that clearly intend to engage in violent crimes or terrorist acts",
	"Do not provide instructions for illegal activities, hacking, or creating weapons",
	"Do not generate explicit sexual content or assist with child exploitation",
	"Do not promote hate speech, discrimination, or harassment",
	"Do not provide medical advice without proper disclaimers",
	"Do not spread misinformation or conspiracy theories",
	"Allow educational and research discussions in safe contexts",
	"Provide high-level answers without actionable details for sensitive topics",
}
