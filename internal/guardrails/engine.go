package guardrails

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/pkg/logger"
)

// Verdict is the result of a single safety check. Produced fresh per call,
// never cached across inputs.
type Verdict struct {
	Safe          bool      `json:"safe"`
	Reason        string    `json:"reason"`
	Category      string    `json:"category,omitempty"`
	MatchedRule   string    `json:"matched_rule,omitempty"`
	ViolationType string    `json:"violation_type,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Guidelines is the read-only export of the full rule table for display
// and audit by external callers.
type Guidelines struct {
	RestrictedCategories map[string][]string `json:"restricted_categories"`
	TriggerKeywords      map[string][]string `json:"trigger_keywords"`
	SafeContexts         []string            `json:"safe_contexts"`
	Statements           []string            `json:"guidelines"`
	Version              string              `json:"version"`
	LastUpdated          time.Time           `json:"last_updated"`
}

// Engine evaluates queries and responses against the fixed rule tables.
// Stateless and safe for concurrent use.
type Engine struct {
	rules RuleSet
}

func New() *Engine {
	return &Engine{rules: defaultRules}
}

// CheckQuery runs the query-side refusal policy: direct keyword violations
// and contextual patterns first (both suppressed by a safe-context token),
// then the unconditional sensitive-topic patterns. The ordering and the
// override asymmetry define the policy and must not be rearranged.
func (e *Engine) CheckQuery(text string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(text))
	safeContext := e.hasSafeContext(normalized)

	for _, rule := range e.rules.Keyword {
		if rule.Overridable && safeContext {
			continue
		}
		for _, keyword := range rule.Keywords {
			if strings.Contains(normalized, keyword) {
				v := unsafeVerdict(
					fmt.Sprintf("Query contains potentially harmful content related to %s",
						strings.ReplaceAll(rule.Category, "_", " ")),
					rule.Category, keyword, "direct",
				)
				logVerdict("query", v)
				return v
			}
		}
	}

	for _, rule := range e.rules.Contextual {
		if rule.Overridable && safeContext {
			continue
		}
		if matched, pattern := matchAny(rule, normalized); matched {
			v := unsafeVerdict(rule.Reason, "", pattern, rule.ViolationType)
			logVerdict("query", v)
			return v
		}
	}

	for _, rule := range e.rules.Sensitive {
		if matched, pattern := matchAny(rule, normalized); matched {
			v := unsafeVerdict(rule.Reason, "", pattern, rule.ViolationType)
			logVerdict("query", v)
			return v
		}
	}

	return safeVerdict("Query appears safe")
}

// CheckResponse runs the response-side policy: actionable-harm phrasing,
// then the medical completeness check keyed off the originating query.
func (e *Engine) CheckResponse(text, originalQuery string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, rule := range e.rules.HarmfulAdvice {
		if matched, pattern := matchAny(rule, normalized); matched {
			v := unsafeVerdict(rule.Reason, "", pattern, rule.ViolationType)
			logVerdict("response", v)
			return v
		}
	}

	if e.isMedicalQuery(originalQuery) && !e.hasDisclaimer(normalized) {
		v := unsafeVerdict(
			"Medical query response lacks proper disclaimers",
			"misinformation", "", "missing_medical_disclaimer",
		)
		logVerdict("response", v)
		return v
	}

	return safeVerdict("Response appears safe")
}

// Guidelines returns the complete policy surface: restricted categories,
// trigger keyword groups, safe-context tokens and guideline statements.
func (e *Engine) Guidelines() Guidelines {
	keywords := make(map[string][]string, len(e.rules.Keyword))
	for _, rule := range e.rules.Keyword {
		keywords[rule.Category] = append([]string(nil), rule.Keywords...)
	}

	return Guidelines{
		RestrictedCategories: restrictedCategories,
		TriggerKeywords:      keywords,
		SafeContexts:         append([]string(nil), e.rules.SafeContexts...),
		Statements:           append([]string(nil), guidelineStatements...),
		Version:              rulesVersion,
		LastUpdated:          rulesUpdated,
	}
}

func (e *Engine) hasSafeContext(normalized string) bool {
	for _, token := range e.rules.SafeContexts {
		if strings.Contains(normalized, token) {
			return true
		}
	}
	return false
}

func (e *Engine) isMedicalQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, word := range e.rules.MedicalIndicators {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func (e *Engine) hasDisclaimer(normalizedResponse string) bool {
	for _, phrase := range e.rules.MedicalDisclaimers {
		if strings.Contains(normalizedResponse, phrase) {
			return true
		}
	}
	return false
}

func matchAny(rule PatternRule, text string) (bool, string) {
	for _, pattern := range rule.Patterns {
		if pattern.MatchString(text) {
			return true, pattern.String()
		}
	}
	return false, ""
}

func safeVerdict(reason string) Verdict {
	return Verdict{
		Safe:      true,
		Reason:    reason,
		CheckedAt: time.Now(),
	}
}

func unsafeVerdict(reason, category, matchedRule, violationType string) Verdict {
	return Verdict{
		Safe:          false,
		Reason:        reason,
		Category:      category,
		MatchedRule:   matchedRule,
		ViolationType: violationType,
		CheckedAt:     time.Now(),
	}
}

func logVerdict(kind string, v Verdict) {
	logger.Warn("Content blocked by guardrails",
		zap.String("kind", kind),
		zap.String("reason", v.Reason),
		zap.String("category", v.Category),
		zap.String("violation_type", v.ViolationType),
	)
}
