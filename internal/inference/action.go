package inference

import (
	"context"
	"fmt"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/llm"
)

// RiskThresholds segments churn probabilities. Both bounds are inclusive.
type RiskThresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// DefaultRiskThresholds are 0.70 and 0.35.
var DefaultRiskThresholds = RiskThresholds{High: 0.70, Medium: 0.35}

// Classify returns High at or above High, Medium at or above Medium, else Low.
func (t RiskThresholds) Classify(probability float64) domain.RiskSegment {
	switch {
	case probability >= t.High:
		return domain.RiskHigh
	case probability >= t.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

const actionPrompt = `Act as an expert customer retention strategist for a retail bank.
A customer (ID: %d) needs a retention action recommendation based on the following data:

*   Churn Risk Probability: %.2f (Categorized as: %s)
*   Analysis of recent feedback (if available):
    *   Summary: %s
    *   Overall Sentiment: %s
    *   Key Topics Mentioned: %s

Based ONLY on this information, provide ONE SINGLE, concise, and actionable next step for a bank employee.
- If risk is High and sentiment Negative, suggest an urgent and specific intervention addressing the topics.
- If risk is Medium, suggest a targeted proactive measure, possibly referencing feedback topics.
- If risk is Low, suggest standard monitoring or a simple positive reinforcement if feedback was good.
- Be specific where possible (e.g., "offer waiver for [topic]", "explain feature related to [topic]").
- Do not invent information not present above.

Respond with only the suggested action text, starting directly with the action verb. Example: "Schedule a call to discuss fee concerns and offer a one-time waiver." or "Monitor account activity; send standard loyalty email next cycle."

Suggested Action:`

// ActionGenerator asks the completion API for one retention action.
type ActionGenerator struct {
	llm Completer
}

func NewActionGenerator(c Completer) *ActionGenerator {
	return &ActionGenerator{llm: c}
}

// Generate makes one completion call for an already segmented prediction.
func (g *ActionGenerator) Generate(ctx context.Context, item domain.PredictionItem, segment domain.RiskSegment) domain.Outcome[domain.Action] {
	resp, err := g.llm.Complete(ctx, llm.ChatRequest{
		Prompt: fmt.Sprintf(actionPrompt,
			item.CustomerID,
			item.Probability,
			segment,
			orNA(item.Summary),
			orNA(item.Sentiment),
			orNA(item.Topics),
		),
		Temperature: 0.4,
		MaxTokens:   120,
	})
	if err != nil {
		return failed[domain.Action](err)
	}

	return domain.Succeeded(domain.Action{
		CustomerID:        item.CustomerID,
		Segment:           segment,
		RecommendedAction: CleanAction(resp.Content),
	})
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
