package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/llm"
)

// Completer is the completion API as seen by the adapters.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

const feedbackPrompt = `Act as an expert customer feedback analyzer for a retail bank.

Analyze the following customer feedback (Customer ID: %d):

"%s"

Provide your analysis in the following format:

SUMMARY: [1-2 sentence summary of the key points in the feedback]
SENTIMENT: [Single word: Positive, Negative, or Neutral]
TOPICS: [Comma-separated list of key topics mentioned, max 5 topics]

Keep your analysis factual and based only on what is explicitly mentioned in the feedback.
Do not make assumptions or add information not present in the text.`

// FeedbackAnalyzer turns free-text feedback into a summary, a sentiment label
// and a topic list.
type FeedbackAnalyzer struct {
	llm Completer
}

func NewFeedbackAnalyzer(c Completer) *FeedbackAnalyzer {
	return &FeedbackAnalyzer{llm: c}
}

// Analyze makes one completion call. Blank feedback succeeds with fixed
// defaults and no call.
func (a *FeedbackAnalyzer) Analyze(ctx context.Context, item domain.FeedbackItem) domain.Outcome[domain.FeedbackAnalysis] {
	if strings.TrimSpace(item.FeedbackText) == "" {
		return domain.Succeeded(domain.FeedbackAnalysis{
			CustomerID: item.CustomerID,
			Summary:    EmptyFeedbackSummary,
			Sentiment:  DefaultSentiment,
			Topics:     DefaultTopics,
		})
	}

	resp, err := a.llm.Complete(ctx, llm.ChatRequest{
		Prompt:      fmt.Sprintf(feedbackPrompt, item.CustomerID, item.FeedbackText),
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		return failed[domain.FeedbackAnalysis](err)
	}

	parsed := ParseAnalysis(resp.Content)
	return domain.Succeeded(domain.FeedbackAnalysis{
		CustomerID: item.CustomerID,
		Summary:    parsed.Summary,
		Sentiment:  parsed.Sentiment,
		Topics:     parsed.Topics,
	})
}
