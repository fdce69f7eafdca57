package inference

import "strings"

const (
	DefaultSummary   = "No summary generated"
	DefaultSentiment = "Neutral"
	DefaultTopics    = "No topics identified"

	EmptyFeedbackSummary = "No feedback provided"
	DefaultAction        = "No specific action suggested by LLM."

	markerSummary   = "SUMMARY:"
	markerSentiment = "SENTIMENT:"
	markerTopics    = "TOPICS:"
	markerAction    = "Suggested Action:"
)

// ParsedAnalysis is the labelled content of a feedback analysis response.
type ParsedAnalysis struct {
	Summary   string
	Sentiment string
	Topics    string
}

// ParseAnalysis extracts SUMMARY, SENTIMENT and TOPICS lines. Missing
// markers keep their defaults; when a marker repeats the last one wins.
func ParseAnalysis(text string) ParsedAnalysis {
	out := ParsedAnalysis{
		Summary:   DefaultSummary,
		Sentiment: DefaultSentiment,
		Topics:    DefaultTopics,
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, markerSummary):
			out.Summary = strings.TrimSpace(strings.TrimPrefix(line, markerSummary))
		case strings.HasPrefix(line, markerSentiment):
			out.Sentiment = strings.TrimSpace(strings.TrimPrefix(line, markerSentiment))
		case strings.HasPrefix(line, markerTopics):
			out.Topics = strings.TrimSpace(strings.TrimPrefix(line, markerTopics))
		}
	}
	return out
}

// CleanAction strips an echoed "Suggested Action:" prefix and substitutes the
// default for an empty answer.
func CleanAction(text string) string {
	action := strings.TrimSpace(text)
	if strings.HasPrefix(action, markerAction) {
		action = strings.TrimSpace(strings.TrimPrefix(action, markerAction))
	}
	if action == "" {
		return DefaultAction
	}
	return action
}
