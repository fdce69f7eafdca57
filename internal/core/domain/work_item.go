package domain

import "time"

// FeedbackItem is a customer_feedback row that has no feedback_analysis yet.
type FeedbackItem struct {
	CustomerID   int64
	FeedbackText string
	SubmittedAt  time.Time
}

// PredictionItem is a churn prediction that has no recommended action yet,
// joined with the customer's feedback analysis when one exists.
type PredictionItem struct {
	CustomerID  int64
	Probability float64 // NULL in the store reads as 0
	Summary     string  // empty when no analysis exists
	Sentiment   string
	Topics      string
	PredictedAt time.Time
}

// HasAnalysis reports whether a feedback analysis was joined in.
func (p PredictionItem) HasAnalysis() bool {
	return p.Summary != "" || p.Sentiment != "" || p.Topics != ""
}

// CustomerItem is a customer without a churn prediction.
type CustomerItem struct {
	CustomerID       int64
	LastActivityDays int
	ComplaintsCount  int
	Sentiment        string // from feedback_analysis, empty if none
	CreatedAt        time.Time
}

// ChurnFeatures is the feature vector the churn model was trained on.
type ChurnFeatures struct {
	LastActivityDays float64
	ComplaintsCount  float64
	SentimentNumeric float64
}

// Features converts the customer row into model input.
func (c CustomerItem) Features() ChurnFeatures {
	return ChurnFeatures{
		LastActivityDays: float64(c.LastActivityDays),
		ComplaintsCount:  float64(c.ComplaintsCount),
		SentimentNumeric: SentimentScore(c.Sentiment),
	}
}

// Vector returns the features in training column order.
func (f ChurnFeatures) Vector() []float64 {
	return []float64{f.LastActivityDays, f.ComplaintsCount, f.SentimentNumeric}
}

// ChurnFeatureNames is the training column order of ChurnFeatures.Vector.
var ChurnFeatureNames = []string{"last_activity_days", "complaints_count", "sentiment_numeric"}

// SentimentScore maps an analysed sentiment label onto the numeric scale used
// at training time. Unknown and missing labels are neutral.
func SentimentScore(sentiment string) float64 {
	switch sentiment {
	case "Positive":
		return 1
	case "Negative":
		return -1
	default:
		return 0
	}
}
