package domain

// FeedbackAnalysis is the nlp agent's result, one per customer.
type FeedbackAnalysis struct {
	CustomerID int64
	Summary    string
	Sentiment  string
	Topics     string
}

// RiskSegment buckets a churn probability.
type RiskSegment string

const (
	RiskHigh   RiskSegment = "High Risk"
	RiskMedium RiskSegment = "Medium Risk"
	RiskLow    RiskSegment = "Low Risk"
)

// Action is the action agent's result, one per customer.
type Action struct {
	CustomerID        int64
	Segment           RiskSegment
	RecommendedAction string
}

// Prediction is the prediction agent's result, one per customer.
type Prediction struct {
	CustomerID       int64
	ChurnProbability float64
}
