package domain

// AgentName identifies one agent process; it is written to audit_log.agent_name.
type AgentName string

const (
	AgentNLP        AgentName = "nlp"
	AgentAction     AgentName = "action"
	AgentPrediction AgentName = "prediction"
)

// Agents lists every agent the runtime knows how to build.
var Agents = []AgentName{AgentNLP, AgentAction, AgentPrediction}

// ParseAgentName returns the agent for s, or false if s names no agent.
func ParseAgentName(s string) (AgentName, bool) {
	for _, a := range Agents {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// UsesLLM reports whether the agent calls the completion API.
func (a AgentName) UsesLLM() bool {
	return a == AgentNLP || a == AgentAction
}
