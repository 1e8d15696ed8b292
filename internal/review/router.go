package review

// Decision is the router's choice after a critique.
type Decision string

const (
	DecisionRevise   Decision = "revise"
	DecisionFinalize Decision = "finalize"
)

// Decide routes a critiqued draft. It revises while the score is below
// threshold and the revision budget is not spent.
func Decide(score, revisionCount, threshold, ceiling int) Decision {
	if score < threshold && revisionCount < ceiling {
		return DecisionRevise
	}
	return DecisionFinalize
}

// decideState applies Decide to the critique held in s. A missing critique
// finalizes.
func decideState(s State, threshold, ceiling int) Decision {
	if s.Critique == nil {
		return DecisionFinalize
	}
	return Decide(s.Critique.CoherenceScore, s.RevisionCount, threshold, ceiling)
}
