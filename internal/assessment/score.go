package assessment

// Outcome classifies a single question after submission.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomeUnanswered Outcome = "unanswered"
)

// Verdict is the pass/fail band for a percentage.
type Verdict string

const (
	VerdictPass     Verdict = "pass"
	VerdictMarginal Verdict = "marginal"
	VerdictFail     Verdict = "fail"
)

const (
	DefaultPassThreshold     = 70
	DefaultMarginalThreshold = 60
)

// Result is the aggregate score of a submission.
type Result struct {
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Unanswered int     `json:"unanswered"`
	Total      int     `json:"total"`
	Percentage int     `json:"percentage"`
	Verdict    Verdict `json:"verdict"`
	Forced     bool    `json:"forced"`
}

// Outcome returns the classification of question i.
func (sub *Submission) Outcome(i int) Outcome {
	q, ok := sub.Question(i)
	if !ok {
		return OutcomeUnanswered
	}
	opt, answered := sub.Answer(i)
	switch {
	case !answered:
		return OutcomeUnanswered
	case opt == q.CorrectOption:
		return OutcomeCorrect
	default:
		return OutcomeIncorrect
	}
}

// Score grades a submission using the default thresholds.
func Score(sub *Submission) Result {
	return ScoreWith(sub, DefaultPassThreshold, DefaultMarginalThreshold)
}

// ScoreWith grades a submission. A percentage at or above pass passes,
// at or above marginal is marginal, anything lower fails.
func ScoreWith(sub *Submission, pass, marginal int) Result {
	r := Result{Total: sub.Len(), Forced: sub.Forced()}
	for i := 0; i < r.Total; i++ {
		switch sub.Outcome(i) {
		case OutcomeCorrect:
			r.Correct++
		case OutcomeIncorrect:
			r.Incorrect++
		default:
			r.Unanswered++
		}
	}
	r.Percentage = Percentage(r.Correct, r.Total)
	r.Verdict = VerdictFor(r.Percentage, pass, marginal)
	return r
}

// Percentage returns round-half-up(correct/total*100) in integer arithmetic.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}

// VerdictFor maps a percentage to its band.
func VerdictFor(percentage, pass, marginal int) Verdict {
	if marginal > pass {
		marginal = pass
	}
	switch {
	case percentage >= pass:
		return VerdictPass
	case percentage >= marginal:
		return VerdictMarginal
	default:
		return VerdictFail
	}
}
