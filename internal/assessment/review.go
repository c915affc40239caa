package assessment

// Filter selects which questions appear in post-submission review.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterCorrect    Filter = "correct"
	FilterIncorrect  Filter = "incorrect"
	FilterUnanswered Filter = "unanswered"
	FilterFlagged    Filter = "flagged"
)

// Valid reports whether f names a known filter.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterCorrect, FilterIncorrect, FilterUnanswered, FilterFlagged:
		return true
	}
	return false
}

// ParseFilter returns the filter named by s, or FilterAll for anything unknown.
func ParseFilter(s string) Filter {
	switch f := Filter(s); f {
	case FilterCorrect, FilterIncorrect, FilterUnanswered, FilterFlagged:
		return f
	default:
		return FilterAll
	}
}

// FilterBy returns the indices matching f in original question order.
func FilterBy(sub *Submission, f Filter) []int {
	out := make([]int, 0, sub.Len())
	for i := 0; i < sub.Len(); i++ {
		if matches(sub, i, f) {
			out = append(out, i)
		}
	}
	return out
}

func matches(sub *Submission, i int, f Filter) bool {
	switch f {
	case FilterCorrect:
		return sub.Outcome(i) == OutcomeCorrect
	case FilterIncorrect:
		return sub.Outcome(i) == OutcomeIncorrect
	case FilterUnanswered:
		return sub.Outcome(i) == OutcomeUnanswered
	case FilterFlagged:
		return sub.IsFlagged(i)
	default:
		return true
	}
}

// Review is the presentation state of the results screen.
type Review struct {
	InReviewMode bool   `json:"in_review_mode"`
	ActiveFilter Filter `json:"active_filter"`
}

// NewReview returns a review state showing all questions, not yet in review mode.
func NewReview() Review {
	return Review{ActiveFilter: FilterAll}
}

// Enter switches to review mode, keeping the active filter.
func (r *Review) Enter() {
	r.InReviewMode = true
	if r.ActiveFilter == "" {
		r.ActiveFilter = FilterAll
	}
}

// Exit leaves review mode and resets the filter.
func (r *Review) Exit() {
	r.InReviewMode = false
	r.ActiveFilter = FilterAll
}

// Toggle activates f, or clears it back to FilterAll if f is already active.
func (r *Review) Toggle(f Filter) {
	if f == r.ActiveFilter {
		r.ActiveFilter = FilterAll
		return
	}
	r.ActiveFilter = f
}

// Apply runs the active filter against sub.
func (r Review) Apply(sub *Submission) []int {
	return FilterBy(sub, r.ActiveFilter)
}
