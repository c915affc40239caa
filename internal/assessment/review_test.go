package assessment

import (
	"reflect"
	"testing"
)

func TestFilterBy(t *testing.T) {
	sub := submitted(t, 60, map[int]int{0: 1, 1: 1}, []int{1})

	tests := []struct {
		filter Filter
		want   []int
	}{
		{FilterAll, []int{0, 1, 2}},
		{FilterCorrect, []int{0}},
		{FilterIncorrect, []int{1}},
		{FilterUnanswered, []int{2}},
		{FilterFlagged, []int{1}},
		{Filter("bogus"), []int{0, 1, 2}},
	}

	for _, tc := range tests {
		t.Run(string(tc.filter), func(t *testing.T) {
			if got := FilterBy(sub, tc.filter); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("FilterBy(%s) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}
}

func TestFiltersAreOrderedSubsetsOfAll(t *testing.T) {
	sub := submitted(t, 60, map[int]int{0: 0, 2: 2}, []int{0, 2})
	all := FilterBy(sub, FilterAll)

	for _, f := range []Filter{FilterCorrect, FilterIncorrect, FilterUnanswered, FilterFlagged} {
		got := FilterBy(sub, f)
		j := 0
		for _, idx := range got {
			for j < len(all) && all[j] != idx {
				j++
			}
			if j == len(all) {
				t.Errorf("%s: %v is not an ordered subset of %v", f, got, all)
				break
			}
			j++
		}
	}
}

func TestReviewToggle(t *testing.T) {
	r := NewReview()
	r.Toggle(FilterIncorrect)
	if r.ActiveFilter != FilterIncorrect {
		t.Fatalf("active = %s, want incorrect", r.ActiveFilter)
	}
	r.Toggle(FilterIncorrect)
	if r.ActiveFilter != FilterAll {
		t.Errorf("second toggle: active = %s, want all", r.ActiveFilter)
	}

	r.Toggle(FilterFlagged)
	r.Toggle(FilterCorrect)
	if r.ActiveFilter != FilterCorrect {
		t.Errorf("switch filter: active = %s, want correct", r.ActiveFilter)
	}
}

func TestReviewModeIsSeparateFromFilter(t *testing.T) {
	r := NewReview()
	r.Toggle(FilterUnanswered)
	if r.InReviewMode {
		t.Error("toggling a filter must not enter review mode")
	}
	r.Enter()
	if !r.InReviewMode || r.ActiveFilter != FilterUnanswered {
		t.Errorf("enter: %+v", r)
	}
	r.Exit()
	if r.InReviewMode || r.ActiveFilter != FilterAll {
		t.Errorf("exit: %+v", r)
	}
}

func TestReviewApply(t *testing.T) {
	sub := submitted(t, 60, nil, []int{1})
	r := NewReview()
	r.Toggle(FilterFlagged)
	if got := r.Apply(sub); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("flagged review = %v, want [1]", got)
	}
}

func TestParseFilter(t *testing.T) {
	if ParseFilter("incorrect") != FilterIncorrect {
		t.Error("incorrect not parsed")
	}
	if ParseFilter("") != FilterAll || ParseFilter("true") != FilterAll {
		t.Error("unknown filters should fall back to all")
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{65, "01:05"},
		{5, "00:05"},
		{0, "00:00"},
		{45 * 60, "45:00"},
		{3600, "60:00"},
		{-3, "00:00"},
	}
	for _, tc := range tests {
		if got := FormatClock(tc.seconds); got != tc.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
