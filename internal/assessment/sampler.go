package assessment

import (
	"math"
	"math/rand"
)

// Distribution weights the difficulty bands of a drawn paper.
// Weights are relative; they need not sum to 100.
type Distribution struct {
	Basic        int `json:"basic"`
	Intermediate int `json:"intermediate"`
	Advanced     int `json:"advanced"`
}

// DefaultDistribution is the 40/45/15 split used by the module mock exams.
var DefaultDistribution = Distribution{Basic: 40, Intermediate: 45, Advanced: 15}

func (d Distribution) total() int { return d.Basic + d.Intermediate + d.Advanced }

// Counts splits count across the bands. Basic and intermediate are rounded,
// advanced takes the remainder.
func (d Distribution) Counts(count int) (basic, intermediate, advanced int) {
	total := d.total()
	if total <= 0 || count <= 0 {
		return 0, 0, 0
	}
	basic = roundHalfUp(float64(count*d.Basic) / float64(total))
	intermediate = roundHalfUp(float64(count*d.Intermediate) / float64(total))
	if basic > count {
		basic = count
	}
	if basic+intermediate > count {
		intermediate = count - basic
	}
	advanced = count - basic - intermediate
	return basic, intermediate, advanced
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// SampleByDifficulty draws count questions from bank following d, then
// shuffles the paper. A band with too few questions contributes what it has,
// so the paper may come back shorter than count.
func SampleByDifficulty(bank []Question, count int, d Distribution, rng *rand.Rand) []Question {
	nb, ni, na := d.Counts(count)

	var basic, intermediate, advanced []Question
	for _, q := range bank {
		switch q.Metadata.Difficulty {
		case DifficultyBasic:
			basic = append(basic, q)
		case DifficultyIntermediate:
			intermediate = append(intermediate, q)
		case DifficultyAdvanced:
			advanced = append(advanced, q)
		}
	}

	paper := make([]Question, 0, count)
	paper = append(paper, take(basic, nb, rng)...)
	paper = append(paper, take(intermediate, ni, rng)...)
	paper = append(paper, take(advanced, na, rng)...)
	Shuffle(paper, rng)
	return paper
}

// SampleBalanced draws count questions spread as evenly as possible across
// categories, taking one from each category in turn. Questions whose
// category is not listed are never drawn. The paper is shuffled.
func SampleBalanced(bank []Question, count int, categories []string, rng *rand.Rand) []Question {
	pools := categoryPools(bank, categories)
	quotas := balancedQuotas(pools, count)

	paper := make([]Question, 0, count)
	for i, p := range pools {
		paper = append(paper, take(p, quotas[i], rng)...)
	}
	Shuffle(paper, rng)
	return paper
}

// SampleBalancedByDifficulty spreads count across categories like
// SampleBalanced, then draws each category's share following d. A category
// short of one band makes up its share from its other questions.
func SampleBalancedByDifficulty(bank []Question, count int, categories []string, d Distribution, rng *rand.Rand) []Question {
	pools := categoryPools(bank, categories)
	quotas := balancedQuotas(pools, count)

	paper := make([]Question, 0, count)
	for i, p := range pools {
		picked := SampleByDifficulty(p, quotas[i], d, rng)
		if short := quotas[i] - len(picked); short > 0 {
			used := make(map[string]bool, len(picked))
			for _, q := range picked {
				used[q.ID] = true
			}
			var rest []Question
			for _, q := range p {
				if !used[q.ID] {
					rest = append(rest, q)
				}
			}
			picked = append(picked, take(rest, short, rng)...)
		}
		paper = append(paper, picked...)
	}
	Shuffle(paper, rng)
	return paper
}

// categoryPools groups bank by the listed categories, in list order.
func categoryPools(bank []Question, categories []string) [][]Question {
	pools := make([][]Question, len(categories))
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}
	for _, q := range bank {
		if i, ok := index[q.Metadata.Category]; ok {
			pools[i] = append(pools[i], q)
		}
	}
	return pools
}

// balancedQuotas hands out count one question per category per round,
// skipping categories that have run dry.
func balancedQuotas(pools [][]Question, count int) []int {
	quotas := make([]int, len(pools))
	for total := 0; total < count; {
		drew := false
		for i, p := range pools {
			if total == count {
				break
			}
			if quotas[i] < len(p) {
				quotas[i]++
				total++
				drew = true
			}
		}
		if !drew {
			break
		}
	}
	return quotas
}

// SampleRandom draws count questions uniformly without regard to metadata.
func SampleRandom(bank []Question, count int, rng *rand.Rand) []Question {
	return take(bank, count, rng)
}

// Shuffle permutes qs in place (Fisher-Yates).
func Shuffle(qs []Question, rng *rand.Rand) {
	rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

func take(pool []Question, n int, rng *rand.Rand) []Question {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]Question, len(pool))
	copy(cp, pool)
	Shuffle(cp, rng)
	if n > len(cp) {
		n = len(cp)
	}
	return cp[:n]
}
