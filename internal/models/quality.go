package models

import (
	"strings"
	"unicode/utf8"
)

const (
	FlagTooFast       = "too_fast"
	FlagAllSame       = "all_same_answers"
	FlagMinimalText   = "minimal_text_responses"
	MaxQualityScore   = 100
	minimumQualityCap = 0
)

// QualityRules are the tunable thresholds of the response quality heuristic.
type QualityRules struct {
	SecondsPerAnswer   int
	TooFastPenalty     int
	SameAnswerMinCount int
	SameAnswerPenalty  int
	MinTextLength      int
	MinimalTextPenalty int
}

func DefaultQualityRules() QualityRules {
	return QualityRules{
		SecondsPerAnswer:   2,
		TooFastPenalty:     30,
		SameAnswerMinCount: 3,
		SameAnswerPenalty:  20,
		MinTextLength:      5,
		MinimalTextPenalty: 15,
	}
}

// ScoreQuality starts at 100 and subtracts each triggered penalty once.
func ScoreQuality(answers []Answer, completionTime int, rules QualityRules) (int, []string) {
	flags := make([]string, 0, 3)
	penalty := 0
	flag := func(name string, amount int) {
		for _, f := range flags {
			if f == name {
				return
			}
		}
		flags = append(flags, name)
		penalty += amount
	}

	if completionTime < len(answers)*rules.SecondsPerAnswer {
		flag(FlagTooFast, rules.TooFastPenalty)
	}
	if allSameChoice(answers, rules.SameAnswerMinCount) {
		flag(FlagAllSame, rules.SameAnswerPenalty)
	}
	if minimalText(answers, rules.MinTextLength) {
		flag(FlagMinimalText, rules.MinimalTextPenalty)
	}

	score := MaxQualityScore - penalty
	if score < minimumQualityCap {
		score = minimumQualityCap
	}
	return score, flags
}

// allSameChoice is true when more than minCount choice answers exist and
// all resolve to one choice id.
func allSameChoice(answers []Answer, minCount int) bool {
	first := ""
	count := 0
	for _, a := range answers {
		if !a.QuestionType.IsChoice() {
			continue
		}
		id := a.FirstChoice()
		if count == 0 {
			first = id
		} else if id != first {
			return false
		}
		count++
	}
	return count > minCount
}

func minimalText(answers []Answer, minLength int) bool {
	seen := false
	for _, a := range answers {
		if !a.QuestionType.IsText() {
			continue
		}
		seen = true
		if utf8.RuneCountInString(strings.TrimSpace(a.Text)) >= minLength {
			return false
		}
	}
	return seen
}
