package service

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jaam8/surbate/internal/models"
)

const (
	topWordsLimit = 20
	minWordLength = 3
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Timeline buckets events by UTC hour of day and by calendar day. Both
// breakdowns partition the same set of events.
type Timeline struct {
	ByHour [24]int    `json:"by_hour"`
	ByDay  []DayCount `json:"by_day"`
}

func buildTimeline(stamps []time.Time) Timeline {
	var t Timeline
	days := make(map[string]int)
	for _, ts := range stamps {
		ts = ts.UTC()
		t.ByHour[ts.Hour()]++
		days[ts.Format("2006-01-02")]++
	}
	t.ByDay = make([]DayCount, 0, len(days))
	for day, n := range days {
		t.ByDay = append(t.ByDay, DayCount{Date: day, Count: n})
	}
	sort.Slice(t.ByDay, func(i, j int) bool { return t.ByDay[i].Date < t.ByDay[j].Date })
	return t
}

type PollStatistics struct {
	TotalVotes   int                   `json:"total_votes"`
	UniqueVoters int                   `json:"unique_voters"`
	OpinionCount int                   `json:"opinion_count"`
	ViewCount    int                   `json:"view_count"`
	Options      []models.OptionResult `json:"options"`
	// AnonymousVotes counts vote records marked anonymous.
	AnonymousVotes int      `json:"anonymous_votes"`
	Votes          Timeline `json:"votes"`
}

func PollStats(p *models.Poll) *PollStatistics {
	st := &PollStatistics{
		TotalVotes:   p.Stats.TotalVotes,
		UniqueVoters: p.Stats.UniqueVoters,
		OpinionCount: p.Stats.OpinionCount,
		ViewCount:    p.Stats.ViewCount,
		Options:      make([]models.OptionResult, len(p.Options)),
	}
	var stamps []time.Time
	for i, o := range p.Options {
		st.Options[i] = models.OptionResult{ID: o.ID, Label: o.Label, VoteCount: o.VoteCount, Percentage: o.Percentage}
		for _, v := range o.Votes {
			stamps = append(stamps, v.VotedAt)
			if v.IsAnonymous {
				st.AnonymousVotes++
			}
		}
	}
	st.Votes = buildTimeline(stamps)
	return st
}

type ChoiceStatistics struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type RatingBucket struct {
	Value      int `json:"value"`
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

type RatingStatistics struct {
	Average      float64        `json:"average"`
	Median       float64        `json:"median"`
	Mode         int            `json:"mode"`
	Distribution []RatingBucket `json:"distribution"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type TextStatistics struct {
	Count         int         `json:"count"`
	AverageLength float64     `json:"average_length"`
	TopWords      []WordCount `json:"top_words"`
}

type QuestionStatistics struct {
	QuestionID string              `json:"question_id"`
	Title      string              `json:"title"`
	Type       models.QuestionType `json:"type"`
	// Answered is the number of respondents with a stored answer; choice
	// percentages are relative to it.
	Answered int                `json:"answered"`
	Choices  []ChoiceStatistics `json:"choices,omitempty"`
	Rating   *RatingStatistics  `json:"rating,omitempty"`
	Text     *TextStatistics    `json:"text,omitempty"`
}

type SurveyStatistics struct {
	ResponseCount     int                  `json:"response_count"`
	CompleteCount     int                  `json:"complete_count"`
	CompletionRate    int                  `json:"completion_rate"`
	AvgCompletionTime float64              `json:"avg_completion_time"`
	AvgQualityScore   float64              `json:"avg_quality_score"`
	ViewCount         int                  `json:"view_count"`
	Questions         []QuestionStatistics `json:"questions"`
	Responses         Timeline             `json:"responses"`
}

// SurveyStats derives read-time statistics from live responses without
// touching stored data.
func SurveyStats(s *models.Survey, live []*models.Response) *SurveyStatistics {
	st := &SurveyStatistics{
		ResponseCount: len(live),
		ViewCount:     s.Stats.ViewCount,
		Questions:     make([]QuestionStatistics, len(s.Questions)),
	}
	stamps := make([]time.Time, len(live))
	totalTime, totalQuality := 0, 0
	for i, r := range live {
		stamps[i] = r.SubmittedAt
		totalQuality += r.QualityScore
		if r.IsComplete {
			st.CompleteCount++
			totalTime += r.CompletionTime
		}
	}
	st.CompletionRate = models.Percent(st.CompleteCount, len(live))
	if st.CompleteCount > 0 {
		st.AvgCompletionTime = round1(float64(totalTime) / float64(st.CompleteCount))
	}
	if len(live) > 0 {
		st.AvgQualityScore = round1(float64(totalQuality) / float64(len(live)))
	}
	st.Responses = buildTimeline(stamps)

	for i := range s.Questions {
		q := &s.Questions[i]
		answers := make([]models.Answer, 0, len(live))
		for _, r := range live {
			if a, ok := r.Answer(q.ID); ok {
				answers = append(answers, a)
			}
		}
		qs := QuestionStatistics{QuestionID: q.ID, Title: q.Title, Type: q.Type, Answered: len(answers)}
		switch {
		case q.Type.IsChoice():
			qs.Choices = choiceStats(q, answers)
		case q.Type == models.Rating:
			qs.Rating = ratingStats(q.RatingScale, answers)
		case q.Type.IsText():
			qs.Text = textStats(answers)
		}
		st.Questions[i] = qs
	}
	return st
}

func choiceStats(q *models.Question, answers []models.Answer) []ChoiceStatistics {
	counts := make(map[string]int, len(q.Choices))
	for _, a := range answers {
		if a.ChoiceID != "" {
			counts[a.ChoiceID]++
		}
		for _, id := range a.ChoiceIDs {
			counts[id]++
		}
	}
	out := make([]ChoiceStatistics, len(q.Choices))
	for i, c := range q.Choices {
		out[i] = ChoiceStatistics{
			ID:         c.ID,
			Label:      c.Label,
			Count:      counts[c.ID],
			Percentage: models.Percent(counts[c.ID], len(answers)),
		}
	}
	return out
}

func ratingStats(scale int, answers []models.Answer) *RatingStatistics {
	st := &RatingStatistics{Distribution: make([]RatingBucket, scale)}
	values := make([]int, 0, len(answers))
	for _, a := range answers {
		if a.Rating != nil && *a.Rating >= 1 && *a.Rating <= scale {
			values = append(values, *a.Rating)
		}
	}
	counts := make([]int, scale+1)
	sum := 0
	for _, v := range values {
		counts[v]++
		sum += v
	}
	for v := 1; v <= scale; v++ {
		st.Distribution[v-1] = RatingBucket{Value: v, Count: counts[v], Percentage: models.Percent(counts[v], len(values))}
		if counts[v] > counts[st.Mode] {
			st.Mode = v
		}
	}
	if len(values) == 0 {
		return st
	}
	st.Average = round1(float64(sum) / float64(len(values)))
	sort.Ints(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		st.Median = float64(values[mid])
	} else {
		st.Median = float64(values[mid-1]+values[mid]) / 2
	}
	return st
}

func textStats(answers []models.Answer) *TextStatistics {
	st := &TextStatistics{TopWords: []WordCount{}}
	words := make(map[string]int)
	totalLength := 0
	for _, a := range answers {
		text := strings.TrimSpace(a.Text)
		if text == "" {
			continue
		}
		st.Count++
		totalLength += utf8.RuneCountInString(text)
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if utf8.RuneCountInString(w) >= minWordLength {
				words[w]++
			}
		}
	}
	if st.Count > 0 {
		st.AverageLength = round1(float64(totalLength) / float64(st.Count))
	}
	for w, n := range words {
		st.TopWords = append(st.TopWords, WordCount{Word: w, Count: n})
	}
	sort.Slice(st.TopWords, func(i, j int) bool {
		if st.TopWords[i].Count != st.TopWords[j].Count {
			return st.TopWords[i].Count > st.TopWords[j].Count
		}
		return st.TopWords[i].Word < st.TopWords[j].Word
	})
	if len(st.TopWords) > topWordsLimit {
		st.TopWords = st.TopWords[:topWordsLimit]
	}
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
