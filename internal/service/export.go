package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jaam8/surbate/internal/models"
)

// utf8BOM makes spreadsheet programs detect the encoding.
const utf8BOM = "\ufeff"

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportVotes writes one CSV row per vote record. Anonymous voters get an
// empty nickname.
func (s *PollService) ExportVotes(ctx context.Context, pollID string, w io.Writer) error {
	poll, err := s.load(ctx, pollID, true)
	if err != nil {
		return s.fail("export votes", err)
	}
	if err = WriteVotesCSV(w, poll); err != nil {
		return s.fail("export votes", err)
	}
	return nil
}

func WriteVotesCSV(w io.Writer, p *models.Poll) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("service: write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	rows := [][]string{{"option_id", "option", "nickname", "is_anonymous", "voted_at"}}
	for _, o := range p.Options {
		for _, v := range o.Votes {
			nickname := v.Nickname
			if v.IsAnonymous {
				nickname = ""
			}
			rows = append(rows, []string{
				o.ID,
				o.Label,
				nickname,
				strconv.FormatBool(v.IsAnonymous),
				v.VotedAt.UTC().Format(exportTimeLayout),
			})
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("service: write csv: %w", err)
	}
	return nil
}

func (s *SurveyService) ExportResponses(ctx context.Context, surveyID string, w io.Writer) error {
	survey, live, err := s.responses(ctx, surveyID)
	if err != nil {
		return s.fail("export responses", err)
	}
	if err = WriteResponsesCSV(w, survey, live); err != nil {
		return s.fail("export responses", err)
	}
	return nil
}

// WriteResponsesCSV writes one row per response and one column per
// question. Respondent identifiers are never exported.
func WriteResponsesCSV(w io.Writer, s *models.Survey, responses []*models.Response) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("service: write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	header := []string{"response_code", "submitted_at", "completion_time", "is_complete", "quality_score"}
	for _, q := range s.Questions {
		header = append(header, q.Title)
	}
	rows := [][]string{header}
	for _, r := range responses {
		row := []string{
			r.ResponseCode,
			r.SubmittedAt.UTC().Format(exportTimeLayout),
			strconv.Itoa(r.CompletionTime),
			strconv.FormatBool(r.IsComplete),
			strconv.Itoa(r.QualityScore),
		}
		for i := range s.Questions {
			row = append(row, answerCell(&s.Questions[i], r))
		}
		rows = append(rows, row)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("service: write csv: %w", err)
	}
	return nil
}

func answerCell(q *models.Question, r *models.Response) string {
	a, ok := r.Answer(q.ID)
	if !ok {
		return ""
	}
	switch {
	case q.Type == models.SingleChoice:
		return choiceLabel(q, a.ChoiceID)
	case q.Type == models.MultipleChoice:
		labels := make([]string, len(a.ChoiceIDs))
		for i, id := range a.ChoiceIDs {
			labels[i] = choiceLabel(q, id)
		}
		return strings.Join(labels, "; ")
	case q.Type == models.Rating && a.Rating != nil:
		return strconv.Itoa(*a.Rating)
	default:
		return a.Text
	}
}

func choiceLabel(q *models.Question, id string) string {
	for _, c := range q.Choices {
		if c.ID == id {
			return c.Label
		}
	}
	return id
}

// ExportName is the attachment file name for a download.
func ExportName(kind, id string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s.csv", kind, id, now.UTC().Format("20060102"))
}
