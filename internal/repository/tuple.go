package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jaam8/surbate/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

// Tuples store the aggregate as a JSON document in the last field; the
// leading fields exist only for the indexes.
const docField = 4

const (
	statusOK        = "ok"
	statusConflict  = "conflict"
	statusDuplicate = "duplicate"
	statusMissing   = "missing"
)

var errMalformedTuple = errors.New("repository: malformed tuple")

func pollTuple(p *models.Poll) ([]interface{}, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("repository: json marshal error: %w", err)
	}
	return []interface{}{p.ID, p.Version, string(p.Status), p.IsDeleted, string(doc)}, nil
}

func surveyTuple(s *models.Survey) ([]interface{}, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("repository: json marshal error: %w", err)
	}
	return []interface{}{s.ID, s.Version, string(s.Status), s.IsDeleted, string(doc)}, nil
}

func responseTuple(r *models.Response) ([]interface{}, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("repository: json marshal error: %w", err)
	}
	return []interface{}{r.ID, r.SurveyID, DedupeKey(r), r.ResponseCode, string(doc)}, nil
}

// DedupeKey is the value of the unique (survey_id, dedupe_key) index. A
// soft-deleted response no longer blocks its respondent.
func DedupeKey(r *models.Response) string {
	if r.IsDeleted {
		return "deleted:" + r.ID
	}
	return r.RespondentID
}

func decodeTuple(raw interface{}, out interface{}) error {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) <= docField {
		return errMalformedTuple
	}
	doc, ok := tuple[docField].(string)
	if !ok {
		return errMalformedTuple
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("repository: failed to unmarshal document: %w", err)
	}
	return nil
}

// warnTruncated logs when a status listing filled the select limit.
func warnTruncated(l *zap.Logger, space, status string, n int) {
	if n < int(listLimit) {
		return
	}
	l.Warn("list truncated at select limit",
		zap.String("space", space),
		zap.String("status", status),
		zap.Uint32("limit", listLimit))
}

func evalStatus(resp *tarantool.Response) (string, error) {
	if resp == nil || len(resp.Data) == 0 {
		return "", errMalformedTuple
	}
	status, ok := resp.Data[0].(string)
	if !ok {
		return "", errMalformedTuple
	}
	return status, nil
}

func statusError(status string, notFound error) error {
	switch status {
	case statusOK:
		return nil
	case statusConflict:
		return models.ErrVersionConflict
	case statusDuplicate:
		return models.ErrDuplicateResponse
	case statusMissing:
		return notFound
	default:
		return fmt.Errorf("repository: unknown script status %q", status)
	}
}

// casScript replaces a document only if its stored version still matches.
const casScript = `
local space_name, expected, tuple = ...
local space = box.space[space_name]
box.begin()
local current = space:get(tuple[1])
if current == nil then
    box.rollback()
    return 'missing'
end
if current[2] ~= expected then
    box.rollback()
    return 'conflict'
end
space:replace(tuple)
box.commit()
return 'ok'
`

// insertResponseScript inserts a response and advances its survey in one
// transaction. A live response from the same respondent wins.
const insertResponseScript = `
local expected, survey, response = ...
box.begin()
local current = box.space.surveys:get(survey[1])
if current == nil then
    box.rollback()
    return 'missing'
end
if current[2] ~= expected then
    box.rollback()
    return 'conflict'
end
if box.space.responses.index.respondent:get({response[2], response[3]}) ~= nil then
    box.rollback()
    return 'duplicate'
end
box.space.responses:insert(response)
box.space.surveys:replace(survey)
box.commit()
return 'ok'
`

const replaceResponseScript = `
local expected, survey, response = ...
box.begin()
local current = box.space.surveys:get(survey[1])
if current == nil then
    box.rollback()
    return 'missing'
end
if current[2] ~= expected then
    box.rollback()
    return 'conflict'
end
box.space.responses:replace(response)
box.space.surveys:replace(survey)
box.commit()
return 'ok'
`
