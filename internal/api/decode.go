package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"discuss/internal/models"
)

type rawPage struct {
	Messages   []models.Message `json:"messages"`
	HasMore    bool             `json:"hasMore"`
	TotalCount *int             `json:"totalCount"`
	Total      *int             `json:"total"`
}

// DecodePage normalizes a messages response. The page may come wrapped in
// {"data": {...}} or bare; missing fields default to an empty page.
func DecodePage(body []byte) (models.Page, error) {
	obj, err := unwrapData(body)
	if err != nil {
		return models.Page{}, err
	}

	var raw rawPage
	if err := json.Unmarshal(obj, &raw); err != nil {
		return models.Page{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	page := models.Page{
		Messages: raw.Messages,
		HasMore:  raw.HasMore,
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	switch {
	case raw.TotalCount != nil:
		page.Total = *raw.TotalCount
	case raw.Total != nil:
		page.Total = *raw.Total
	}
	return page, nil
}

func decodeMessage(body []byte) (*models.Message, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	obj, err := unwrapData(body)
	if err != nil {
		return nil, err
	}
	var msg models.Message
	if err := json.Unmarshal(obj, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if msg.ID == 0 {
		return nil, nil
	}
	return &msg, nil
}

// unwrapData returns the object under "data" when present, else body.
func unwrapData(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedResponse)
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &outer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if data, ok := outer["data"]; ok {
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '{' {
			return data, nil
		}
	}
	return trimmed, nil
}
