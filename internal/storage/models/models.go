package models

import (
	"encoding/json"
	"time"
)

// ReportRecord is a stored strategy run. Payload holds the report or error
// envelope exactly as it was returned to the caller.
type ReportRecord struct {
	ID           string          `json:"id"`
	Domain       string          `json:"domain"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AdCopyRecord struct {
	ID                 string    `json:"id"`
	Product            string    `json:"product"`
	Company            string    `json:"company"`
	Topic              string    `json:"topic"`
	RawText            string    `json:"raw_text"`
	Caption            string    `json:"caption"`
	Hashtags           string    `json:"hashtags"`
	TextOnImage        string    `json:"text_on_image"`
	DescriptionOfImage string    `json:"description_of_image"`
	CreatedAt          time.Time `json:"created_at"`
}
