package model

import "time"

// DispatchRecord is one line of the dispatch audit log.
type DispatchRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	JobID     string    `json:"jobId"`
	Operator  string    `json:"operator,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"-"`
	Owner  string   `json:"owner,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
	Secret string   `json:"secret" validate:"omitempty,min=8"`
	Owner  string   `json:"-"`
}
