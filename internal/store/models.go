package store

import "time"

type EventName string

const (
	EventExposure   EventName = "experiment_exposure"
	EventConversion EventName = "experiment_conversion"
)

type Event struct {
	ID           int64     `json:"id"`
	Name         EventName `json:"name"`
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Metric       string    `json:"metric,omitempty"` // Conversions only
	Value        float64   `json:"value,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Page         string    `json:"page,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
