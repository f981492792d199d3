package models

import (
	"time"
)

// ReportTier identifies the provenance of a generated report
type ReportTier string

const (
	// TierAI is a narrative produced by the generative summarizer
	TierAI ReportTier = "ai"
	// TierFallback is the deterministic statistical report used when the
	// generative call fails
	TierFallback ReportTier = "fallback"
	// TierEmpty is the fixed report emitted for an empty alert batch
	TierEmpty ReportTier = "empty"
)

// Report is an ephemeral summary of one alert batch. It is handed to the
// renderer and mailer and then discarded; only run metadata is persisted.
type Report struct {
	Narrative   string     `json:"narrative"`
	Tier        ReportTier `json:"tier"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// RunRecord is the persisted outcome of one daily summary run
type RunRecord struct {
	ID              string     `json:"id" db:"id"`
	ReportDate      time.Time  `json:"report_date" db:"report_date"`
	WindowStart     time.Time  `json:"window_start" db:"window_start"`
	WindowEnd       time.Time  `json:"window_end" db:"window_end"`
	Trigger         string     `json:"trigger" db:"trigger"` // scheduled, manual
	AlertsProcessed int        `json:"alerts_processed" db:"alerts_processed"`
	ReportTier      ReportTier `json:"report_tier" db:"report_tier"`
	Status          string     `json:"status" db:"status"` // completed, failed
	Error           *string    `json:"error,omitempty" db:"error"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Duration        float64    `json:"duration_seconds" db:"duration_seconds"`
}

// RunFilter for querying run records
type RunFilter struct {
	Status *string `json:"status,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}
