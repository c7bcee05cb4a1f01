package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted record of one pipeline invocation.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Report    *RunReport `json:"report,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LeadStatus describes the outcome of a single lead within a run.
type LeadStatus string

const (
	LeadStatusSucceeded LeadStatus = "succeeded"
	LeadStatusFailed    LeadStatus = "failed"
	LeadStatusSkipped   LeadStatus = "skipped"
)

// LeadResult holds the per-lead outcome of a run.
type LeadResult struct {
	LeadID   string     `json:"lead_id,omitempty"`
	Business string     `json:"business"`
	Status   LeadStatus `json:"status"`
	Reviews  int        `json:"reviews"`
	Duration int64      `json:"duration_ms"`
	Error    string     `json:"error,omitempty"`
}

// RunReport is the aggregate outcome of a pipeline run.
type RunReport struct {
	TotalLeads  int          `json:"total_leads"`
	Queued      int          `json:"queued"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []LeadResult `json:"results,omitempty"`
	TotalTokens int64        `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
	Duration    int64        `json:"duration_ms"`
}
