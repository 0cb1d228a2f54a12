package serve

import "github.com/everydev1618/rigel"

// --- API Request Types ---

// SolveRequest is the body of POST /api/solve.
type SolveRequest struct {
	Problem string `json:"problem"`
	// Runs defaults to the document's rounds
	Runs int `json:"runs,omitempty"`
}

// --- API Response Types ---

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

// RunListResponse is the body of GET /api/runs.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RoleResponse is the API representation of a loaded role.
type RoleResponse struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Goal        string   `json:"goal"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ConfigResponse describes the loaded pipeline document.
type ConfigResponse struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Summary     string         `json:"summary"`
	Rounds      int            `json:"rounds"`
	Selection   string         `json:"selection"`
	Verify      bool           `json:"verify"`
	Roles       []RoleResponse `json:"roles"`
}

// StatsResponse holds server statistics.
type StatsResponse struct {
	RunStats
	rigel.Usage
	Subscribers int    `json:"subscribers"`
	Uptime      string `json:"uptime"`
}
