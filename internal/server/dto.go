package server

import "duewatch/internal/domain"

type RunRequest struct {
	DryRun bool `json:"dry_run,omitempty"`
}

type StatusResponse struct {
	VaultPath   string         `json:"vault_path"`
	LedgerCount int            `json:"ledger_count"`
	LastEvents  []domain.Event `json:"last_events,omitempty"`
}
