package domain

import "github.com/shopspring/decimal"

// RunKind identifies which job produced a run record.
type RunKind string

const (
	RunKindSync     RunKind = "sync"
	RunKindFeatured RunKind = "featured"
	RunKindReindex  RunKind = "reindex"
	RunKindExternal RunKind = "external"
)

// Run statuses.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// RunRecord summarizes one job execution.
// Corresponds to sync_runs table in PostgreSQL.
type RunRecord struct {
	RunID      string  // uuid
	Kind       RunKind // sync | featured | reindex | external
	Source     string  // adapter name, "" for non-sync jobs
	StartedAt  int64   // ms
	FinishedAt int64   // ms
	Chains     int     // chains processed
	Additions  int     // tokens appended (sync) or ranks assigned (featured)
	Failures   int     // items skipped or failed
	Committed  bool    // whether results were written
	Status     string
}

// ListSnapshot records one persisted version of a list file.
// Corresponds to list_snapshots table in PostgreSQL.
type ListSnapshot struct {
	SnapshotID  string // deterministic hash of folder|file|content hash
	RunID       string
	Folder      string
	File        string
	Version     Version
	ContentHash string // hex sha256 of written bytes
	TokenCount  int
	CreatedAt   int64 // ms
}

// VolumeObservation is one market-volume reading used by the featured ranker.
// Corresponds to volume_observations table in ClickHouse.
type VolumeObservation struct {
	RunID      string
	Chain      string
	CoinID     string
	Address    string // lowercase
	Symbol     string
	VolumeUSD  decimal.Decimal
	Rank       int // 0 when not ranked
	ObservedAt int64 // ms
}
