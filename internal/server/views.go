package server

import (
	"time"

	"github.com/0xsequence/token-directory/internal/domain"
)

type runView struct {
	RunID      string    `json:"runId"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Chains     int       `json:"chains"`
	Additions  int       `json:"additions"`
	Failures   int       `json:"failures"`
	Committed  bool      `json:"committed"`
	Status     string    `json:"status"`
}

func newRunView(r *domain.RunRecord) runView {
	return runView{
		RunID:      r.RunID,
		Kind:       string(r.Kind),
		Source:     r.Source,
		StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt: time.UnixMilli(r.FinishedAt).UTC(),
		Chains:     r.Chains,
		Additions:  r.Additions,
		Failures:   r.Failures,
		Committed:  r.Committed,
		Status:     r.Status,
	}
}

type snapshotView struct {
	SnapshotID  string    `json:"snapshotId"`
	RunID       string    `json:"runId"`
	Version     string    `json:"version"`
	ContentHash string    `json:"contentHash"`
	TokenCount  int       `json:"tokenCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newSnapshotView(s *domain.ListSnapshot) snapshotView {
	return snapshotView{
		SnapshotID:  s.SnapshotID,
		RunID:       s.RunID,
		Version:     s.Version.String(),
		ContentHash: s.ContentHash,
		TokenCount:  s.TokenCount,
		CreatedAt:   time.UnixMilli(s.CreatedAt).UTC(),
	}
}
