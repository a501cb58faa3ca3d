package featured

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/storage"
)

// ListFile is the list file ranked on every chain.
var ListFile = domain.FileName(domain.StandardERC20)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Ranker   *Ranker
	Registry *chains.Registry
	Lists    storage.ListStore

	// Optional stores
	Volumes storage.VolumeStore
	Runs    storage.RunStore

	Write      bool          // persist changes; dry run otherwise
	ChainDelay time.Duration // pause between chains
	Log        logrus.FieldLogger
}

// Runner ranks several chains in sequence.
type Runner struct {
	opts  RunnerOptions
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Runner{opts: opts, sleep: httpx.Sleep, now: time.Now}
}

// ChainOutcome is the result of one chain.
type ChainOutcome struct {
	Chain   string
	Result  *Result // nil when the chain was skipped or failed
	Written bool
	Skipped string // reason, when skipped
	Err     error
}

// Summary is the result of a Run.
type Summary struct {
	RunID    string
	Write    bool
	Outcomes []ChainOutcome
}

// Failed returns the number of chains that ended in error.
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Run ranks each named chain. Per-chain failures are collected in the
// summary; only context cancellation and structural errors stop the run.
func (r *Runner) Run(ctx context.Context, names []string) (*Summary, error) {
	start := r.now()
	sum := &Summary{RunID: uuid.NewString(), Write: r.opts.Write}
	log := r.opts.Log.WithField("run_id", sum.RunID)

	var runErr error
	for i, name := range names {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.ChainDelay); err != nil {
				runErr = err
				break
			}
		}
		out := r.chain(ctx, name, sum.RunID, log.WithField("chain", name))
		sum.Outcomes = append(sum.Outcomes, out)
		if out.Err != nil {
			if domain.IsStructural(out.Err) || ctx.Err() != nil {
				runErr = out.Err
				break
			}
			log.WithField("chain", name).Errorf("featured failed: %v", out.Err)
		}
	}

	r.record(ctx, sum, start, runErr)
	return sum, runErr
}

func (r *Runner) chain(ctx context.Context, name, runID string, log logrus.FieldLogger) ChainOutcome {
	out := ChainOutcome{Chain: name}
	chain, ok := r.opts.Registry.Get(name)
	if !ok {
		out.Err = fmt.Errorf("unknown chain %q", name)
		return out
	}
	if chain.CoingeckoPlatform == "" {
		out.Skipped = "no price platform"
		return out
	}

	loaded, err := r.opts.Lists.Load(ctx, name, ListFile)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warnf("%s not found, skipping", ListFile)
		out.Skipped = "list not found"
		return out
	}
	if err != nil {
		out.Err = err
		return out
	}

	res, err := r.opts.Ranker.Compute(ctx, chain, loaded.List)
	if err != nil {
		out.Err = fmt.Errorf("rank %s: %w", name, err)
		return out
	}
	out.Result = res
	if res.NothingResolved {
		log.Warn("no tokens resolved, skipping")
		out.Skipped = "nothing resolved"
		return out
	}
	observability.RecordFeatured(name, len(res.Ranked), len(res.Removed), res.FallbackSkipped)

	if r.opts.Volumes != nil {
		obs := res.Observations(runID, r.now().UnixMilli())
		ptrs := make([]*domain.VolumeObservation, len(obs))
		for i := range obs {
			ptrs[i] = &obs[i]
		}
		if err := r.opts.Volumes.InsertBulk(ctx, ptrs); err != nil {
			log.Warnf("record volumes: %v", err)
		}
	}

	if !r.opts.Write || !res.Changed(loaded.List) {
		return out
	}
	if _, err := r.opts.Lists.Save(ctx, name, ListFile, Apply(loaded.List, res), loaded.Hash); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordWriteConflict()
		}
		out.Err = fmt.Errorf("save %s/%s: %w", name, ListFile, err)
		return out
	}
	out.Written = true
	log.Infof("wrote %d ranks", len(res.Ranked))
	return out
}

func (r *Runner) record(ctx context.Context, sum *Summary, start time.Time, runErr error) {
	finished := r.now()
	status := domain.RunStatusOK
	switch {
	case runErr != nil:
		status = domain.RunStatusFailed
	case sum.Failed() > 0:
		status = domain.RunStatusPartial
	}
	observability.RecordRun(string(domain.RunKindFeatured), status, finished.Sub(start).Seconds())
	if r.opts.Runs == nil {
		return
	}

	rec := &domain.RunRecord{
		RunID:      sum.RunID,
		Kind:       domain.RunKindFeatured,
		StartedAt:  start.UnixMilli(),
		FinishedAt: finished.UnixMilli(),
		Chains:     len(sum.Outcomes),
		Failures:   sum.Failed(),
		Committed:  sum.Write,
		Status:     status,
	}
	for _, o := range sum.Outcomes {
		if o.Result != nil {
			rec.Additions += len(o.Result.Ranked)
		}
	}
	if err := r.opts.Runs.Insert(context.WithoutCancel(ctx), rec); err != nil {
		r.opts.Log.Warnf("record run: %v", err)
	}
}
