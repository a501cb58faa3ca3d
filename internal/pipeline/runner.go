// Package pipeline runs a source through normalize, merge, version and
// persist for each chain.
package pipeline

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
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/merge"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/storage"
	"github.com/0xsequence/token-directory/internal/versioning"
)

// Options configures a Runner.
type Options struct {
	Registry   *chains.Registry
	Lists      storage.ListStore
	Normalizer *normalize.Normalizer

	// Optional stores
	Runs      storage.RunStore
	Snapshots storage.SnapshotStore

	Standard      string        // erc20 when empty
	Write         bool          // persist; dry run otherwise
	CreateMissing bool          // start from a base list when the file is absent
	ChainDelay    time.Duration // pause between chains
	Log           logrus.FieldLogger
}

// Runner syncs chains from a Source.
type Runner struct {
	opts  Options
	sleep func(context.Context, time.Duration) error
	clock func() time.Time
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Standard == "" {
		opts.Standard = domain.StandardERC20
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(opts.Log)
	}
	return &Runner{
		opts:  opts,
		sleep: httpx.Sleep,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for deterministic timestamps.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// WithSleep replaces the inter-chain delay function.
func (r *Runner) WithSleep(sleep func(context.Context, time.Duration) error) *Runner {
	r.sleep = sleep
	return r
}

// ItemError is a candidate dropped during normalization.
type ItemError struct {
	Address string
	Reason  string
}

// ChainResult is the outcome of syncing one chain.
type ChainResult struct {
	Chain      string
	File       string
	Candidates int
	Additions  []domain.TokenListEntry
	Skipped    []ItemError
	OldVersion *domain.Version
	NewVersion *domain.Version
	Changed    bool
	Written    bool
	Created    bool // list did not exist before
	Err        error
}

// RunResult is the outcome of Run.
type RunResult struct {
	RunID   string
	Source  string
	Write   bool
	Chains  []*ChainResult
	Started time.Time
	Elapsed time.Duration
}

// Failed returns the number of chains that ended in error.
func (r *RunResult) Failed() int {
	n := 0
	for _, c := range r.Chains {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Added returns the number of tokens added across chains.
func (r *RunResult) Added() int {
	n := 0
	for _, c := range r.Chains {
		n += len(c.Additions)
	}
	return n
}

// Run syncs each named chain in order. A chain failing with a transport
// or data error is recorded and the run continues; a structural error or
// cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, names []string, src Source) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString(), Source: src.Name(), Write: r.opts.Write, Started: r.clock()}
	log := r.opts.Log.WithFields(logrus.Fields{"run_id": res.RunID, "source": src.Name()})

	var runErr error
	for i, name := range names {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.ChainDelay); err != nil {
				runErr = err
				break
			}
		}
		cr := r.syncChain(ctx, res.RunID, name, src)
		res.Chains = append(res.Chains, cr)
		if cr.Err != nil {
			if domain.IsStructural(cr.Err) || ctx.Err() != nil {
				runErr = cr.Err
				break
			}
			log.WithField("chain", name).Errorf("sync failed: %v", cr.Err)
		}
	}
	res.Elapsed = r.clock().Sub(res.Started)

	r.record(ctx, res, runErr)
	return res, runErr
}

// SyncChain syncs a single chain outside of a run.
func (r *Runner) SyncChain(ctx context.Context, name string, src Source) (*ChainResult, error) {
	cr := r.syncChain(ctx, "", name, src)
	return cr, cr.Err
}

func (r *Runner) syncChain(ctx context.Context, runID, name string, src Source) *ChainResult {
	file := domain.FileName(r.opts.Standard)
	cr := &ChainResult{Chain: name, File: file}
	log := r.opts.Log.WithFields(logrus.Fields{"chain": name, "file": file, "source": src.Name()})

	chain, ok := r.opts.Registry.Get(name)
	if !ok {
		cr.Err = fmt.Errorf("unknown chain %q", name)
		return cr
	}

	list, hash, err := r.load(ctx, chain, file)
	if err != nil {
		cr.Err = err
		return cr
	}
	if list == nil {
		log.Warn("list not found, skipping")
		return cr
	}
	cr.Created = hash == ""
	cr.OldVersion = list.Version

	raws, err := src.Fetch(ctx, Target{Chain: chain, Standard: r.opts.Standard, Known: merge.Keys(list.Tokens)})
	if err != nil {
		cr.Err = fmt.Errorf("fetch %s: %w", name, err)
		return cr
	}
	cr.Candidates = len(raws)

	candidates := make([]domain.TokenListEntry, 0, len(raws))
	for _, raw := range raws {
		if raw.Standard == "" {
			raw.Standard = r.opts.Standard
		}
		e, err := r.opts.Normalizer.Normalize(ctx, raw, chain.ChainID)
		if err != nil {
			var dq *domain.DataQualityError
			if !errors.As(err, &dq) {
				cr.Err = err
				return cr
			}
			cr.Skipped = append(cr.Skipped, ItemError{Address: dq.Address, Reason: dq.Reason})
			log.WithField("address", dq.Address).Warnf("skipping: %s", dq.Reason)
			continue
		}
		candidates = append(candidates, *e)
	}

	cr.Additions = merge.Additions(list.Tokens, candidates)
	next, changed := versioning.Commit(list, merge.Apply(list, cr.Additions).Tokens, r.clock())
	cr.Changed = changed
	cr.NewVersion = next.Version

	defer func() {
		observability.RecordSync(name, src.Name(), len(cr.Additions), len(cr.Skipped), cr.Written)
	}()

	if !cr.Changed || !r.opts.Write {
		return cr
	}

	newHash, err := r.opts.Lists.Save(ctx, name, file, next, hash)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordWriteConflict()
		}
		cr.Err = fmt.Errorf("save %s/%s: %w", name, file, err)
		return cr
	}
	cr.Written = true
	log.Infof("added %d tokens, version %s", len(cr.Additions), next.Version)

	r.snapshot(ctx, runID, name, file, next, newHash, log)
	return cr
}

// load returns the list and its hash. A missing list yields a base list
// with an empty hash when CreateMissing is set, or nil otherwise.
func (r *Runner) load(ctx context.Context, chain *chains.Chain, file string) (*domain.TokenList, string, error) {
	loaded, err := r.opts.Lists.Load(ctx, chain.Name, file)
	switch {
	case err == nil:
		return loaded.List, loaded.Hash, nil
	case errors.Is(err, storage.ErrNotFound) && r.opts.CreateMissing:
		return domain.NewBaseList(chain.Name, chain.ChainID, r.opts.Standard), "", nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, "", nil
	default:
		return nil, "", err
	}
}

func (r *Runner) snapshot(ctx context.Context, runID, folder, file string, list *domain.TokenList, hash string, log logrus.FieldLogger) {
	if r.opts.Snapshots == nil {
		return
	}
	snap := &domain.ListSnapshot{
		SnapshotID:  idhash.ComputeSnapshotID(folder, file, hash),
		RunID:       runID,
		Folder:      folder,
		File:        file,
		ContentHash: hash,
		TokenCount:  len(list.Tokens),
		CreatedAt:   r.clock().UnixMilli(),
	}
	if list.Version != nil {
		snap.Version = *list.Version
	}
	if err := r.opts.Snapshots.Insert(ctx, snap); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		log.Warnf("record snapshot: %v", err)
	}
}

func (r *Runner) record(ctx context.Context, res *RunResult, runErr error) {
	status := domain.RunStatusOK
	switch {
	case runErr != nil:
		status = domain.RunStatusFailed
	case res.Failed() > 0:
		status = domain.RunStatusPartial
	}
	observability.RecordRun(string(domain.RunKindSync), status, res.Elapsed.Seconds())
	if r.opts.Runs == nil {
		return
	}

	rec := &domain.RunRecord{
		RunID:      res.RunID,
		Kind:       domain.RunKindSync,
		Source:     res.Source,
		StartedAt:  res.Started.UnixMilli(),
		FinishedAt: res.Started.Add(res.Elapsed).UnixMilli(),
		Chains:     len(res.Chains),
		Additions:  res.Added(),
		Committed:  res.Write,
		Status:     status,
	}
	for _, c := range res.Chains {
		rec.Failures += len(c.Skipped)
		if c.Err != nil {
			rec.Failures++
		}
	}
	if err := r.opts.Runs.Insert(context.WithoutCancel(ctx), rec); err != nil {
		r.opts.Log.Warnf("record run: %v", err)
	}
}
