// Package external validates the registry's external token list sources and
// optionally mirrors them under the _external folder.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/idhash"
)

// Store reads external.json and writes mirrored lists.
type Store interface {
	ReadExternal(ctx context.Context) ([]byte, error)
	WriteExternal(ctx context.Context, name string, v any) error
}

// ParseConfig validates and decodes external.json.
func ParseConfig(data []byte) (*domain.ExternalConfig, error) {
	const path = domain.ExternalFileName
	if !gjson.ValidBytes(data) {
		return nil, domain.NewStructuralError(path, "invalid json", nil)
	}
	lists := gjson.GetBytes(data, "externalTokenLists")
	if !lists.IsArray() {
		return nil, domain.NewStructuralError(path, "missing externalTokenLists array", nil)
	}

	seen := make(map[string]struct{})
	var dups []string
	for _, l := range lists.Array() {
		name := l.Get("name").String()
		if _, ok := seen[name]; ok {
			dups = append(dups, name)
		}
		seen[name] = struct{}{}

		ids := l.Get("chainIds")
		if !ids.IsArray() {
			return nil, domain.NewStructuralError(path, fmt.Sprintf("chainIds for %s is not an array", name), nil)
		}
		for _, id := range ids.Array() {
			if id.Type != gjson.Number {
				return nil, domain.NewStructuralError(path, fmt.Sprintf("non-number chainId for %s: %s", name, id.Raw), nil)
			}
		}
	}
	if len(dups) > 0 {
		return nil, domain.NewStructuralError(path, "duplicate token list names: "+strings.Join(dups, ", "), nil)
	}

	var cfg domain.ExternalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, domain.NewStructuralError(path, "decode", err)
	}
	return &cfg, nil
}

// Result is the outcome for one external list.
type Result struct {
	Name  string
	URL   string
	Size  int
	Hash  string
	Saved bool
	Err   error
}

// Report collects results in configuration order.
type Report struct {
	Results []Result
	Elapsed time.Duration
}

// Failed returns the number of lists that could not be fetched or parsed.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// TotalBytes sums the sizes of successful downloads.
func (r *Report) TotalBytes() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n += res.Size
		}
	}
	return n
}

// Checker fetches every configured list concurrently.
type Checker struct {
	store Store
	http  *httpx.Client
	save  bool
	log   logrus.FieldLogger
}

// NewChecker creates a Checker. When save is set each valid list is written
// through store.
func NewChecker(store Store, h *httpx.Client, save bool, log logrus.FieldLogger) *Checker {
	if h == nil {
		h = httpx.NewClient(httpx.WithLogger(log))
	}
	return &Checker{store: store, http: h, save: save, log: log}
}

// Run checks all lists. A structural problem with external.json is returned
// as an error; per-list failures are reported in the Report.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	data, err := c.store.ReadExternal(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	report := &Report{Results: make([]Result, len(cfg.ExternalTokenLists))}
	var g errgroup.Group
	for i, l := range cfg.ExternalTokenLists {
		i, l := i, l
		g.Go(func() error {
			report.Results[i] = c.check(ctx, l)
			return nil
		})
	}
	_ = g.Wait()
	report.Elapsed = time.Since(start)
	return report, nil
}

func (c *Checker) check(ctx context.Context, l domain.ExternalTokenList) Result {
	res := Result{Name: l.Name, URL: l.URL}
	log := c.log.WithField("list", l.Name)
	log.Infof("fetching %s", l.URL)

	body, err := c.http.GetBytes(ctx, l.URL)
	if err != nil {
		res.Err = err
		return res
	}
	res.Size = len(body)
	res.Hash = idhash.ContentHash(body)
	if !json.Valid(body) {
		res.Err = errors.New("invalid json response")
		return res
	}
	if c.save {
		if err := c.store.WriteExternal(ctx, l.Name, json.RawMessage(body)); err != nil {
			res.Err = fmt.Errorf("save: %w", err)
			return res
		}
		res.Saved = true
	}
	return res
}
