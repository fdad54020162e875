package controller

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
)

// reportCache keeps the most recent reports in memory. Older reports are
// only available from the JSONL sink.
type reportCache struct {
	lru *lru.Cache[string, *orchestrator.Report]
}

func newReportCache(size int) *reportCache {
	if size < 1 {
		size = 1
	}
	c, err := lru.New[string, *orchestrator.Report](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &reportCache{lru: c}
}

func (c *reportCache) add(r *orchestrator.Report) { c.lru.Add(r.ID, r) }

func (c *reportCache) get(id string) (*orchestrator.Report, bool) { return c.lru.Get(id) }

// newest returns cached reports, most recently started first.
func (c *reportCache) newest() []*orchestrator.Report {
	out := c.lru.Values()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
