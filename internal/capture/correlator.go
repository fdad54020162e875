package capture

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// ErrDrained is returned when events arrive after the session ended.
var ErrDrained = errors.New("correlator drained")

const shardCount = 32

type partial struct {
	request       *trace.RequestFacet
	response      *trace.ResponseFacet
	encoded       *int64
	body          *BodyPayload
	failure       *FailurePayload
	redirects     int
	redirectBytes int64
}

func (p *partial) ready() bool {
	if p.failure != nil {
		return p.request != nil
	}
	return p.request != nil && p.response != nil && p.encoded != nil && p.body != nil
}

type shard struct {
	mu       sync.Mutex
	partials map[string]*partial
}

// Correlator rebuilds per-request records from browser events that arrive
// out of order. Events for one request id are applied one at a time; events
// for different ids only contend when they hash to the same shard.
type Correlator struct {
	shards [shardCount]shard

	doneMu    sync.Mutex
	done      []trace.Record
	finalized map[string]struct{}

	drained atomic.Bool
	gaps    atomic.Int64
}

func NewCorrelator() *Correlator {
	c := &Correlator{finalized: make(map[string]struct{})}
	for i := range c.shards {
		c.shards[i].partials = make(map[string]*partial)
	}
	return c
}

func (c *Correlator) shard(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &c.shards[h.Sum32()%shardCount]
}

// Observe merges p into the partial record for id, creating it if needed.
// It reports whether the record now holds enough facets to be finalized.
// Events for ids that were already finalized, and any event after Drain,
// are dropped.
func (c *Correlator) Observe(id string, p Payload) bool {
	if id == "" || p == nil || c.drained.Load() {
		return false
	}

	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Drain may have swept this shard since the check above.
	if c.drained.Load() {
		return false
	}

	part, ok := sh.partials[id]
	if !ok {
		if c.isFinalized(id) {
			slog.Debug("Dropping event for finalized request", "request_id", id, "kind", p.Kind())
			return false
		}
		part = &partial{}
		sh.partials[id] = part
	}
	p.merge(part)
	return part.ready()
}

// Finalize freezes whatever facets are present for id into a Record and
// appends it to the finalized sequence. Missing sizes fall back to the
// declared content-length and then to zero. It returns false when id has no
// partial record.
func (c *Correlator) Finalize(id string) (trace.Record, bool) {
	sh := c.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Drain may have swept this shard since the check above.
	if c.drained.Load() {
		return trace.Record{}, false
	}

	part, ok := sh.partials[id]
	if !ok {
		return trace.Record{}, false
	}
	delete(sh.partials, id)

	rec := buildRecord(id, part)

	c.doneMu.Lock()
	c.done = append(c.done, rec)
	c.finalized[id] = struct{}{}
	c.doneMu.Unlock()

	return rec, true
}

// Drain ends the session. Partial records that already carry a request and
// a response are finalized best-effort and flagged Partial; the rest are
// discarded and counted as gaps. It returns every finalized record in
// finalization order together with the gap count. Calls after the first
// return nothing.
func (c *Correlator) Drain() ([]trace.Record, int) {
	if !c.drained.CompareAndSwap(false, true) {
		return nil, 0
	}

	var late []trace.Record
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for id, part := range sh.partials {
			if part.request == nil || part.response == nil {
				c.gaps.Add(1)
				continue
			}
			rec := buildRecord(id, part)
			rec.Partial = true
			late = append(late, rec)
		}
		sh.partials = make(map[string]*partial)
		sh.mu.Unlock()
	}

	sort.Slice(late, func(i, j int) bool {
		ti, tj := late[i].Request.Timestamp, late[j].Request.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return late[i].RequestID < late[j].RequestID
	})

	c.doneMu.Lock()
	for _, rec := range late {
		c.done = append(c.done, rec)
		c.finalized[rec.RequestID] = struct{}{}
	}
	out := make([]trace.Record, len(c.done))
	copy(out, c.done)
	c.doneMu.Unlock()

	gaps := int(c.gaps.Load())
	slog.Info("Correlator drained", "records", len(out), "partial", len(late), "gaps", gaps)
	return out, gaps
}

// Pending returns the number of partial records not yet finalized.
func (c *Correlator) Pending() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		n += len(sh.partials)
		sh.mu.Unlock()
	}
	return n
}

func (c *Correlator) isFinalized(id string) bool {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	_, ok := c.finalized[id]
	return ok
}

func buildRecord(id string, p *partial) trace.Record {
	rec := trace.Record{RequestID: id}
	if p.request != nil {
		rec.Request = *p.request
		rec.Request.Headers = cloneHeaders(p.request.Headers)
	}
	if p.response != nil {
		rec.Response = *p.response
		rec.Response.Headers = cloneHeaders(p.response.Headers)
	}

	declared := trace.ContentLength(rec.Response.Headers)

	switch {
	case p.encoded != nil && *p.encoded > 0:
		rec.Transfer.CompressedSize = *p.encoded
	default:
		rec.Transfer.CompressedSize = declared
	}

	switch {
	case p.body != nil && p.body.Err == nil:
		rec.Response.UncompressedSize = p.body.Size
	case p.body != nil:
		slog.Warn("Failed to read response body, using fallback size",
			"request_id", id,
			"url", truncateURL(rec.Request.URL),
			"fallback_bytes", declared,
			"error", p.body.Err)
		rec.Response.UncompressedSize = declared
	default:
		rec.Response.UncompressedSize = declared
	}

	rec.Transfer.Redirects = p.redirects
	rec.Transfer.RedirectBytes = p.redirectBytes

	if p.failure != nil {
		rec.Failed = true
		rec.FailureReason = p.failure.Reason
	}
	return rec
}

func cloneHeaders(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
