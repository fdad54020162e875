package trace

import (
	"sort"
	"time"
)

// CollectorID names the collector that produced a side-channel block.
type CollectorID string

const (
	CollectTransfer   CollectorID = "transfercollect"
	CollectServer     CollectorID = "servercollect"
	CollectScreenshot CollectorID = "screenshotcollect"
	CollectCSS        CollectorID = "csscollect"
	CollectFonts      CollectorID = "fontscollect"
	CollectConsole    CollectorID = "consolecollect"
	CollectAnimations CollectorID = "animationscollect"
)

// Block is the output of one collector. Only the types in this package
// implement it.
type Block interface {
	Collector() CollectorID
	attach(s *Snapshot)
}

// Snapshot is the collected view of one page session. Blocks that a
// collector failed to produce are nil.
type Snapshot struct {
	URL         string    `json:"url"`
	CollectedAt time.Time `json:"collected_at"`

	Transfer   *TransferTraces   `json:"transfer,omitempty"`
	Server     *ServerTraces     `json:"server,omitempty"`
	Screenshot *ScreenshotTraces `json:"screenshot,omitempty"`
	CSS        *CSSTraces        `json:"css,omitempty"`
	Fonts      *FontTraces       `json:"fonts,omitempty"`
	Console    *ConsoleTraces    `json:"console,omitempty"`
	Animations *AnimationTraces  `json:"animations,omitempty"`
}

// NewSnapshot merges blocks into a snapshot. Nil blocks are ignored; a later
// block for the same collector replaces an earlier one.
func NewSnapshot(pageURL string, collectedAt time.Time, blocks ...Block) Snapshot {
	s := Snapshot{URL: pageURL, CollectedAt: collectedAt}
	for _, b := range blocks {
		if b == nil {
			continue
		}
		b.attach(&s)
	}
	return s
}

// Has reports whether the block for id is present.
func (s Snapshot) Has(id CollectorID) bool {
	switch id {
	case CollectTransfer:
		return s.Transfer != nil
	case CollectServer:
		return s.Server != nil
	case CollectScreenshot:
		return s.Screenshot != nil
	case CollectCSS:
		return s.CSS != nil
	case CollectFonts:
		return s.Fonts != nil
	case CollectConsole:
		return s.Console != nil
	case CollectAnimations:
		return s.Animations != nil
	}
	return false
}

// Present lists the collectors whose blocks are present, sorted.
func (s Snapshot) Present() []CollectorID {
	all := []CollectorID{CollectTransfer, CollectServer, CollectScreenshot, CollectCSS, CollectFonts, CollectConsole, CollectAnimations}
	out := make([]CollectorID, 0, len(all))
	for _, id := range all {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Records returns the transfer records, or nil when the block is absent.
func (s Snapshot) Records() []Record {
	if s.Transfer == nil {
		return nil
	}
	return s.Transfer.Records
}
