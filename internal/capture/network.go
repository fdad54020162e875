package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

var errNoBodyFetcher = errors.New("response body unavailable")

// BodyFetcher returns the decoded response body of a finished request.
type BodyFetcher func(ctx context.Context, id network.RequestID) ([]byte, error)

// NetworkTap turns CDP network events into correlator events. Its handlers
// run on the browser's event loop, so body reads are done on separate
// goroutines.
type NetworkTap struct {
	ctx     context.Context
	streams *Streams
	getBody BodyFetcher
	timeout time.Duration

	wg sync.WaitGroup
}

func NewNetworkTap(ctx context.Context, streams *Streams, getBody BodyFetcher) *NetworkTap {
	return &NetworkTap{ctx: ctx, streams: streams, getBody: getBody, timeout: 10 * time.Second}
}

// Handle dispatches a raw CDP event; it is suitable for chromedp.ListenTarget.
func (t *NetworkTap) Handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.OnRequestWillBeSent(e)
	case *network.EventResponseReceived:
		t.OnResponseReceived(e)
	case *network.EventLoadingFinished:
		t.OnLoadingFinished(e)
	case *network.EventLoadingFailed:
		t.OnLoadingFailed(e)
	}
}

// OnRequestWillBeSent emits the request facet. Chrome reuses the request id
// across redirects and reports the previous hop's response here, which is
// recorded as a redirect.
func (t *NetworkTap) OnRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	id := string(ev.RequestID)
	if ev.RedirectResponse != nil {
		t.send(id, RedirectPayload{EncodedLength: int64(ev.RedirectResponse.EncodedDataLength)})
	}
	if ev.Request == nil {
		return
	}
	t.send(id, RequestPayload{Facet: trace.RequestFacet{
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		ResourceType: string(ev.Type),
		Headers:      headerMapToStringMap(ev.Request.Headers),
		Timestamp:    monotonic(ev.Timestamp),
	}})
}

func (t *NetworkTap) OnResponseReceived(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}
	r := ev.Response
	remote := r.RemoteIPAddress
	if remote != "" && r.RemotePort > 0 {
		remote = fmt.Sprintf("%s:%d", remote, r.RemotePort)
	}
	t.send(string(ev.RequestID), ResponsePayload{Facet: trace.ResponseFacet{
		Status:            int(r.Status),
		Protocol:          r.Protocol,
		MimeType:          r.MimeType,
		RemoteAddress:     remote,
		FromServiceWorker: r.FromServiceWorker,
		Headers:           headerMapToStringMap(r.Headers),
		Timestamp:         monotonic(ev.Timestamp),
	}})
}

// OnLoadingFinished emits the encoded length and starts the body read.
func (t *NetworkTap) OnLoadingFinished(ev *network.EventLoadingFinished) {
	id := ev.RequestID
	t.send(string(id), LoadingFinishedPayload{EncodedLength: int64(ev.EncodedDataLength)})

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if t.getBody == nil {
			t.send(string(id), BodyPayload{Err: errNoBodyFetcher})
			return
		}
		ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
		defer cancel()
		body, err := t.getBody(ctx, id)
		if err != nil {
			slog.Debug("Failed to get response body", "request_id", id, "error", err)
			t.send(string(id), BodyPayload{Err: err})
			return
		}
		t.send(string(id), BodyPayload{Size: int64(len(body))})
	}()
}

func (t *NetworkTap) OnLoadingFailed(ev *network.EventLoadingFailed) {
	t.send(string(ev.RequestID), FailurePayload{Reason: ev.ErrorText, Canceled: ev.Canceled})
}

// Wait blocks until every body read started so far has reported.
func (t *NetworkTap) Wait() {
	t.wg.Wait()
}

func (t *NetworkTap) send(id string, p Payload) {
	err := t.streams.Send(t.ctx, Event{RequestID: id, Payload: p})
	if err != nil && !errors.Is(err, ErrDrained) {
		slog.Debug("Dropped network event", "request_id", id, "kind", p.Kind(), "error", err)
	}
}

func monotonic(ts *cdp.MonotonicTime) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
