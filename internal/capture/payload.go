package capture

import (
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// EventKind identifies which browser event a payload came from.
type EventKind int

const (
	KindRequest EventKind = iota
	KindResponse
	KindLoadingFinished
	KindBody
	KindRedirect
	KindFailure
)

func (k EventKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindLoadingFinished:
		return "loading_finished"
	case KindBody:
		return "body"
	case KindRedirect:
		return "redirect"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Payload is one facet of a request observed by the correlator. Each kind
// writes fields no other kind touches, so merging is order independent.
type Payload interface {
	Kind() EventKind
	merge(p *partial)
}

// RequestPayload carries the request facet. For redirect chains the facet
// with the latest timestamp wins; equal timestamps fall back to URL and
// method order.
type RequestPayload struct {
	Facet trace.RequestFacet
}

func (RequestPayload) Kind() EventKind { return KindRequest }

func (r RequestPayload) merge(p *partial) {
	if p.request == nil || laterRequest(r.Facet, *p.request) {
		f := r.Facet
		p.request = &f
	}
}

// ResponsePayload carries the response facet, including the protocol version.
// The latest timestamp wins, with the same kind of tie-break as requests.
type ResponsePayload struct {
	Facet trace.ResponseFacet
}

func (ResponsePayload) Kind() EventKind { return KindResponse }

func (r ResponsePayload) merge(p *partial) {
	if p.response == nil || laterResponse(r.Facet, *p.response) {
		f := r.Facet
		p.response = &f
	}
}

func laterRequest(a, b trace.RequestFacet) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.URL != b.URL {
		return a.URL > b.URL
	}
	return a.Method > b.Method
}

func laterResponse(a, b trace.ResponseFacet) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.Status != b.Status {
		return a.Status > b.Status
	}
	if a.Protocol != b.Protocol {
		return a.Protocol > b.Protocol
	}
	return a.RemoteAddress > b.RemoteAddress
}

// LoadingFinishedPayload carries the encoded byte length from the completion
// event.
type LoadingFinishedPayload struct {
	EncodedLength int64
}

func (LoadingFinishedPayload) Kind() EventKind { return KindLoadingFinished }

func (l LoadingFinishedPayload) merge(p *partial) {
	n := l.EncodedLength
	p.encoded = &n
}

// BodyPayload is the outcome of reading the response body. Err is set when
// the browser could not return it, which is common for redirects.
type BodyPayload struct {
	Size int64
	Err  error
}

func (BodyPayload) Kind() EventKind { return KindBody }

func (b BodyPayload) merge(p *partial) {
	v := b
	p.body = &v
}

// RedirectPayload records one redirect hop of the request.
type RedirectPayload struct {
	EncodedLength int64
}

func (RedirectPayload) Kind() EventKind { return KindRedirect }

func (r RedirectPayload) merge(p *partial) {
	p.redirects++
	if r.EncodedLength > 0 {
		p.redirectBytes += r.EncodedLength
	}
}

// FailurePayload marks the request as terminally failed.
type FailurePayload struct {
	Reason   string
	Canceled bool
}

func (FailurePayload) Kind() EventKind { return KindFailure }

func (f FailurePayload) merge(p *partial) {
	v := f
	p.failure = &v
}
