package trace

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RequestFacet is the request side of a network transaction.
type RequestFacet struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ResourceType string            `json:"resource_type"`
	Headers      map[string]string `json:"headers,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ResponseFacet is the response side of a network transaction.
type ResponseFacet struct {
	Status            int               `json:"status"`
	Protocol          string            `json:"protocol,omitempty"`
	MimeType          string            `json:"mime_type,omitempty"`
	RemoteAddress     string            `json:"remote_address,omitempty"`
	FromServiceWorker bool              `json:"from_service_worker,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	UncompressedSize  int64             `json:"uncompressed_size"`
	Timestamp         time.Time         `json:"timestamp"`
}

// TransferFacet holds the bytes that crossed the wire.
type TransferFacet struct {
	CompressedSize int64 `json:"compressed_size"`
	RedirectBytes  int64 `json:"redirect_bytes,omitempty"`
	Redirects      int   `json:"redirects,omitempty"`
}

// Record is one finalized network transaction. Records are values and are
// never modified after the correlator hands them out.
type Record struct {
	RequestID     string        `json:"request_id"`
	Request       RequestFacet  `json:"request"`
	Response      ResponseFacet `json:"response"`
	Transfer      TransferFacet `json:"transfer"`
	Failed        bool          `json:"failed,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Partial       bool          `json:"partial,omitempty"`
}

// TransferSize is the compressed size, or the uncompressed size when the
// protocol reported no encoded bytes.
func (r Record) TransferSize() int64 {
	if r.Transfer.CompressedSize > 0 {
		return r.Transfer.CompressedSize
	}
	return r.Response.UncompressedSize
}

// Host returns the lower-cased host of the request URL.
func (r Record) Host() string {
	u, err := url.Parse(r.Request.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Header looks up a response header case-insensitively.
func (r Record) Header(name string) string {
	return lookupHeader(r.Response.Headers, name)
}

// IsDataURL reports whether the request never touched the network.
func (r Record) IsDataURL() bool {
	return strings.HasPrefix(r.Request.URL, "data:") || strings.HasPrefix(r.Request.URL, "blob:")
}

// ContentLength parses the declared content-length header. Missing or
// malformed values yield 0.
func ContentLength(headers map[string]string) int64 {
	v := lookupHeader(headers, "content-length")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func lookupHeader(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
