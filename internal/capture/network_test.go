package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

func monoAt(offset time.Duration) *cdp.MonotonicTime {
	ts := cdp.MonotonicTime(baseTime.Add(offset))
	return &ts
}

func runTap(t *testing.T, getBody BodyFetcher, events ...any) ([]trace.Record, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	streams := NewStreams(64)
	c := NewCorrelator()
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, streams) }()

	tap := NewNetworkTap(ctx, streams, getBody)
	for _, ev := range events {
		tap.Handle(ev)
	}
	tap.Wait()
	streams.Close()
	require.NoError(t, <-done)

	records, gaps := c.Drain()
	return records, gaps
}

func TestNetworkTapBuildsRecords(t *testing.T) {
	bodies := map[network.RequestID][]byte{"1": make([]byte, 5000)}
	getBody := func(_ context.Context, id network.RequestID) ([]byte, error) {
		if b, ok := bodies[id]; ok {
			return b, nil
		}
		return nil, errors.New("No resource with given identifier found")
	}

	records, gaps := runTap(t, getBody,
		&network.EventLoadingFinished{RequestID: "1", EncodedDataLength: 1200},
		&network.EventResponseReceived{RequestID: "1", Type: network.ResourceTypeScript, Timestamp: monoAt(30 * time.Millisecond), Response: &network.Response{
			URL:               "https://example.com/app.js",
			Status:            200,
			Protocol:          "h2",
			MimeType:          "application/javascript",
			RemoteIPAddress:   "93.184.216.34",
			RemotePort:        443,
			Headers:           network.Headers{"content-encoding": "br", "x-count": 3},
			EncodedDataLength: 300,
		}},
		&network.EventRequestWillBeSent{RequestID: "1", Type: network.ResourceTypeScript, Timestamp: monoAt(0), Request: &network.Request{
			URL:     "https://example.com/app.js",
			Method:  "GET",
			Headers: network.Headers{"Accept": "*/*"},
		}},
	)

	assert.Zero(t, gaps)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "1", rec.RequestID)
	assert.Equal(t, "Script", rec.Request.ResourceType)
	assert.Equal(t, "93.184.216.34:443", rec.Response.RemoteAddress)
	assert.EqualValues(t, 1200, rec.Transfer.CompressedSize)
	assert.EqualValues(t, 5000, rec.Response.UncompressedSize)
	assert.Equal(t, map[string]string{"content-encoding": "br"}, rec.Response.Headers)
	assert.False(t, rec.Partial)
}

func TestNetworkTapRedirectAndBodyFailure(t *testing.T) {
	getBody := func(context.Context, network.RequestID) ([]byte, error) {
		// The browser answers after both request events have been queued.
		time.Sleep(50 * time.Millisecond)
		return nil, errors.New("No data found for resource with given identifier")
	}

	records, _ := runTap(t, getBody,
		&network.EventRequestWillBeSent{RequestID: "r", Type: network.ResourceTypeDocument, Timestamp: monoAt(0), Request: &network.Request{URL: "http://example.com/", Method: "GET"}},
		&network.EventRequestWillBeSent{
			RequestID:        "r",
			Type:             network.ResourceTypeDocument,
			Timestamp:        monoAt(50 * time.Millisecond),
			Request:          &network.Request{URL: "https://example.com/", Method: "GET"},
			RedirectResponse: &network.Response{Status: 301, EncodedDataLength: 180},
		},
		&network.EventResponseReceived{RequestID: "r", Timestamp: monoAt(90 * time.Millisecond), Response: &network.Response{
			Status:  200,
			Headers: network.Headers{"Content-Length": "4096"},
		}},
		&network.EventLoadingFinished{RequestID: "r", EncodedDataLength: 0},
	)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "https://example.com/", rec.Request.URL)
	assert.Equal(t, 1, rec.Transfer.Redirects)
	assert.EqualValues(t, 180, rec.Transfer.RedirectBytes)
	assert.EqualValues(t, 4096, rec.Transfer.CompressedSize)
	assert.EqualValues(t, 4096, rec.Response.UncompressedSize)
}

func TestNetworkTapLoadingFailed(t *testing.T) {
	records, gaps := runTap(t, nil,
		&network.EventRequestWillBeSent{RequestID: "f", Type: network.ResourceTypeImage, Timestamp: monoAt(0), Request: &network.Request{URL: "https://cdn.example.com/x.png", Method: "GET"}},
		&network.EventLoadingFailed{RequestID: "f", ErrorText: "net::ERR_NAME_NOT_RESOLVED"},
		&network.EventRequestWillBeSent{RequestID: "orphan", Timestamp: monoAt(0), Request: &network.Request{URL: "https://example.com/slow", Method: "GET"}},
	)

	assert.Equal(t, 1, gaps)
	require.Len(t, records, 1)
	assert.True(t, records[0].Failed)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", records[0].FailureReason)
	assert.Zero(t, records[0].Transfer.CompressedSize)
}
