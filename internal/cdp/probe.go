package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const probeTimeout = 5 * time.Second

// Version is the browser's answer to Browser.getVersion.
type Version struct {
	Product         string `json:"product"`
	ProtocolVersion string `json:"protocolVersion"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

// Probe asks the browser at httpBase for its version over a raw debugger
// websocket. It opens no tab, so it is safe to call while audits run.
func Probe(ctx context.Context, httpBase string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	wsURL, err := browserWSURL(ctx, strings.TrimRight(httpBase, "/"))
	if err != nil {
		return Version{}, fmt.Errorf("probe: browser ws url: %w", err)
	}

	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return Version{}, fmt.Errorf("probe: dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	const id = 1
	req, err := json.Marshal(struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}{ID: id, Method: "Browser.getVersion"})
	if err != nil {
		return Version{}, fmt.Errorf("probe: marshal: %w", err)
	}
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return Version{}, fmt.Errorf("probe: send: %w", err)
	}

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			return Version{}, fmt.Errorf("probe: read: %w", err)
		}
		var resp struct {
			ID     int64   `json:"id"`
			Result Version `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &resp) != nil || resp.ID != id {
			// Events and unrelated replies.
			continue
		}
		if resp.Error != nil {
			return Version{}, fmt.Errorf("probe: Browser.getVersion: %s", resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func browserWSURL(ctx context.Context, httpBase string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
