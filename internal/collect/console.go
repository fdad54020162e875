package collect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// Console records console API calls made while the page loads.
type Console struct {
	browser Browser
	settle  time.Duration
}

func (c *Console) ID() trace.CollectorID { return trace.CollectConsole }

func (c *Console) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	var (
		mu       sync.Mutex
		messages = []trace.ConsoleMessage{}
	)
	before := func(page Page) error {
		page.Listen(func(ev any) {
			e, ok := ev.(*runtime.EventConsoleAPICalled)
			if !ok {
				return
			}
			msg := consoleMessage(e)
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		})
		return nil
	}

	return withPage(ctx, c.browser, trace.CollectConsole, target, before, func(Page) (trace.Block, error) {
		if err := settle(ctx, c.settle); err != nil {
			return nil, err
		}
		mu.Lock()
		defer mu.Unlock()
		out := make([]trace.ConsoleMessage, len(messages))
		copy(out, messages)
		return &trace.ConsoleTraces{Messages: out}, nil
	})
}

func consoleMessage(e *runtime.EventConsoleAPICalled) trace.ConsoleMessage {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		if s := remoteObjectText(arg); s != "" {
			parts = append(parts, s)
		}
	}
	msg := trace.ConsoleMessage{
		Level: string(e.Type),
		Text:  truncateMessage(strings.Join(parts, " "), maxConsoleMessageBytes),
	}
	if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
		msg.URL = e.StackTrace.CallFrames[0].URL
	}
	return msg
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if raw := []byte(o.Value); len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}
	if o.UnserializableValue != "" {
		return string(o.UnserializableValue)
	}
	return o.Description
}
