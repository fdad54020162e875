package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

// Summary is the webhook payload for a finished run.
type Summary struct {
	ReportID   string             `json:"report_id"`
	URL        string             `json:"url"`
	Score      *float64           `json:"score"`
	Categories map[string]float64 `json:"categories"`
	Failed     []string           `json:"failed_audits"`
	Collectors map[string]string  `json:"collectors"`
}

// SummaryOf condenses a report. Failed lists scored audits that did not pass,
// sorted.
func SummaryOf(r *orchestrator.Report) Summary {
	s := Summary{
		ReportID:   r.ID,
		URL:        r.URL,
		Score:      r.Score,
		Categories: make(map[string]float64, len(r.Categories)),
		Failed:     []string{},
		Collectors: make(map[string]string, len(r.Collectors)),
	}
	for name, c := range r.Categories {
		if c.Scored {
			s.Categories[string(name)] = c.Score
		}
	}
	for _, res := range r.Results() {
		if _, scored := res.Value(); scored && !res.Meta.Passed {
			s.Failed = append(s.Failed, res.Meta.ID)
		}
	}
	sort.Strings(s.Failed)
	for id, st := range r.Collectors {
		s.Collectors[string(id)] = st.Status
	}
	return s
}

// Message renders the summary as one line of text.
func (s Summary) Message() string {
	score := "n/a"
	if s.Score != nil {
		score = fmt.Sprintf("%.0f", *s.Score*100)
	}
	msg := fmt.Sprintf("ecoaudit %s scored %s/100", s.URL, score)
	if len(s.Failed) > 0 {
		msg += " (failed: " + strings.Join(s.Failed, ", ") + ")"
	}
	return msg
}

// Notifier posts run summaries to a webhook.
type Notifier struct {
	endpoint string
	format   string
	client   *http.Client
}

func NewNotifier(endpoint, format string, client *http.Client) *Notifier {
	if format == "" {
		format = FormatJSON
	}
	return &Notifier{endpoint: endpoint, format: format, client: client}
}

// Notify delivers s as JSON or as a plain text message.
func (n *Notifier) Notify(ctx context.Context, s Summary) error {
	if n.format == FormatText {
		return Send(ctx, n.client, n.endpoint, s.Message())
	}
	return PostJSON(ctx, n.client, n.endpoint, s)
}

// Send sends a plain text message to the endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return post(ctx, client, endpoint, "text/plain", strings.NewReader(message))
}

// PostJSON sends v as a JSON document to the endpoint using HTTP POST.
func PostJSON(ctx context.Context, client *http.Client, endpoint string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return post(ctx, client, endpoint, "application/json", bytes.NewReader(data))
}

func post(ctx context.Context, client *http.Client, endpoint, contentType string, body io.Reader) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
