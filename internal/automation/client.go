// Package automation posts collected data to the downstream automation service
// (n8n-style webhooks) and decodes its replies.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/suPer8Hu/remote-control/internal/automation"
	maxBody             = 1 << 20
	pingPath            = "/webhook/test"
)

// Item is one created work item as reported by the endpoint.
type Item struct {
	Title     string  `json:"title"`
	Priority  string  `json:"priority,omitempty"`
	Hours     float64 `json:"hours,omitempty"`
	Assignee  string  `json:"assignee,omitempty"`
	Budget    float64 `json:"budget,omitempty"`
	Area      string  `json:"province,omitempty"`
	Timeframe string  `json:"timeframe,omitempty"`
}

type Result struct {
	Success      bool       `json:"success"`
	TasksCreated *int       `json:"tasksCreated,omitempty"`
	BoardID      FlexString `json:"boardId,omitempty"`
	Timestamp    string     `json:"timestamp,omitempty"`
	Error        string     `json:"error,omitempty"`
	Tasks        []Item     `json:"tasks,omitempty"`
	// Raw is the full response document, kept for the command log.
	Raw map[string]any `json:"-"`
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

type Client struct {
	BaseURL     string
	Timeout     time.Duration
	PingTimeout time.Duration
	HTTP        *http.Client

	tracer   trace.Tracer
	duration metric.Float64Histogram
}

func NewClient(baseURL string, timeout, pingTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Timeout:     timeout,
		PingTimeout: pingTimeout,
		HTTP:        &http.Client{Timeout: timeout},
		tracer:      otel.Tracer(instrumentationName),
	}
	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"automation.call.duration",
		metric.WithDescription("Duration of automation endpoint calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		hist, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("automation.call.duration")
	}
	c.duration = hist
	return c
}

// Call posts payload to endpoint (a path under BaseURL, or an absolute URL) once.
// Failures are *UnreachableError, *EndpointError or *DecodeError. A 2xx reply with
// success:false returns the decoded result along with its *EndpointError.
func (c *Client) Call(ctx context.Context, endpoint string, payload map[string]any) (*Result, error) {
	url := c.resolve(endpoint)
	ctx, span := c.tracer.Start(ctx, "automation.call",
		trace.WithAttributes(attribute.String("automation.endpoint", endpoint)))
	defer span.End()

	start := time.Now()
	res, err := c.call(ctx, url, payload)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("outcome", outcomeOf(err)),
		))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("automation.tasks", len(res.Tasks)))
	return res, nil
}

func (c *Client) call(ctx context.Context, url string, payload map[string]any) (*Result, error) {
	status, body, err := c.post(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &EndpointError{URL: url, Status: status, Message: errorMessage(body)}
	}

	if !json.Valid(body) {
		return nil, &DecodeError{URL: url, Body: snippet(body), Err: errors.New("body is not JSON")}
	}
	if err := validateResult(body); err != nil {
		return nil, &DecodeError{URL: url, Body: snippet(body), Err: err}
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &DecodeError{URL: url, Body: snippet(body), Err: err}
	}
	if err := json.Unmarshal(body, &res.Raw); err != nil {
		return nil, &DecodeError{URL: url, Body: snippet(body), Err: err}
	}
	if !res.Success {
		return &res, &EndpointError{URL: url, Status: status, Message: res.Error}
	}
	return &res, nil
}

// Trigger posts payload to an absolute integration URL and returns the decoded reply.
// A non-JSON reply is returned as {"body": text}.
func (c *Client) Trigger(ctx context.Context, url string, payload map[string]any) (map[string]any, error) {
	ctx, span := c.tracer.Start(ctx, "automation.trigger")
	defer span.End()

	status, body, err := c.post(ctx, url, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if status < 200 || status >= 300 {
		err := &EndpointError{URL: url, Status: status, Message: errorMessage(body)}
		span.RecordError(err)
		return nil, err
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		var anyDoc any
		if json.Unmarshal(body, &anyDoc) == nil {
			return map[string]any{"body": anyDoc}, nil
		}
		return map[string]any{"body": string(body)}, nil
	}
	return out, nil
}

// Ping reports whether the automation service answers at all. A 404 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	defer cancel()

	url := c.BaseURL + pingPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return classify(url, c.PingTimeout, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return &EndpointError{URL: url, Status: resp.StatusCode}
}

func (c *Client) post(ctx context.Context, url string, payload map[string]any) (int, []byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, classify(url, c.Timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, classify(url, c.Timeout, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.BaseURL + endpoint
}

func classify(url string, after time.Duration, err error) error {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
	return &UnreachableError{URL: url, Timeout: timeout, After: after, Err: err}
}

func outcomeOf(err error) string {
	var (
		ue *UnreachableError
		ee *EndpointError
		de *DecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ue):
		if ue.Timeout {
			return "timeout"
		}
		return "unreachable"
	case errors.As(err, &ee):
		return "endpoint_error"
	case errors.As(err, &de):
		return "decode_error"
	default:
		return "error"
	}
}

// errorMessage pulls "error" or "message" out of a JSON error body, else a text snippet.
func errorMessage(body []byte) string {
	var doc struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &doc) == nil {
		switch v := doc.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		}
		if doc.Message != "" {
			return doc.Message
		}
	}
	return snippet(body)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > 200 {
		return string(r[:200]) + "…"
	}
	return s
}
