// Package probe runs HTTP "API probe" jobs: request a configured URL on
// a schedule, record the response, and optionally notify based on the
// outcome.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scriptyard/taskd/internal/crypto"
	"github.com/scriptyard/taskd/internal/expand"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/store"
)

const (
	probeTimeout    = 30 * time.Second
	maxResponseBody = 1 << 20 // 1 MiB, enough for a debug log without unbounded memory use

	// contentLengthAutoSentinel is the literal operators write into a
	// Content-Length header to ask for it to be computed from the
	// expanded payload instead of sent as-is.
	contentLengthAutoSentinel = "自动计算"
)

// Runner executes ApiDebugConfig probes.
type Runner struct {
	stores        *store.Stores
	hub           *livelog.Hub
	notifier      notifier.Notifier
	client        *http.Client
	encryptionKey string
}

// New creates a Runner with the teacher's usual client tuning: a hard
// request timeout plus a capped idle-connection pool. encryptionKey, if
// set, decrypts header values an operator stored via crypto.Encrypt
// (an Authorization bearer token, say) before they're sent.
func New(stores *store.Stores, hub *livelog.Hub, n notifier.Notifier, encryptionKey string) *Runner {
	return &Runner{
		stores:        stores,
		hub:           hub,
		notifier:      n,
		encryptionKey: encryptionKey,
		client: &http.Client{
			Timeout: probeTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 15 * time.Second,
			},
		},
	}
}

// Run executes one ApiDebugConfig request and persists an ApiDebugLog
// row with the result. It never returns an error for an ordinary HTTP
// failure (a 4xx/5xx status, connection refused, timeout) -- those are
// outcomes to record, not execution errors. It returns an error only
// when the config itself cannot be turned into a request, or when
// persisting the log fails.
func (r *Runner) Run(ctx context.Context, cfg *store.ApiDebugConfig) error {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	now := time.Now()
	expandedURL := expand.Vars(cfg.URL, now)
	expandedPayload := expand.Vars(cfg.Payload, now)

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		decrypted, err := crypto.Decrypt(v, r.encryptionKey)
		if err != nil {
			return fmt.Errorf("probe: decrypt header %q: %w", k, err)
		}
		headers[k] = expand.Vars(decrypted, now)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	hasBody := expandedPayload != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch)
	if hasBody {
		bodyReader = strings.NewReader(expandedPayload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, expandedURL, bodyReader)
	if err != nil {
		return fmt.Errorf("probe: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if hasBody && shouldAutoSetContentLength(headers) {
		req.Header.Set("Content-Length", strconv.Itoa(len(expandedPayload)))
	}
	if parsed, err := url.Parse(expandedURL); err == nil && parsed.Host != "" {
		req.Host = parsed.Host
	}

	logEntry := &store.ApiDebugLog{
		ConfigID:       cfg.ID,
		ConfigName:     cfg.Name,
		Method:         method,
		URL:            expandedURL,
		RequestHeaders: headers,
		RequestPayload: expandedPayload,
		StartTime:      now,
	}

	resp, doErr := r.client.Do(req)
	elapsed := time.Since(now)
	logEntry.ResponseTimeMS = elapsed.Milliseconds()
	logEntry.EndTime = time.Now()

	var isError bool
	if doErr != nil {
		isError = true
		logEntry.Status = "error"
		logEntry.ResponseBody = doErr.Error()
	} else {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if readErr != nil {
			logEntry.ResponseBody = fmt.Sprintf("error reading response body: %v", readErr)
		} else {
			logEntry.ResponseBody = string(body)
		}
		logEntry.ResponseStatus = resp.StatusCode
		logEntry.ResponseHeaders = flattenHeader(resp.Header)
		isError = resp.StatusCode >= 400
		if isError {
			logEntry.Status = "error"
		} else {
			logEntry.Status = "success"
		}
	}

	if err := r.stores.Probes.CreateProbeLog(ctx, logEntry); err != nil {
		return fmt.Errorf("probe: create probe log: %w", err)
	}

	r.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "probe_complete",
		Data: map[string]any{
			"config_id":       cfg.ID,
			"status":          logEntry.Status,
			"response_status": logEntry.ResponseStatus,
			"response_time_ms": logEntry.ResponseTimeMS,
		},
	})

	r.notify(ctx, cfg, isError, logEntry)
	return nil
}

func (r *Runner) notify(ctx context.Context, cfg *store.ApiDebugConfig, isError bool, log *store.ApiDebugLog) {
	if !cfg.NotificationEnabled || cfg.NotificationType == "" {
		return
	}
	switch cfg.NotificationCond {
	case store.NotifySuccess:
		if isError {
			return
		}
	case store.NotifyError:
		if !isError {
			return
		}
	case store.NotifyAlways:
	default:
		if !isError {
			return
		}
	}
	title := fmt.Sprintf("Probe %s %s", cfg.Name, log.Status)
	body := fmt.Sprintf("%s %s returned status %d in %dms", log.Method, log.URL, log.ResponseStatus, log.ResponseTimeMS)
	if err := r.notifier.Send(ctx, cfg.NotificationType, title, body); err != nil {
		slog.Error("probe: notification failed", "config_id", cfg.ID, "error", err)
	}
}

// shouldAutoSetContentLength reports whether Content-Length should be
// computed from the expanded payload: true when the operator never set
// it, or set it to the auto-compute sentinel; false when they supplied
// an explicit value that should be sent untouched.
func shouldAutoSetContentLength(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Length") {
			return v == contentLengthAutoSentinel
		}
	}
	return true
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
