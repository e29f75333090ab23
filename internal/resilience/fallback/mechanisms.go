package fallback

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/sentinel/internal/core/domain"
)

const (
	queueCap       = 10000
	queueTTL       = 24 * time.Hour
	perItemProcess = 2 * time.Second // rough wait estimate per queued item
)

// CacheKey derives the deterministic lookup key for a cached response:
// service + operation + request hash.
func CacheKey(service, operationType string, request map[string]any) string {
	payload, _ := json.Marshal(request)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("fallback:response:%s:%s:%s", service, operationType, hex.EncodeToString(sum[:8]))
}

// StoreResponse caches a successful response payload for later fallback
// use, in both the local and shared tiers.
func (d *Dispatcher) StoreResponse(ctx context.Context, operationType string, request map[string]any, response any, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	key := CacheKey(d.service, operationType, request)
	if err := d.local.Set(ctx, key, string(data), ttl); err != nil {
		return err
	}
	if d.shared != nil {
		return d.shared.Set(ctx, key, string(data), ttl)
	}
	return nil
}

// fromCache looks up the local then the shared cache; a miss in both is
// a mechanism failure.
func (d *Dispatcher) fromCache(ctx context.Context, operationType string, request map[string]any) (domain.FallbackOutcome, error) {
	key := CacheKey(d.service, operationType, request)

	raw, hit, err := d.local.Get(ctx, key)
	if err != nil || !hit {
		if d.shared == nil {
			return domain.FallbackOutcome{}, fmt.Errorf("no cached response for %s", key)
		}
		raw, hit, err = d.shared.Get(ctx, key)
		if err != nil {
			return domain.FallbackOutcome{}, fmt.Errorf("cache lookup failed: %w", err)
		}
		if !hit {
			return domain.FallbackOutcome{}, fmt.Errorf("no cached response for %s", key)
		}
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.FallbackOutcome{}, fmt.Errorf("corrupt cached response: %w", err)
	}

	return outcome(domain.FallbackCache, map[string]any{
		"source":  "cache",
		"payload": payload,
	}), nil
}

func (d *Dispatcher) staticResponse(cfg domain.FallbackConfig, operationType string) domain.FallbackOutcome {
	data := map[string]any{
		"service":   d.service,
		"operation": operationType,
		"static":    true,
	}
	if len(cfg.StaticData) > 0 {
		data["payload"] = cfg.StaticData
	} else {
		data["payload"] = map[string]any{"message": "service temporarily unavailable"}
	}
	return outcome(cfg.Type, data)
}

// alternativeService tries each configured endpoint in order; the first
// 2xx response wins.
func (d *Dispatcher) alternativeService(ctx context.Context, cfg domain.FallbackConfig, originalRequest map[string]any) (domain.FallbackOutcome, error) {
	if len(cfg.AlternativeEndpoints) == 0 {
		return domain.FallbackOutcome{}, fmt.Errorf("no alternative endpoints configured")
	}

	body, err := json.Marshal(originalRequest)
	if err != nil {
		return domain.FallbackOutcome{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for _, endpoint := range cfg.AlternativeEndpoints {
		payload, err := d.callEndpoint(ctx, endpoint, body)
		if err != nil {
			lastErr = err
			continue
		}
		return outcome(domain.FallbackAlternativeService, map[string]any{
			"endpoint": endpoint,
			"payload":  payload,
		}), nil
	}
	return domain.FallbackOutcome{}, fmt.Errorf("all alternative endpoints failed: %w", lastErr)
}

func (d *Dispatcher) callEndpoint(ctx context.Context, endpoint string, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint %s returned %d", endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var payload any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = string(raw)
		}
	}
	return payload, nil
}

// degradedMode returns a payload that advertises the remaining
// capabilities instead of failing outright.
func (d *Dispatcher) degradedMode(cfg domain.FallbackConfig, fctx domain.FailureContext) domain.FallbackOutcome {
	return outcome(domain.FallbackDegradedMode, map[string]any{
		"mode":                   "degraded",
		"service":                d.service,
		"failure_type":           fctx.FailureType,
		"available_capabilities": cfg.Capabilities,
	})
}

// queueRequest enqueues the request for deferred processing and
// acknowledges with an estimated wait.
func (d *Dispatcher) queueRequest(ctx context.Context, cfg domain.FallbackConfig, operationType string, originalRequest map[string]any) (domain.FallbackOutcome, error) {
	store := d.shared
	if store == nil {
		store = d.local
	}

	queue := cfg.QueueName
	if queue == "" {
		queue = fmt.Sprintf("fallback:queue:%s", d.service)
	}

	entry, err := json.Marshal(map[string]any{
		"id":        uuid.New().String(),
		"service":   d.service,
		"operation": operationType,
		"request":   originalRequest,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.FallbackOutcome{}, fmt.Errorf("failed to encode queue entry: %w", err)
	}

	if err := store.ListPush(ctx, queue, string(entry)); err != nil {
		return domain.FallbackOutcome{}, fmt.Errorf("failed to enqueue request: %w", err)
	}
	_ = store.ListTrim(ctx, queue, 0, queueCap-1)
	_ = store.Expire(ctx, queue, queueTTL)

	length, err := store.ListLen(ctx, queue)
	if err != nil {
		length = 1
	}

	return outcome(domain.FallbackQueueRequest, map[string]any{
		"queued":         true,
		"queue":          queue,
		"queue_length":   length,
		"estimated_wait": (time.Duration(length) * perItemProcess).String(),
	}), nil
}

func outcome(t domain.FallbackType, data map[string]any) domain.FallbackOutcome {
	return domain.FallbackOutcome{Type: t, Data: data, Timestamp: time.Now()}
}
