package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"classbook/internal/logger"
	"classbook/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey       = "webhooks"
	failedQueueKey = "webhooks:failed"
	maxTries       = 3

	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	IDHeader        = "X-Webhook-ID"
)

// Publisher queues events for the dispatcher.
type Publisher struct {
	redis *redis.Client
	now   func() time.Time
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{redis: rdb, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	d := delivery{Event: Event{
		ID:        uuid.NewString(),
		Type:      event,
		CreatedAt: p.now().UTC(),
		Data:      data,
	}}
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}

	if err := p.redis.LPush(ctx, queueKey, raw).Err(); err != nil {
		return fmt.Errorf("queue %s: %w", event, err)
	}
	logger.Debug("webhook event queued", "event", event, "event_id", d.Event.ID)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// EndpointLister is the part of the repository the dispatcher reads.
type EndpointLister interface {
	GetByID(ctx context.Context, id int) (*Endpoint, error)
	ListActive(ctx context.Context) ([]Endpoint, error)
}

// Dispatcher pops queued events and posts them to subscribed endpoints.
type Dispatcher struct {
	redis      *redis.Client
	endpoints  EndpointLister
	client     *http.Client
	retryDelay time.Duration
}

func NewDispatcher(rdb *redis.Client, endpoints EndpointLister, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		redis:      rdb,
		endpoints:  endpoints,
		client:     &http.Client{Timeout: timeout},
		retryDelay: 5 * time.Second,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	logger.Info("Webhook dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Webhook dispatcher stopped")
			return
		default:
			d.processNext(ctx)
		}
	}
}

func (d *Dispatcher) processNext(ctx context.Context) {
	result, err := d.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job delivery
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad webhook data: %v", err)
		return
	}

	targets, err := d.targets(ctx, job)
	if err != nil {
		logger.WithError(err).Error("webhook endpoints lookup failed", "event_id", job.Event.ID)
		return
	}

	for _, e := range targets {
		attempt := delivery{Event: job.Event, EndpointID: e.ID, Tries: job.Tries + 1}
		if err := d.deliver(ctx, &e, job.Event); err != nil {
			logger.WithError(err).Warn("webhook delivery failed",
				"event", job.Event.Type, "endpoint_id", e.ID, "attempt", attempt.Tries)
			d.retry(ctx, attempt, err)
			continue
		}
		metrics.RecordWebhookDelivery(job.Event.Type, "delivered")
	}
}

// targets fans a fresh event out to every subscribed endpoint. A retry only
// goes to the endpoint that failed, if it is still active.
func (d *Dispatcher) targets(ctx context.Context, job delivery) ([]Endpoint, error) {
	if job.EndpointID != 0 {
		e, err := d.endpoints.GetByID(ctx, job.EndpointID)
		if err != nil {
			return nil, err
		}
		if !e.Accepts(job.Event.Type) {
			return nil, nil
		}
		return []Endpoint{*e}, nil
	}

	all, err := d.endpoints.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var out []Endpoint
	for _, e := range all {
		if e.Accepts(job.Event.Type) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e *Endpoint, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.Type)
	req.Header.Set(IDHeader, event.ID)
	req.Header.Set(SignatureHeader, "sha256="+Sign(e.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) retry(ctx context.Context, job delivery, cause error) {
	if job.Tries >= maxTries {
		metrics.RecordWebhookDelivery(job.Event.Type, "failed")
		d.saveFailed(job, cause)
		return
	}

	if d.retryDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d.retryDelay):
		}
	}
	metrics.RecordWebhookDelivery(job.Event.Type, "retried")
	data, _ := json.Marshal(job)
	d.redis.LPush(context.Background(), queueKey, data)
}

func (d *Dispatcher) saveFailed(job delivery, err error) {
	failed := map[string]interface{}{
		"delivery": job,
		"error":    err.Error(),
		"time":     time.Now(),
	}
	data, _ := json.Marshal(failed)
	d.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Errorf("Webhook %s to endpoint %d moved to failed queue", job.Event.ID, job.EndpointID)
}
