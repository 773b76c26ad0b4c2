package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	contentTypeJSON = "application/vnd.kafka.json.v2+json"
	acceptKafka     = "application/vnd.kafka.v2+json"

	// Broker-side bounds for one poll. The timeout keeps Consume from
	// blocking past a single short poll; max_bytes bounds the batch size.
	consumeTimeoutMs = 1000
	consumeMaxBytes  = 52428800

	pingTopic = "healthcheck"
)

// RestProxyClient talks to a Kafka REST proxy. It implements Bus.
type RestProxyClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	published metric.Int64Counter
	consumed  metric.Int64Counter
}

func NewRestProxyClient(baseURL string, logger *slog.Logger) *RestProxyClient {
	meter := otel.Meter("cinetick/broker")
	published, _ := meter.Int64Counter("broker.events.published",
		metric.WithDescription("Events published to the broker, by topic and outcome"))
	consumed, _ := meter.Int64Counter("broker.events.consumed",
		metric.WithDescription("Events consumed from the broker, by topic"))

	return &RestProxyClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		published: published,
		consumed:  consumed,
	}
}

type produceRequest struct {
	Records []produceRecord `json:"records"`
}

type produceRecord struct {
	Value any `json:"value"`
}

// Publish posts the payload to the topic. It never fails the caller: errors
// are logged with the full payload so an operator can replay them, and the
// triggering entity mutation is already committed by the time we get here.
func (c *RestProxyClient) Publish(ctx context.Context, topic string, payload any) bool {
	ok := c.publish(ctx, topic, payload)

	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.published.Add(ctx, 1,
		metric.WithAttributes(attribute.String("topic", topic), attribute.String("outcome", outcome)))

	return ok
}

func (c *RestProxyClient) publish(ctx context.Context, topic string, payload any) bool {
	body, err := json.Marshal(produceRequest{Records: []produceRecord{{Value: payload}}})
	if err != nil {
		c.logger.Error("failed to encode event payload", "topic", topic, "error", err)
		return false
	}

	endpoint := fmt.Sprintf("%s/topics/%s", c.baseURL, url.PathEscape(topic))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to build publish request", "topic", topic, "error", err)
		return false
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", acceptKafka)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to publish event", "topic", topic, "payload", string(body), "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("broker rejected event",
			"topic", topic,
			"status", resp.StatusCode,
			"payload", string(body),
			"response", string(respBody))
		return false
	}

	c.logger.Debug("published event", "topic", topic)
	return true
}

// Consume polls one batch from partition 0 of the topic. The consumer group
// cursor lives broker-side; the group name is carried for log correlation.
func (c *RestProxyClient) Consume(ctx context.Context, topic, group string) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/topics/%s/partitions/0/messages?timeout=%d&max_bytes=%d",
		c.baseURL, url.PathEscape(topic), consumeTimeoutMs, consumeMaxBytes)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Error("failed to build consume request", "topic", topic, "group", group, "error", err)
		return nil, err
	}
	req.Header.Set("Accept", acceptKafka)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to consume from broker", "topic", topic, "group", group, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("broker returned status %d", resp.StatusCode)
		c.logger.Error("broker rejected poll",
			"topic", topic,
			"group", group,
			"status", resp.StatusCode,
			"response", string(respBody))
		return nil, err
	}

	var messages []Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		c.logger.Error("failed to decode consumed batch", "topic", topic, "group", group, "error", err)
		return nil, err
	}

	if len(messages) > 0 {
		c.consumed.Add(ctx, int64(len(messages)), metric.WithAttributes(attribute.String("topic", topic)))
		c.logger.Debug("consumed batch", "topic", topic, "count", len(messages))
	}

	return messages, nil
}

// Ping publishes a probe record to the healthcheck topic, verifying that the
// proxy is reachable and accepting writes.
func (c *RestProxyClient) Ping(ctx context.Context) error {
	probe := map[string]string{
		"probe_id": uuid.NewString(),
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	}

	if !c.publish(ctx, pingTopic, probe) {
		return fmt.Errorf("broker at %s is not accepting writes", c.baseURL)
	}
	return nil
}
