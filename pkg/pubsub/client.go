// Package pubsub owns the Pub/Sub v2 client shared by the outbox publisher
// and the notification worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub domain topic is required")
	errClientNotReady    = errors.New("pubsub client not initialized")
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu        sync.Mutex
	publisher *pubsub.Publisher
}

// NewClient dials Pub/Sub and refuses to start when the domain topic or the
// notification subscription (if one is configured) is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case strings.TrimSpace(cfg.DomainTopic) == "":
		return nil, errTopicRequired
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: dial: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.DomainTopic,
			"subscription": cfg.NotificationSubscription,
		}), "pubsub.ready")
	}
	return c, nil
}

// Ping checks every configured resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientNotReady
	}

	topic := c.name(kindTopic, c.cfg.DomainTopic)
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	if err := lookupError("topic", c.cfg.DomainTopic, err); err != nil {
		return err
	}

	sub := strings.TrimSpace(c.cfg.NotificationSubscription)
	if sub == "" {
		return nil
	}
	_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: c.name(kindSubscription, sub),
	})
	return lookupError("subscription", sub, err)
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("pubsub: checking %s %q: %w", kind, name, err)
	}
}

// DomainPublisher returns the shared publisher for the domain topic. The
// same instance is handed out on every call so batching settings stick.
func (c *Client) DomainPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == nil {
		name := c.name(kindTopic, c.cfg.DomainTopic)
		if name == "" {
			return nil
		}
		c.publisher = c.client.Publisher(name)
		c.publisher.EnableMessageOrdering = true
	}
	return c.publisher
}

// NotificationSubscription returns the subscriber feeding the inbox worker,
// or nil when none is configured.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.name(kindSubscription, c.cfg.NotificationSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

// Close flushes the publisher, if one was created, and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	if c.publisher != nil {
		c.publisher.Stop()
		c.publisher = nil
	}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) name(kind, id string) string {
	return resourceName(c.projectID, kind, id)
}

// resourceName expands a short id into projects/<p>/<kind>/<id>. Fully
// qualified names pass through.
func resourceName(projectID, kind, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + id
}
