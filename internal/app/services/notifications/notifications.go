// Package notifications delivers user-facing messages through the external
// notification gateway. The gateway fans messages out to the channels each
// identity has registered, so this package only composes content and posts it.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/httputil"
	"github.com/hangarhq/hangar/internal/logging"
)

const (
	emailPath    = "/api/notification/email"
	identityPath = "/api/identity"
)

// Content is the rendered message sent to the gateway.
type Content struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Dispatcher sends notifications to sets of registered identities.
type Dispatcher interface {
	// SendCompilationReady notifies the given identities that a new build
	// of the product is available for download. Empty identity sets are a
	// no-op, not an error.
	SendCompilationReady(ctx context.Context, identities []string, p product.Product, c product.Compilation) error

	// RegisterIdentity creates a notification identity for a new user so
	// that later messages can reach them by email.
	RegisterIdentity(ctx context.Context, u user.User) error
}

// Config configures the HTTP dispatcher.
type Config struct {
	Host    string `yaml:"host" env:"NOTIFIER_HOST"`
	APIKey  string `yaml:"api_key" env:"NOTIFIER_API_KEY"`
	Enabled bool   `yaml:"enabled" env:"NOTIFIER_ENABLED"`
}

// HTTPDispatcher posts notifications to the gateway over HTTP.
type HTTPDispatcher struct {
	client *httputil.ServiceClient
	urls   *urls.Builder
	logger *logging.Logger
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher creates a dispatcher for the gateway at cfg.Host.
func NewHTTPDispatcher(cfg Config, builder *urls.Builder, logger *logging.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPDispatcher{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL: cfg.Host,
			APIKey:  cfg.APIKey,
		}),
		urls:   builder,
		logger: logger,
	}
}

type emailRequest struct {
	Identities []string `json:"identities"`
	Channels   []string `json:"channels"`
	Content    Content  `json:"content"`
}

type identityRequest struct {
	ID       string              `json:"_id"`
	Channels []string            `json:"channels"`
	Devices  map[string][]string `json:"devices"`
}

func (d *HTTPDispatcher) SendCompilationReady(ctx context.Context, identities []string, p product.Product, c product.Compilation) error {
	if len(identities) == 0 {
		return nil
	}

	req := emailRequest{
		Identities: identities,
		Channels:   []string{},
		Content:    renderCompilationReady(d.urls, p, c),
	}

	resp, err := d.client.Post(ctx, emailPath, req)
	if err != nil {
		return fmt.Errorf("post notification email: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("notification email rejected: %w", err)
	}

	d.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product":     p.ID,
		"compilation": c.ID,
		"recipients":  len(identities),
	}).Info("compilation ready notification sent")
	return nil
}

func (d *HTTPDispatcher) RegisterIdentity(ctx context.Context, u user.User) error {
	req := identityRequest{
		ID:       u.ID,
		Channels: []string{},
		Devices:  map[string][]string{"email": {u.Email}},
	}

	resp, err := d.client.Post(ctx, identityPath, req)
	if err != nil {
		return fmt.Errorf("post identity: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("identity rejected: %w", err)
	}
	return nil
}

func renderCompilationReady(builder *urls.Builder, p product.Product, c product.Compilation) Content {
	subject := fmt.Sprintf("New %s build available", p.Name)
	message := strings.Join([]string{
		fmt.Sprintf("A new build of %s is ready.", p.Name),
		fmt.Sprintf("Version: %s (%s %s, %s)", c.Version, c.Platform, c.PlatformVersion, c.Environment),
		"Download: " + builder.PublicURL(p, c),
	}, "\n")

	return Content{Subject: subject, Message: message}
}

// NoopDispatcher drops every notification. Used when the gateway is not
// configured and in tests.
type NoopDispatcher struct{}

var _ Dispatcher = NoopDispatcher{}

func (NoopDispatcher) SendCompilationReady(context.Context, []string, product.Product, product.Compilation) error {
	return nil
}

func (NoopDispatcher) RegisterIdentity(context.Context, user.User) error { return nil }
