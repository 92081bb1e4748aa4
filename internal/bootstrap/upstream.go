package bootstrap

import (
	"fmt"
	"log"

	"github.com/go-creditgate/creditgate/internal/client"
	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/gateway"
	"github.com/go-creditgate/creditgate/internal/retry"
	"github.com/go-creditgate/creditgate/internal/services"
)

// initializeGateway builds the metered proxy with its two upstream
// clients. Buffered calls retry on transient failures; streamed calls
// never do because bytes may already have reached the caller.
func initializeGateway(
	cfg *config.Config,
	ledger *services.LedgerService,
	audit *services.AuditService,
	recorder core.Recorder,
) (*gateway.Gateway, error) {
	upstreamClient, err := client.CreateUpstreamClient(
		cfg.UpstreamTimeout,
		cfg.UpstreamInsecureSkipVerify,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	streamingClient, err := client.CreateStreamingClient(cfg.UpstreamInsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming client: %w", err)
	}

	bufferedClient := retry.NewClient(
		retry.WithHTTPClient(upstreamClient),
		retry.WithMaxRetries(cfg.UpstreamMaxRetries),
		retry.WithInitialRetryDelay(cfg.UpstreamRetryDelay),
		retry.WithMaxRetryDelay(cfg.UpstreamMaxRetryDelay),
	)

	log.Printf(
		"Upstream gateway initialized (base_url=%s, timeout=%s, max_retries=%d)",
		cfg.UpstreamBaseURL,
		cfg.UpstreamTimeout,
		cfg.UpstreamMaxRetries,
	)

	return gateway.New(cfg, ledger, audit, recorder, bufferedClient, streamingClient), nil
}
