// Package app wires configuration, clients and the relay into a Handler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"companion-relay/handler"
	"companion-relay/internal/config"
	"companion-relay/internal/integrations/line"
	"companion-relay/internal/integrations/openai"
	"companion-relay/internal/metrics"
	"companion-relay/internal/usecase"
)

// TokenGetter resolves a {"token": "..."} parameter; *paramstore.Client
// satisfies it.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills the credentials missing from cfg using the parameter
// store under cfg.ParamPrefix. Values already present in the environment win.
// The channel secret is optional and a lookup failure leaves it empty.
func ResolveSecrets(ctx context.Context, cfg config.Config, tokens TokenGetter, log *slog.Logger) (config.Config, error) {
	if !cfg.UsesParamStore() {
		return cfg, cfg.Validate()
	}
	if cfg.LineAccessToken == "" {
		tok, err := tokens.GetToken(ctx, cfg.ParamPrefix+"/line-access-token")
		if err != nil {
			return config.Config{}, fmt.Errorf("app: resolve line access token: %w", err)
		}
		cfg.LineAccessToken = tok
	}
	if cfg.OpenAIAPIKey == "" {
		tok, err := tokens.GetToken(ctx, cfg.ParamPrefix+"/open-ai-token")
		if err != nil {
			return config.Config{}, fmt.Errorf("app: resolve openai token: %w", err)
		}
		cfg.OpenAIAPIKey = tok
	}
	if cfg.LineChannelSecret == "" {
		secret, err := tokens.GetToken(ctx, cfg.ParamPrefix+"/line-channel-secret")
		if err != nil {
			log.WarnContext(ctx, "line channel secret not resolved, signature verification disabled", "err", err)
		} else {
			cfg.LineChannelSecret = secret
		}
	}
	return cfg, cfg.Validate()
}

// New builds the webhook handler. Metrics are registered on reg.
func New(cfg config.Config, entitlements usecase.EntitlementReader, log *slog.Logger, reg *prometheus.Registry) (*handler.Handler, error) {
	variant, err := usecase.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	llm, err := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}
	pusher, err := line.NewClient(cfg.LineAccessToken,
		line.WithBaseURL(cfg.LineBaseURL),
		line.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}

	composer, err := usecase.NewComposer(llm, usecase.ComposerOptions{
		Variant:         variant,
		Model:           cfg.OpenAIModel,
		PersonaPrompt:   cfg.PersonaPrompt,
		UpsellText:      cfg.UpsellText,
		ApologyText:     cfg.ApologyText,
		GoodnightImages: cfg.GoodnightImages,
		CheerUpImages:   cfg.CheerUpImages,
	})
	if err != nil {
		return nil, err
	}

	relay, err := usecase.NewRelayService(entitlements, composer, pusher, log, metrics.New(reg))
	if err != nil {
		return nil, err
	}

	return handler.NewHandler(relay,
		handler.WithChannelSecret(cfg.LineChannelSecret),
		handler.WithLogger(log),
		handler.WithMetrics(reg),
	)
}
