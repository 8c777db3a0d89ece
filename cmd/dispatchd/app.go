package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openjournal/dispatch/internal/circuitbreaker"
	"github.com/openjournal/dispatch/internal/config"
	"github.com/openjournal/dispatch/internal/health"
	"github.com/openjournal/dispatch/internal/observability"
	"github.com/openjournal/dispatch/internal/provider"
	"github.com/openjournal/dispatch/internal/ratelimit"
	"github.com/openjournal/dispatch/internal/retry"
	"github.com/openjournal/dispatch/internal/router"
)

// application holds all daemon components.
type application struct {
	config     *config.Config
	logger     observability.Logger
	tracer     *observability.Tracer
	limiter    *ratelimit.AdmissionLimiter
	breakers   *circuitbreaker.Registry
	dispatcher *router.Dispatcher
	retryCfg   *retry.Config
	server     *http.Server
}

// initApplication initializes all daemon components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	tracer := initTracer(cfg, logger)

	limiter := ratelimit.New(&ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		RequestsPerDay:    cfg.RateLimit.RequestsPerDay,
		InterCallDelay:    cfg.RateLimit.InterCallDelay.Duration(),
	}, logger.Zap())

	breakerCfg := circuitbreaker.DefaultConfig().
		WithFailureThreshold(cfg.CircuitBreaker.FailureThreshold).
		WithSuccessThreshold(cfg.CircuitBreaker.SuccessThreshold).
		WithResetTimeout(cfg.CircuitBreaker.ResetTimeout.Duration())
	breakerCfg.Validate()

	retryCfg := retryConfigFrom(cfg)

	breakers := circuitbreaker.NewRegistry(breakerCfg, logger.Zap())
	dispatcher := router.New(breakers, logger.Zap())

	app := &application{
		config:     cfg,
		logger:     logger,
		tracer:     tracer,
		limiter:    limiter,
		breakers:   breakers,
		dispatcher: dispatcher,
		retryCfg:   retryCfg,
	}

	app.dispatcher.SetProviders(app.buildProviders(cfg))

	healthHandler := health.NewHandler(logger.Zap(), dispatcher.Stats, limiter.Stats)

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/dispatch", app.handleDispatch)

	app.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	}
	if tracerCfg.ServiceName == "" {
		tracerCfg.ServiceName = "dispatchd"
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}

	return tracer
}

// retryConfigFrom converts the configured retry knobs, leaving zero values to
// the package defaults.
func retryConfigFrom(cfg *config.Config) *retry.Config {
	out := retry.DefaultConfig()
	if cfg.Retry.MaxRetries > 0 {
		out.MaxRetries = cfg.Retry.MaxRetries
	}
	if d := cfg.Retry.AttemptTimeout.Duration(); d > 0 {
		out.AttemptTimeout = d
	}
	if d := cfg.Retry.InitialBackoff.Duration(); d > 0 {
		out.InitialBackoff = d
	}
	if d := cfg.Retry.MaxBackoff.Duration(); d > 0 {
		out.MaxBackoff = d
	}
	return out
}

// buildProviders converts the configured provider list into descriptors and
// HTTP clients sharing the process-wide admission limiter.
func (a *application) buildProviders(cfg *config.Config) ([]provider.Descriptor, map[string]provider.Client) {
	descriptors := cfg.Descriptors()
	clients := make(map[string]provider.Client, len(descriptors))
	for _, desc := range descriptors {
		clients[desc.ID] = provider.NewHTTPClient(desc, a.limiter,
			provider.WithRetryConfig(a.retryCfg),
			provider.WithLogger(a.logger.Zap()),
		)
	}
	return descriptors, clients
}

// Start begins serving the HTTP surface.
func (a *application) Start() error {
	a.logger.Info("starting http server",
		observability.String("address", a.server.Addr),
	)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("http server error", observability.Error(err))
		}
	}()

	return nil
}

// Reload swaps the provider set from a changed configuration. Limiter and
// breaker settings stay as started; only the provider list is re-derived.
func (a *application) Reload(cfg *config.Config) {
	a.dispatcher.SetProviders(a.buildProviders(cfg))
}

// Stop shuts the daemon down gracefully.
func (a *application) Stop(ctx context.Context) error {
	err := a.server.Shutdown(ctx)

	a.limiter.Close()

	if terr := a.tracer.Shutdown(ctx); terr != nil && err == nil {
		err = terr
	}
	return err
}

// dispatchRequest is the HTTP request body for the dispatch endpoint.
type dispatchRequest struct {
	Capability  string            `json:"capability"`
	Prompt      string            `json:"prompt,omitempty"`
	Attachments []attachment      `json:"attachments,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// attachment carries one binary input, base64 encoded in JSON.
type attachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// errorResponse is the HTTP error body.
type errorResponse struct {
	Error string `json:"error"`
}

// handleDispatch serves POST /v1/dispatch.
func (a *application) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	capability, err := provider.ParseCapability(body.Capability)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	req := &provider.Request{
		Capability: capability,
		Prompt:     body.Prompt,
		Options:    body.Options,
	}
	for _, att := range body.Attachments {
		req.Attachments = append(req.Attachments, provider.Attachment{
			MIMEType: att.MIMEType,
			Data:     att.Data,
		})
	}

	resp, err := a.dispatcher.Dispatch(r.Context(), capability, req)
	switch {
	case err != nil:
		// Only cancellation surfaces as an error from Dispatch.
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	case resp == nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "no provider could serve the request"})
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
