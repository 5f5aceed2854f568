// Package main is the entry point for the Luthien gateway.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/luthien-proxy/luthien/internal/backend/anthropiccompat"
	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/config"
	"github.com/luthien-proxy/luthien/internal/gatewayhttp"
	"github.com/luthien-proxy/luthien/internal/metrics"
	"github.com/luthien-proxy/luthien/internal/pipeline"
	"github.com/luthien-proxy/luthien/internal/policies"
	"github.com/luthien-proxy/luthien/internal/policy"
	"github.com/luthien-proxy/luthien/internal/sinks"
	"github.com/luthien-proxy/luthien/internal/streaming"
	"github.com/luthien-proxy/luthien/internal/telemetry"
	"github.com/luthien-proxy/luthien/internal/txn"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing := telemetry.NewTracerProvider()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Error("tracer provider shutdown failed", "error", err)
		}
	}()

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	router := buildRouter(cfg, reg)

	streamCfg := streaming.DefaultConfig()
	if cfg.Stream.IdleTimeout > 0 {
		streamCfg.IdleTimeout = cfg.Stream.IdleTimeout
	}
	if cfg.Stream.EgressCapacity > 0 {
		streamCfg.EgressCapacity = cfg.Stream.EgressCapacity
	}

	openAIClient := openaicompat.NewClient(cfg.Backends.OpenAI.APIKey, cfg.Backends.OpenAI.BaseURL, http.DefaultClient)
	anthropicClient := anthropiccompat.NewClient(cfg.Backends.Anthropic.APIKey, cfg.Backends.Anthropic.BaseURL, http.DefaultClient)

	openAIPolicy := buildOpenAIPolicy(cfg, openAIClient)

	openAIPipeline := &pipeline.Pipeline[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{
		Backend:      openAIClient,
		Policy:       openAIPolicy,
		Interp:       openaicompat.Interpreter{},
		Builder:      openaicompat.Builder{},
		StreamConfig: streamCfg,
	}

	anthropicPipeline := &pipeline.Pipeline[*anthropiccompat.Request, *anthropiccompat.StreamEvent, *anthropiccompat.Response]{
		Backend: anthropicClient,
		Policy: policy.BasePolicy[*anthropiccompat.Request, *anthropiccompat.StreamEvent, *anthropiccompat.Response]{
			Builder: anthropiccompat.Builder{},
		},
		Interp:       anthropiccompat.Interpreter{},
		Builder:      anthropiccompat.Builder{},
		StreamConfig: streamCfg,
	}

	gw := gatewayhttp.New(openAIPipeline, anthropicPipeline, router, reg)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("luthien listening on :%d", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildOpenAIPolicy selects the configured sample policy for the
// OpenAI-compatible pipeline. An unrecognized or empty name falls back to
// Noop so an operator's typo never prevents the gateway from starting.
func buildOpenAIPolicy(cfg *config.Config, backend pipeline.Backend[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]) policy.Policy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response] {
	switch cfg.Policy.Name {
	case "uppercase":
		return policies.Uppercase()
	case "tool_call_judge":
		if cfg.Policy.JudgeModel != "" {
			return policies.NewToolCallJudge(policies.LLMJudge(backend, cfg.Policy.JudgeModel, cfg.Policy.JudgeSystemPrompt))
		}
		return policies.NewToolCallJudge(policies.KeywordJudge(cfg.Policy.Destructive))
	case "scripted":
		return policies.NewScripted("", "")
	case "noop", "":
		return policies.NewNoop()
	default:
		slog.Warn("unrecognized policy name, falling back to noop", "name", cfg.Policy.Name)
		return policies.NewNoop()
	}
}

// buildRouter wires every configured sink into a sinks.Router, feeding
// sink failures and fan-out timing into reg.
func buildRouter(cfg *config.Config, reg *metrics.Registry) *sinks.Router {
	var sinkList []sinks.Sink

	sinkList = append(sinkList, sinks.NewStdoutSink(slog.Default().With("component", "sinks.stdout")))
	sinkList = append(sinkList, sinks.NewSpanSink())

	if cfg.Sinks.Database.Path != "" {
		db, err := sinks.OpenDatabaseSink(cfg.Sinks.Database.Path)
		if err != nil {
			slog.Error("failed to open database sink, continuing without it", "error", err)
		} else {
			sinkList = append(sinkList, db)
		}
	}

	if cfg.Sinks.Pubsub.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Sinks.Pubsub.Addr})
		channel := cfg.Sinks.Pubsub.Channel
		if channel == "" {
			channel = "luthien-events"
		}
		sinkList = append(sinkList, sinks.NewPubsubSink(client, channel))
	}

	defaultSinks := cfg.Sinks.Default
	if len(defaultSinks) == 0 {
		defaultSinks = []string{"stdout"}
	}

	router := sinks.NewRouter(sinkList, cfg.Sinks.Routes, defaultSinks)
	router.ObserveFanout(reg.ObserveFanout)
	router.OnSinkError(func(sinkName string, event txn.Event, err error) {
		reg.SinkFailures.WithLabelValues(sinkName).Inc()
		slog.Error("sink record failed", "sink", sinkName, "event_type", event.Type, "error", err)
	})

	return router
}
