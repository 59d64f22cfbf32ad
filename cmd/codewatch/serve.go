// Copyright (c) 2025 Northbound System
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/codewatch/internal/aiscan"
	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/cluster"
	"github.com/northbound/codewatch/internal/config"
	"github.com/northbound/codewatch/internal/contentcache"
	"github.com/northbound/codewatch/internal/dispatcher"
	"github.com/northbound/codewatch/internal/embeddings"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/gc"
	"github.com/northbound/codewatch/internal/heartbeat"
	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/objectstorage"
	"github.com/northbound/codewatch/internal/queue"
	"github.com/northbound/codewatch/internal/ratelimit"
	"github.com/northbound/codewatch/internal/server"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
	"github.com/northbound/codewatch/internal/vectordb"
	"github.com/northbound/codewatch/internal/worker"
)

const jobQueueKey = "codewatch:jobs"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, pipeline dispatcher, and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	log := logger.GetDefault()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bus := events.NewBus()
	defer bus.Close()

	metricsHandler, meter, err := metrics.Handler()
	if err != nil {
		return fmt.Errorf("build metrics handler: %w", err)
	}

	pm, err := metrics.NewPipelineMetrics(meter)
	if err != nil {
		return fmt.Errorf("build pipeline metrics: %w", err)
	}
	om, err := metrics.NewOperationalMetrics(meter)
	if err != nil {
		return fmt.Errorf("build operational metrics: %w", err)
	}
	hm, err := metrics.NewHTTPMetrics(meter)
	if err != nil {
		return fmt.Errorf("build http metrics: %w", err)
	}

	state := statesvc.NewWithMetrics(st, bus, pm)

	redisClient, err := cfg.Redis.NewRedisClient(ctx)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	jobQueue, err := queue.NewRedisQueue(redisClient, jobQueueKey)
	if err != nil {
		return fmt.Errorf("build job queue: %w", err)
	}

	gitCLI := vcs.NewGitCLI()
	heartbeatStaleAfter := time.Duration(cfg.HeartbeatStaleSeconds) * time.Second
	disp := dispatcher.New(st, state, gitCLI, jobQueue, heartbeatStaleAfter)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewRedisLimiterWithMetrics(
			redisClient,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
			cfg.RateLimit.MaxRequests,
			ratelimit.ScopeLimits(cfg.RateLimit.PerScope),
			om,
		)
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
	}

	llmRegistry, err := llm.NewRegistry(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm registry: %w", err)
	}

	qdrantConn, err := grpc.Dial(
		fmt.Sprintf("%s:%d", cfg.VectorIndex.Host, cfg.VectorIndex.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("dial qdrant: %w", err)
	}
	defer qdrantConn.Close()

	embedder, err := embeddings.NewEmbedder(cfg.Embeddings.Type, cfg.Embeddings.ToMap())
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	index, err := vectordb.NewQdrantIndex(qdrantConn, cfg.VectorIndex.Collection, embedder.Dimension())
	if err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}

	blobs, err := objectstorage.NewAzureBlobStore(ctx, cfg.ObjectStorage.ConnectionString(), cfg.ObjectStorage.Container)
	if err != nil {
		return fmt.Errorf("build object storage: %w", err)
	}

	cache := contentcache.New(st, blobs)
	callgr := callgraph.NewHeuristicAnalyzer()

	staticWorker := worker.NewStaticWorker(st, state, gitCLI, callgr)
	embeddingsWorker := worker.NewEmbeddingsWorker(state, gitCLI, embedder, index, cache)

	var insightClient llm.Client
	if c, ok := llmRegistry.Investigator(); ok {
		insightClient = c
	}
	clusterAnalyzer := cluster.New(st, state, index, gitCLI, gitCLI, cluster.UnknownCoverageAnalyzer{}, callgr, insightClient)

	var investigator *aiscan.Investigator
	if c, ok := llmRegistry.Investigator(); ok {
		investigator = aiscan.NewInvestigator(c)
	}
	aiscanWorker := aiscan.NewWithMetrics(st, state, gitCLI, llmRegistry.BroadScanModels(), investigator, pm)

	gcWorker := gc.NewWithMetrics(st, blobs, om)
	heartbeatDetector := heartbeat.NewWithMetrics(st, state, om)

	handler := buildJobHandler(staticWorker, embeddingsWorker, clusterAnalyzer, aiscanWorker)

	go func() {
		if err := worker.StartWorkers(ctx, jobQueue, handler, cfg.WorkerCount); err != nil {
			log.Error("job workers stopped", zap.Error(err))
		}
	}()
	go gcWorker.Run(ctx)
	go heartbeatDetector.Run(ctx)

	srv := server.New(st, state, disp, bus, limiter, hm, metricsHandler)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// buildJobHandler switches on the dispatched job's type, running exactly
// the worker spec.md §4.2 step 5 assigns it. The embeddings job also runs
// the Cluster Analyzer synchronously once embeddings completes, since
// completion leaves semantic_cache_status=pending and the Analyzer's own
// first step is the transition out of it; there is no separate queue
// entry for the cluster stage.
func buildJobHandler(static *worker.StaticWorker, emb *worker.EmbeddingsWorker, clusterAnalyzer *cluster.Analyzer, scan *aiscan.Worker) worker.HandlerFunc {
	return func(ctx context.Context, job queue.Job) error {
		var payload dispatcher.TaskPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal task payload: %w", err)
		}

		switch job.Type {
		case dispatcher.JobTypeStaticAnalysis:
			return static.Run(ctx, payload.AnalysisID, payload.RepositoryID, payload.CommitSHA)
		case dispatcher.JobTypeEmbeddings:
			if err := emb.Run(ctx, payload.AnalysisID, payload.RepositoryID, payload.CommitSHA); err != nil {
				return err
			}
			return clusterAnalyzer.Run(ctx, payload.AnalysisID, payload.RepositoryID, payload.CommitSHA)
		case dispatcher.JobTypeAIScan:
			return scan.Run(ctx, payload.AnalysisID, payload.RepositoryID, payload.CommitSHA)
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}
}
