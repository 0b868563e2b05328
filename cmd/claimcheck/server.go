package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/claimcheck/internal/api"
	"github.com/kalambet/claimcheck/internal/config"
	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/metrics"
	"github.com/kalambet/claimcheck/internal/pipeline"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
	"github.com/kalambet/claimcheck/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// backend is the storage and model stack shared by serve and index.
type backend struct {
	store    *storage.Store
	client   *llm.Client
	embedder *retrieval.CachedEmbedder
	index    *retrieval.SQLiteIndex
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	client, err := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		ChatModel:         cfg.LLM.ChatModel,
		EmbedModel:        cfg.LLM.EmbedModel,
		Timeout:           config.Duration("llm.timeout", cfg.LLM.Timeout, 60*time.Second),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	if err := llm.EnsureReady(ctx, client, cfg.LLM.ChatModel, cfg.LLM.EmbedModel, os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Index.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	embedder := retrieval.NewCachedEmbedder(client, config.Duration("retrieval.cache_ttl", cfg.Retrieval.CacheTTL, 30*time.Minute))
	index := retrieval.NewSQLiteIndex(store.DB(), embedder, config.Duration("index.timeout", cfg.Index.Timeout, 10*time.Second))

	return &backend{store: store, client: client, embedder: embedder, index: index}, nil
}

func (b *backend) Close() {
	if err := b.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "claimcheck version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	if n, err := be.index.Count(ctx, cfg.Index.Namespace); err != nil {
		return fmt.Errorf("counting indexed passages: %w", err)
	} else if n == 0 {
		slog.Warn("policy index is empty; run `claimcheck index <path>` first", "namespace", cfg.Index.Namespace)
	} else {
		slog.Info("policy index loaded", "namespace", cfg.Index.Namespace, "passages", n)
	}

	tmpls, err := prompts.Load(cfg.Prompts.Dir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	go func() {
		if err := tmpls.Watch(ctx); err != nil {
			slog.Error("prompt watcher stopped", "error", err)
		}
	}()

	collector := metrics.NewCollector(nil)
	svc := pipeline.NewService(be.client, be.index, tmpls, pipeline.Options{
		Namespace:    cfg.Index.Namespace,
		TopK:         cfg.Retrieval.TopK,
		MaxToolCalls: cfg.Retrieval.MaxToolCalls,
		Metrics:      collector,
	})

	if cfg.API.Token == "" {
		slog.Warn("CLAIMCHECK_API_TOKEN is not set; /api routes are unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Engine:  svc,
		Token:   cfg.API.Token,
		Metrics: collector.Handler(),
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Engine:   svc,
			Searcher: svc.Retriever(),
			Version:  version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "claimcheck listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	printStatus("Server", "%s", serverState(ctx, client, fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)))
	printStatus("Model endpoint", "%s", cfg.LLM.BaseURL)
	printStatus("Chat model", "%s", cfg.LLM.ChatModel)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	printStatus("Namespace", "%s", cfg.Index.Namespace)

	store, err := storage.Open(cfg.Index.DataDir)
	if err != nil {
		printStatus("Documents", "unavailable (%v)", err)
	} else {
		defer store.Close()
		docs, err := store.ListDocuments(cfg.Index.Namespace)
		if err != nil {
			printStatus("Documents", "unavailable (%v)", err)
		} else {
			chunks := 0
			for _, d := range docs {
				chunks += d.Chunks
			}
			printStatus("Documents", "%d (%d passages)", len(docs), chunks)
		}
	}

	printStatus("Data dir", "%s", cfg.Index.DataDir)
	return nil
}

func serverState(ctx context.Context, client *http.Client, url string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "unknown"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "stopped"
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("error (HTTP %d)", resp.StatusCode)
	}
	return "running"
}
