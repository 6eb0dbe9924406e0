// Domekit is the local-first AI runtime gateway: it sits between an AI
// agent's model calls and the tools that model can invoke, enforcing a
// manifest-declared policy on every tool call, file access, SQLite query,
// outbound connection, and vector-collection operation, and recording every
// decision to an append-only audit log.
//
// All configuration is loaded from environment variables.
//
// Required environment variables:
//
//	DOMEKIT_MANIFEST       - path to the manifest.yaml to load at startup
//
// Optional environment variables:
//
//	DOMEKIT_HTTP_ADDR      - HTTP listen address (default: ":8080")
//	DOMEKIT_AUDIT_PATH     - path to the audit log JSONL file (default: "/data/audit.jsonl")
//	DOMEKIT_VECTOR_DB_PATH - path to the vector store SQLite file (default: "/data/vectors.db")
//	DOMEKIT_STDIO          - "1" to also serve the MCP stdio transport on stdin/stdout
//	LLM_PROVIDER           - model backend: "openai" (default)
//	LLM_API_KEY            - API key for the model backend
//	LLM_BASE_URL           - override the model API base URL (e.g. a local inference server)
//	LLM_MODEL              - default model name (e.g. "gpt-4o")
//	EMBEDDING_API_KEY      - API key for the embedding backend (defaults to LLM_API_KEY)
//	EMBEDDING_BASE_URL     - override the embedding API base URL (defaults to LLM_BASE_URL)
//	EMBEDDING_MODEL        - embedding model name (default: "text-embedding-3-small")
//	MAX_CONCURRENT_TOOLS   - bound on simultaneous tool executions (default: 8)
//	REQUESTS_PER_SECOND    - soft request throttle, 0 disables it (default: 0)
//	LOG_LEVEL              - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT             - "text" or "json" (default: "text")
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/domekit-run/domekit/common/environment"
	"github.com/domekit-run/domekit/common/version"
	"github.com/domekit-run/domekit/internal/domekit/adapter"
	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/manifest"
	"github.com/domekit-run/domekit/internal/domekit/observability"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/router"
	"github.com/domekit-run/domekit/internal/domekit/tools"
	domekithttp "github.com/domekit-run/domekit/internal/domekit/transport/http"
	"github.com/domekit-run/domekit/internal/domekit/transport/stdio"
	"github.com/domekit-run/domekit/internal/domekit/vectorstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "run":
		runGateway(os.Args[2:])
	case "logs":
		runLogs(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: domekit <validate|run|logs> [args]")
	fmt.Fprintln(os.Stderr, "  domekit validate <manifest.yaml>   parse and canonicalize a manifest, report errors")
	fmt.Fprintln(os.Stderr, "  domekit run                        start the gateway (env-var configured)")
	fmt.Fprintln(os.Stderr, "  domekit logs <audit.jsonl> <request_id>  print every audit entry for a request")
}

// runValidate loads and canonicalizes a manifest file without starting the
// gateway, so operators can check a manifest edit before reloading it into a
// running instance.
func runValidate(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: domekit validate <manifest.yaml>")
		os.Exit(2)
	}
	l := manifest.New()
	if err := l.LoadFile(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "manifest invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("manifest valid, hash=%s\n", l.Hash())
}

// runLogs prints every recorded audit entry for a request_id as JSON lines,
// for operators debugging a single request without standing up the HTTP
// control plane.
func runLogs(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: domekit logs <audit.jsonl> <request_id>")
		os.Exit(2)
	}
	log, err := audit.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	entries := log.ByRequest(args[1])
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal entry %s: %v\n", e.EntryID, err)
			continue
		}
		fmt.Println(string(data))
	}
}

func runGateway(args []string) {
	observability.Setup(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))

	manifestPath := requireEnv("DOMEKIT_MANIFEST")
	manifestLdr := manifest.New()
	if err := manifestLdr.LoadFile(manifestPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to load manifest: %v\n", err)
		os.Exit(1)
	}

	auditLog, err := audit.Open(envOr("DOMEKIT_AUDIT_PATH", "/data/audit.jsonl"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	tp, err := observability.NewTracerProvider("domekit")
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to start tracer provider: %v\n", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	engine := policy.New(manifestLdr)

	provider := buildProvider()

	store, err := vectorstore.Open(envOr("DOMEKIT_VECTOR_DB_PATH", "/data/vectors.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to open vector store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	embedder := vectorstore.NewOpenAIEmbedder(vectorstore.OpenAIEmbedderConfig{
		APIKey:  envOr("EMBEDDING_API_KEY", os.Getenv("LLM_API_KEY")),
		BaseURL: envOr("EMBEDDING_BASE_URL", os.Getenv("LLM_BASE_URL")),
		Model:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
	})

	manifestFn := manifestLdr.Manifest
	registry := tools.New()
	registry.Register(tools.NewSQLQuery(engine, manifestFn))
	registry.Register(tools.NewReadFile(engine, manifestFn))
	registry.Register(tools.NewWriteFile(engine, manifestFn))
	registry.Register(tools.NewVectorSearch(engine, store, embedder, manifestFn))
	registry.Register(tools.NewVectorManage(engine, store, embedder))

	r := router.New(router.Config{
		Provider:           provider,
		Engine:             engine,
		Registry:           registry,
		Log:                auditLog,
		Manifest:           manifestFn,
		MaxConcurrentTools: int64(envInt("MAX_CONCURRENT_TOOLS", 8)),
		RequestsPerSecond:  envFloat("REQUESTS_PER_SECOND", 0),
	})

	httpSrv := domekithttp.New(domekithttp.Config{
		Addr:        envOr("DOMEKIT_HTTP_ADDR", ":8080"),
		Router:      r,
		ManifestLdr: manifestLdr,
		AuditLog:    auditLog,
		Version:     version.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpSrv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to start http server: %v\n", err)
		os.Exit(1)
	}

	if envOr("DOMEKIT_STDIO", "") == "1" {
		stdioSrv := stdio.New(stdio.Config{
			Registry: registry,
			Engine:   engine,
			Log:      auditLog,
			Version:  version.Version,
		})
		go func() {
			if err := stdioSrv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "stdio transport exited: %v\n", err)
			}
		}()
	}

	<-ctx.Done()
}

func buildProvider() adapter.Provider {
	var base adapter.Provider
	switch envOr("LLM_PROVIDER", "openai") {
	default:
		base = adapter.NewOpenAI(adapter.OpenAIConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   envOr("LLM_MODEL", "gpt-4o"),
		})
	}

	if !adapter.CapabilityFor(envOr("LLM_MODEL", "gpt-4o")).NativeToolCalling {
		return adapter.NewFallback(base)
	}
	return base
}

func requireEnv(key string) string {
	v, err := environment.RequiredString(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	return environment.StringOr(key, fallback)
}

func envInt(key string, fallback int) int {
	return environment.IntOr(key, fallback)
}

// envFloat parses a decimal environment variable. common/environment has no
// float helper (none of its other callers need one), so this stays local.
func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}
