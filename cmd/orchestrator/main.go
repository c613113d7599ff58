// Command orchestrator runs the incident-response orchestration API: it
// loads configuration, connects to PostgreSQL (checkpoints, traces,
// guardrail violations), dials each of the six fixed agent slots over
// gRPC, and serves the plain-polling HTTP surface in pkg/api.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/opsconsensus/orchestrator/internal/agentpb"
	"github.com/opsconsensus/orchestrator/pkg/api"
	"github.com/opsconsensus/orchestrator/pkg/checkpoint"
	"github.com/opsconsensus/orchestrator/pkg/config"
	"github.com/opsconsensus/orchestrator/pkg/consensus"
	"github.com/opsconsensus/orchestrator/pkg/costguardian"
	"github.com/opsconsensus/orchestrator/pkg/database"
	"github.com/opsconsensus/orchestrator/pkg/graph"
	"github.com/opsconsensus/orchestrator/pkg/invoker"
	"github.com/opsconsensus/orchestrator/pkg/observability"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	db, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	slog.Info("connected to PostgreSQL, migrations applied")

	store := checkpoint.NewPostgresStore(db.Client)
	sink := observability.NewPostgresSink(db.Client)

	invokers, closers := buildInvokers(cfg, sink)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	weight := func(agentID string) float64 {
		agent, err := cfg.GetAgent(agentID)
		if err != nil {
			return config.DefaultAgentWeight
		}
		return agent.Weight
	}
	costDefaults := costguardian.Defaults{
		IncidentsPerDay: cfg.Budget.IncidentsPerDay,
		DaysPerMonth:    cfg.Budget.DaysPerMonth,
	}

	driver := graph.New(invokers, store, consensus.WeightFunc(weight), costDefaults)
	server := api.New(driver, store, cfg, db.DB())

	router := server.Router()
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("orchestrator HTTP server listening", "port", httpPort)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to start server: %v", err)
	}
}

// buildInvokers dials one gRPC connection per configured agent slot and
// wraps it in a pkg/invoker.Invoker. All six slots share the same
// observability sink and pricing registry; each gets its own endpoint,
// model, weight, timeout, and retry budget from configuration.
func buildInvokers(cfg *config.Config, sink observability.Sink) (map[string]*invoker.Invoker, []*agentpb.GRPCTransport) {
	invokers := make(map[string]*invoker.Invoker, len(config.FixedAgentSlots))
	var closers []*agentpb.GRPCTransport

	for _, slot := range config.FixedAgentSlots {
		endpoint, err := cfg.GetAgent(slot)
		if err != nil {
			log.Fatalf("no configuration for required agent slot %s: %v", slot, err)
		}

		conn, err := grpc.NewClient(endpoint.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("failed to dial agent slot %s at %s: %v", slot, endpoint.Endpoint, err)
		}
		transport := agentpb.NewGRPCTransport(conn)
		closers = append(closers, transport)

		invokers[slot] = invoker.New(slot, transport, endpoint, cfg.Guardrail.ID, cfg.PricingRegistry, sink)
	}

	return invokers, closers
}
