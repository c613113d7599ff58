package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opsconsensus/orchestrator/pkg/database"
	"github.com/opsconsensus/orchestrator/pkg/observability"
)

// TestPostgresSinkPersistsAndRedacts spins up a real PostgreSQL container,
// applies migrations, and verifies EmitLLMTrace/EmitGuardrailViolation write
// rows with PII stripped from their free-text fields. Skipped in -short runs
// so default `go test ./...` does not require Docker.
func TestPostgresSinkPersistsAndRedacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("orchestrator"),
		postgres.WithUsername("orchestrator"),
		postgres.WithPassword("orchestrator"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.NewClient(ctx, database.Config{
		Host: host, Port: port.Int(), User: "orchestrator", Password: "orchestrator",
		Database: "orchestrator", SSLMode: "disable",
		MaxOpenConns: 5, MaxIdleConns: 2,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sink := observability.NewPostgresSink(db.Client)

	sink.EmitLLMTrace(ctx, observability.LLMTraceEvent{
		TraceID:      "trace-1",
		SessionID:    "sess-1",
		ExecutionID:  "exec-1",
		AgentID:      "signal-intelligence",
		Model:        "claude-sonnet",
		PromptText:   "contact ops at oncall@example.com about account 123456789012",
		ResponseText: "scale out the service",
		PromptTokens: 10, ResponseTokens: 5,
		ValidationStatus: "SUCCESS",
	})

	var promptText, responseText, status string
	err = db.DB().QueryRowContext(ctx, `SELECT payload->>'PromptText', payload->>'ResponseText', status FROM llm_traces WHERE trace_id = $1`, "trace-1").
		Scan(&promptText, &responseText, &status)
	require.NoError(t, err)
	require.NotContains(t, promptText, "oncall@example.com")
	require.NotContains(t, promptText, "123456789012")
	require.Contains(t, promptText, "[MASKED_EMAIL]")
	require.Equal(t, "SUCCESS", status)

	sink.EmitGuardrailViolation(ctx, observability.GuardrailViolationEvent{
		ViolationID:    "viol-1",
		SessionID:      "sess-1",
		ExecutionID:    "exec-1",
		AgentID:        "signal-intelligence",
		Violation:      observability.GuardrailViolation{Type: "pii-guard", Action: "BLOCKED", Category: "pii"},
		RedactedInput:  "ssn is 123-45-6789",
		RedactedOutput: "cannot proceed",
	})

	var redactedInput, guardrailID string
	err = db.DB().QueryRowContext(ctx, `SELECT payload->>'RedactedInput', guardrail_id FROM guardrail_violations WHERE violation_id = $1`, "viol-1").
		Scan(&redactedInput, &guardrailID)
	require.NoError(t, err)
	require.NotContains(t, redactedInput, "123-45-6789")
	require.Contains(t, redactedInput, "[MASKED_SSN]")
	require.Equal(t, "pii-guard", guardrailID)
}
