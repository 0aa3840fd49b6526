package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/api/http/handlers"
	"github.com/leaftogo/deskbot/internal/auth"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/observability"
	"github.com/leaftogo/deskbot/internal/repository"
	"github.com/leaftogo/deskbot/internal/service"
)

const webhookPath = "/telegram/webhook/testsecret"

type stubSink struct {
	accept  bool
	updates []tgbotapi.Update
}

func (s *stubSink) EnqueueWebhookUpdate(update tgbotapi.Update) bool {
	if s.accept {
		s.updates = append(s.updates, update)
	}
	return s.accept
}

type testServer struct {
	app     *fiber.App
	tickets repository.TicketRepository
	tokens  *auth.ExportTokenManager
	metrics *observability.Metrics
	sink    *stubSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app := fiber.New()
	metrics := observability.NewMetrics()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)

	tickets := repository.NewMemoryTicketRepository()
	journal := service.NewJournalService(service.JournalDependencies{
		TicketRepo: tickets,
		Logger:     zap.NewNop(),
	})
	tokens := auth.NewExportTokenManager("test-secret", time.Minute)
	sink := &stubSink{accept: true}

	RegisterRoutes(app, RouteConfig{
		Health:       handlers.NewHealthHandler("deskbot", "test", nil, nil),
		Metrics:      handlers.NewMetricsHandler(metrics),
		Export:       handlers.NewExportHandler(journal),
		Webhook:      handlers.NewWebhookHandler(sink),
		WebhookPath:  webhookPath,
		ExportTokens: tokens,
	})
	return &testServer{app: app, tickets: tickets, tokens: tokens, metrics: metrics, sink: sink}
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&payload))
	return payload
}

func errorCode(t *testing.T, payload map[string]any) string {
	t.Helper()
	envelope, ok := payload["error"].(map[string]any)
	require.True(t, ok, "expected an error envelope, got %v", payload)
	code, _ := envelope["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp.Body)
	assert.Equal(t, "alive", payload["status"])
	assert.Equal(t, "deskbot", payload["service"])

	resp, err = srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	payload = decodeBody(t, resp.Body)
	assert.Equal(t, "ready", payload["status"])
	deps := payload["dependencies"].(map[string]any)
	assert.Equal(t, "in-memory", deps["postgres"])
	assert.Equal(t, "in-memory", deps["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.metrics.RecordUpdate("message")

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp.Body)
	updates := payload["updates"].(map[string]any)
	assert.Equal(t, float64(1), updates["message"])
	assert.Contains(t, payload, "notifications")
}

func TestExportRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/export", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, decodeBody(t, resp.Body)))

	resp, err = srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/export?token=forged", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// The refusals surface in the error counters.
	errCounts := srv.metrics.Snapshot()["errors"].(map[string]int64)
	assert.Equal(t, int64(2), errCounts["GET /export|UNAUTHORIZED"])
}

func TestExportDownload(t *testing.T) {
	srv := newTestServer(t)
	tech := int64(2)
	done := time.Now().UTC()
	started := done.Add(-time.Hour)
	require.NoError(t, srv.tickets.Create(context.Background(), &domain.Ticket{
		Kind:         domain.TicketKindRepair,
		Status:       domain.TicketStatusDone,
		Priority:     domain.TicketPriorityNormal,
		ChatID:       100,
		AuthorID:     4,
		AuthorName:   "@author",
		AssigneeID:   &tech,
		AssigneeName: "@tech",
		Location:     "Цех 1",
		Equipment:    "Станок",
		Description:  "станок встал",
		StartedAt:    &started,
		DoneAt:       &done,
	}))

	token, _, err := srv.tokens.Issue("week")
	require.NoError(t, err)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/export?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/csv")
	assert.Equal(t, `attachment; filename="tickets_week.csv"`, resp.Header.Get(fiber.HeaderContentDisposition))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "repair", records[1][1])
	assert.Equal(t, "@tech", records[1][7])
}

func TestExportRejectsUnknownPeriod(t *testing.T) {
	srv := newTestServer(t)
	token, _, err := srv.tokens.Issue("decade")
	require.NoError(t, err)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/export?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, decodeBody(t, resp.Body)))
}

func TestWebhookReceive(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(fiber.MethodPost, webhookPath, strings.NewReader(`{"update_id":42}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, srv.sink.updates, 1)
	assert.Equal(t, 42, srv.sink.updates[0].UpdateID)
}

func TestWebhookRejectsGarbage(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(fiber.MethodPost, webhookPath, strings.NewReader(`{broken`))
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, decodeBody(t, resp.Body)))
	assert.Empty(t, srv.sink.updates)
}

func TestWebhookBackpressure(t *testing.T) {
	srv := newTestServer(t)
	srv.sink.accept = false

	req := httptest.NewRequest(fiber.MethodPost, webhookPath, strings.NewReader(`{"update_id":42}`))
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
