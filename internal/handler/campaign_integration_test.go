package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/contesthub/mailing-engine/internal/resolver"
	"github.com/contesthub/mailing-engine/internal/service"
	"github.com/contesthub/mailing-engine/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestCampaignIntegration_CreateCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		createFn: func(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
			c.ID = "c-created"
			c.State = domain.StateDraft
			if err := c.Validate(); err != nil {
				return nil, err
			}
			return c, nil
		},
		previewRecipientsFn: func(ctx context.Context, id string) ([]resolver.Recipient, error) {
			return []resolver.Recipient{
				{Address: "a@example.com"},
				{Address: "b@example.com"},
			}, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	validBody := `{"name":"launch","subject":"Season opening","body":"Doors open at nine.","target":{"mode":"by_category","category":"approved"}}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/campaigns", validBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "c-created" {
		t.Fatalf("id = %v, want c-created", created["id"])
	}
	if created["state"] != domain.StateDraft.String() {
		t.Fatalf("state = %v, want DRAFT", created["state"])
	}
	if created["estimatedRecipients"] != float64(2) {
		t.Fatalf("estimatedRecipients = %v, want 2", created["estimatedRecipients"])
	}

	missingSubjectBody := `{"name":"launch","subject":"","body":"hello","target":{"mode":"by_category","category":"approved"}}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns", missingSubjectBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing subject", resp.StatusCode)
	}

	badModeBody := `{"name":"launch","subject":"s","body":"b","target":{"mode":"everyone"}}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns", badModeBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid mode", resp.StatusCode)
	}
}

func TestCampaignIntegration_CreateCampaignCustomList(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		createFn: func(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
			if c.Targeting.Mode != domain.TargetCustomList {
				t.Fatalf("mode = %s, want CUSTOM_LIST", c.Targeting.Mode)
			}
			if len(c.Targeting.Addresses) != 2 {
				t.Fatalf("addresses = %d, want 2", len(c.Targeting.Addresses))
			}
			c.ID = "c-custom"
			c.State = domain.StateDraft
			return c, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	body := `{"name":"custom","subject":"s","body":"b","target":{"mode":"custom_list","addresses":["a@example.com","b@example.com"]}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/campaigns", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}
}

func TestCampaignIntegration_CreateCampaignLimitedRequiresLimit(t *testing.T) {
	t.Parallel()

	app := newCampaignTestApp(t, &stubCampaignService{})

	body := `{"name":"n","subject":"s","body":"b","target":{"mode":"limited_by_category","category":"all"}}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/campaigns", body)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing limit", resp.StatusCode)
	}
}

func TestCampaignIntegration_GetCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		getByIDFn: func(ctx context.Context, id string) (*domain.Campaign, error) {
			if id == "c-found" {
				return &domain.Campaign{
					ID:        "c-found",
					Name:      "launch",
					Subject:   "s",
					Body:      "b",
					Targeting: domain.NewCategoryTargeting(domain.CategoryAll, nil),
					State:     domain.StateSent,
				}, nil
			}
			return nil, domain.ErrNotFound
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/campaigns/c-found", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCampaignIntegration_SendCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		sendNowFn: func(ctx context.Context, id string) error {
			if id == "c-sendable" {
				return nil
			}
			return domain.ErrConflict
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/campaigns/c-sendable/send", "")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != "queued" {
		t.Fatalf("status = %v, want queued", parsed["status"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns/c-sent/send", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for already sent campaign", resp.StatusCode)
	}
}

func TestCampaignIntegration_DeleteCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		deleteFn: func(ctx context.Context, id string) error {
			if id == "c-exists" {
				return nil
			}
			return domain.ErrNotFound
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/campaigns/c-exists", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/campaigns/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCampaignIntegration_ListCampaignsFilters(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		listFn: func(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error) {
			if params.Page != 2 || params.PageSize != 10 {
				t.Fatalf("pagination = (%d, %d), want (2, 10)", params.Page, params.PageSize)
			}
			if params.State == nil || *params.State != domain.StateScheduled {
				t.Fatalf("state filter = %v, want SCHEDULED", params.State)
			}
			return []domain.Campaign{
				{
					ID:        "c-list-1",
					Name:      "n",
					Subject:   "s",
					Body:      "b",
					Targeting: domain.NewCategoryTargeting(domain.CategoryAll, nil),
					State:     domain.StateScheduled,
				},
			}, 1, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/campaigns?page=2&pageSize=10&state=scheduled", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Page     int   `json:"page"`
			PageSize int   `json:"pageSize"`
			Total    int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Page != 2 || parsed.Meta.PageSize != 10 || parsed.Meta.Total != 1 {
		t.Fatalf("meta = %+v, want page=2,pageSize=10,total=1", parsed.Meta)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns?state=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid state", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns?pageSize=500", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}
}

func TestCampaignIntegration_PreviewRecipients(t *testing.T) {
	t.Parallel()

	name := "Alpha"
	teamID := int64(7)
	svc := &stubCampaignService{
		previewRecipientsFn: func(ctx context.Context, id string) ([]resolver.Recipient, error) {
			if id != "c-1" {
				return nil, domain.ErrNotFound
			}
			return []resolver.Recipient{
				{Address: "alpha@example.com", Name: &name, TeamID: &teamID},
			}, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/campaigns/c-1/recipients", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed recipientsPreviewResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Total != 1 {
		t.Fatalf("total = %d, want 1", parsed.Total)
	}
	if parsed.Recipients[0].Address != "alpha@example.com" {
		t.Fatalf("address = %s, want alpha@example.com", parsed.Recipients[0].Address)
	}
}

func TestCampaignIntegration_Stats(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		statsFn: func(ctx context.Context, id string) (*service.CampaignStats, error) {
			if id != "c-1" {
				return nil, domain.ErrNotFound
			}
			return &service.CampaignStats{
				Campaign: &domain.Campaign{
					ID:              "c-1",
					State:           domain.StateSent,
					TotalRecipients: 10,
				},
				Delivered: repository.DeliveryAggregate{Total: 10, Sent: 8, Failed: 2},
			}, nil
		},
		overallStatsFn: func(ctx context.Context) (*service.EngineStats, error) {
			return &service.EngineStats{
				Delivered: repository.DeliveryAggregate{Total: 42, Sent: 40, Failed: 1, Pending: 1},
			}, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/campaigns/c-1/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var campaignStats campaignStatsResponse
	if err := json.Unmarshal(body, &campaignStats); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if campaignStats.Deliveries.Sent != 8 || campaignStats.Deliveries.Failed != 2 {
		t.Fatalf("deliveries = %+v, want sent=8 failed=2", campaignStats.Deliveries)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var overall overallStatsResponse
	if err := json.Unmarshal(body, &overall); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if overall.Deliveries.Total != 42 {
		t.Fatalf("total = %d, want 42", overall.Deliveries.Total)
	}
}

func TestCampaignIntegration_ListDeliveriesFilters(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		listDeliveriesFn: func(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryEntry, int64, error) {
			if params.CampaignID == nil || *params.CampaignID != "c-1" {
				t.Fatalf("campaignId filter = %v, want c-1", params.CampaignID)
			}
			if params.Status == nil || *params.Status != domain.DeliveryFailed {
				t.Fatalf("status filter = %v, want FAILED", params.Status)
			}
			if params.Search != "example.com" {
				t.Fatalf("search = %q, want example.com", params.Search)
			}
			reason := "mailbox unavailable"
			return []domain.DeliveryEntry{
				{
					ID:          "d-1",
					CampaignID:  "c-1",
					Recipient:   "x@example.com",
					Status:      domain.DeliveryFailed,
					ErrorReason: &reason,
					AttemptedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				},
			}, 1, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	path := "/v1/deliveries?campaignId=c-1&status=failed&search=example.com"
	resp, body := performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed listDeliveriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 {
		t.Fatalf("data len = %d, want 1", len(parsed.Data))
	}
	if parsed.Data[0].ErrorReason == nil || *parsed.Data[0].ErrorReason != "mailbox unavailable" {
		t.Fatalf("errorReason = %v, want mailbox unavailable", parsed.Data[0].ErrorReason)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deliveries?status=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid status", resp.StatusCode)
	}
}

func TestCampaignIntegration_MaintenanceClears(t *testing.T) {
	t.Parallel()

	clearedAll := false
	clearedLog := false
	svc := &stubCampaignService{
		clearAllFn: func(ctx context.Context) error {
			clearedAll = true
			return nil
		},
		clearDeliveryLogFn: func(ctx context.Context) error {
			clearedLog = true
			return nil
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/campaigns", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if !clearedAll {
		t.Fatal("ClearAll should be called")
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/deliveries", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if !clearedLog {
		t.Fatal("ClearDeliveryLog should be called")
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(nil))

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 503 when dependencies down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(errors.New("redis down"))
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}

type stubCampaignService struct {
	createFn            func(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	getByIDFn           func(ctx context.Context, id string) (*domain.Campaign, error)
	listFn              func(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error)
	deleteFn            func(ctx context.Context, id string) error
	sendNowFn           func(ctx context.Context, id string) error
	previewRecipientsFn func(ctx context.Context, id string) ([]resolver.Recipient, error)
	listDeliveriesFn    func(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryEntry, int64, error)
	statsFn             func(ctx context.Context, id string) (*service.CampaignStats, error)
	overallStatsFn      func(ctx context.Context) (*service.EngineStats, error)
	clearAllFn          func(ctx context.Context) error
	clearDeliveryLogFn  func(ctx context.Context) error
}

func (s *stubCampaignService) Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	if s.createFn != nil {
		return s.createFn(ctx, c)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCampaignService) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubCampaignService) List(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubCampaignService) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *stubCampaignService) SendNow(ctx context.Context, id string) error {
	if s.sendNowFn != nil {
		return s.sendNowFn(ctx, id)
	}
	return nil
}

func (s *stubCampaignService) PreviewRecipients(ctx context.Context, id string) ([]resolver.Recipient, error) {
	if s.previewRecipientsFn != nil {
		return s.previewRecipientsFn(ctx, id)
	}
	return nil, nil
}

func (s *stubCampaignService) ListDeliveries(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryEntry, int64, error) {
	if s.listDeliveriesFn != nil {
		return s.listDeliveriesFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubCampaignService) Stats(ctx context.Context, id string) (*service.CampaignStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubCampaignService) OverallStats(ctx context.Context) (*service.EngineStats, error) {
	if s.overallStatsFn != nil {
		return s.overallStatsFn(ctx)
	}
	return &service.EngineStats{}, nil
}

func (s *stubCampaignService) ClearAll(ctx context.Context) error {
	if s.clearAllFn != nil {
		return s.clearAllFn(ctx)
	}
	return nil
}

func (s *stubCampaignService) ClearDeliveryLog(ctx context.Context) error {
	if s.clearDeliveryLogFn != nil {
		return s.clearDeliveryLogFn(ctx)
	}
	return nil
}

func newCampaignTestApp(t *testing.T, svc CampaignService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterCampaignRoutes(app, svc); err != nil {
		t.Fatalf("RegisterCampaignRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
			cmd.SetErr(nil)
			return nil
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
