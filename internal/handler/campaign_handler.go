package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/contesthub/mailing-engine/internal/resolver"
	"github.com/contesthub/mailing-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type CampaignService interface {
	Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error)
	Delete(ctx context.Context, id string) error
	SendNow(ctx context.Context, id string) error
	PreviewRecipients(ctx context.Context, id string) ([]resolver.Recipient, error)
	ListDeliveries(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryEntry, int64, error)
	Stats(ctx context.Context, id string) (*service.CampaignStats, error)
	OverallStats(ctx context.Context) (*service.EngineStats, error)
	ClearAll(ctx context.Context) error
	ClearDeliveryLog(ctx context.Context) error
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

func RegisterCampaignRoutes(router fiber.Router, service CampaignService) error {
	h, err := NewCampaignHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/campaigns", h.CreateCampaign)
	v1.Get("/campaigns", h.ListCampaigns)
	v1.Delete("/campaigns", h.ClearCampaigns)
	v1.Get("/campaigns/:id", h.GetCampaign)
	v1.Delete("/campaigns/:id", h.DeleteCampaign)
	v1.Post("/campaigns/:id/send", h.SendCampaign)
	v1.Get("/campaigns/:id/recipients", h.PreviewRecipients)
	v1.Get("/campaigns/:id/stats", h.GetCampaignStats)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Delete("/deliveries", h.ClearDeliveries)
	v1.Get("/stats", h.GetOverallStats)

	return nil
}

type targetRequest struct {
	Mode      string   `json:"mode"`
	Category  string   `json:"category,omitempty"`
	SeasonID  *int64   `json:"seasonId,omitempty"`
	Limit     *int     `json:"limit,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

type createCampaignRequest struct {
	Name        string        `json:"name"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	ScheduledAt *time.Time    `json:"scheduledAt,omitempty"`
	Target      targetRequest `json:"target"`
}

type targetResponse struct {
	Mode      string   `json:"mode"`
	Category  string   `json:"category,omitempty"`
	SeasonID  *int64   `json:"seasonId,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

type campaignResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Subject         string         `json:"subject"`
	Body            string         `json:"body"`
	Target          targetResponse `json:"target"`
	ScheduledAt     *time.Time     `json:"scheduledAt,omitempty"`
	State           string         `json:"state"`
	TotalRecipients int            `json:"totalRecipients"`
	SentCount       int            `json:"sentCount"`
	FailedCount     int            `json:"failedCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type createCampaignResponse struct {
	campaignResponse
	EstimatedRecipients *int `json:"estimatedRecipients,omitempty"`
}

type listCampaignsResponse struct {
	Data []campaignResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type recipientItem struct {
	Address string  `json:"address"`
	Name    *string `json:"name,omitempty"`
	TeamID  *int64  `json:"teamId,omitempty"`
}

type recipientsPreviewResponse struct {
	CampaignID string          `json:"campaignId"`
	Total      int             `json:"total"`
	Recipients []recipientItem `json:"recipients"`
}

type deliveryResponse struct {
	ID            string    `json:"id"`
	CampaignID    string    `json:"campaignId"`
	Recipient     string    `json:"recipient"`
	RecipientName *string   `json:"recipientName,omitempty"`
	TeamID        *int64    `json:"teamId,omitempty"`
	Status        string    `json:"status"`
	ErrorReason   *string   `json:"errorReason,omitempty"`
	AttemptedAt   time.Time `json:"attemptedAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type deliveryCounts struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}

type campaignStatsResponse struct {
	CampaignID      string         `json:"campaignId"`
	State           string         `json:"state"`
	TotalRecipients int            `json:"totalRecipients"`
	Deliveries      deliveryCounts `json:"deliveries"`
}

type overallStatsResponse struct {
	Deliveries deliveryCounts `json:"deliveries"`
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	campaign, err := requestToDomainCampaign(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), &campaign)
	if err != nil {
		return toHTTPError(err)
	}

	resp := createCampaignResponse{campaignResponse: toCampaignResponse(created)}
	if recipients, err := h.service.PreviewRecipients(c.Context(), created.ID); err == nil {
		count := len(recipients)
		resp.EstimatedRecipients = &count
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	campaign, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	params, err := parseCampaignListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	campaigns, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]campaignResponse, 0, len(campaigns))
	for i := range campaigns {
		data = append(data, toCampaignResponse(&campaigns[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listCampaignsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *CampaignHandler) DeleteCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CampaignHandler) SendCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.SendNow(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"campaignId": id,
		"status":     "queued",
	})
}

func (h *CampaignHandler) PreviewRecipients(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	recipients, err := h.service.PreviewRecipients(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]recipientItem, 0, len(recipients))
	for _, recipient := range recipients {
		items = append(items, recipientItem{
			Address: recipient.Address,
			Name:    recipient.Name,
			TeamID:  recipient.TeamID,
		})
	}

	return c.Status(fiber.StatusOK).JSON(recipientsPreviewResponse{
		CampaignID: id,
		Total:      len(items),
		Recipients: items,
	})
}

func (h *CampaignHandler) GetCampaignStats(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	stats, err := h.service.Stats(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(campaignStatsResponse{
		CampaignID:      stats.Campaign.ID,
		State:           stats.Campaign.State.String(),
		TotalRecipients: stats.Campaign.TotalRecipients,
		Deliveries:      toDeliveryCounts(stats.Delivered),
	})
}

func (h *CampaignHandler) GetOverallStats(c *fiber.Ctx) error {
	stats, err := h.service.OverallStats(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(overallStatsResponse{
		Deliveries: toDeliveryCounts(stats.Delivered),
	})
}

func (h *CampaignHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseDeliveryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, total, err := h.service.ListDeliveries(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(entries))
	for i := range entries {
		data = append(data, toDeliveryResponse(&entries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *CampaignHandler) ClearCampaigns(c *fiber.Ctx) error {
	if err := h.service.ClearAll(c.Context()); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CampaignHandler) ClearDeliveries(c *fiber.Ctx) error {
	if err := h.service.ClearDeliveryLog(c.Context()); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseCampaignListParams(c *fiber.Ctx) (repository.CampaignListParams, error) {
	params := repository.CampaignListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.CampaignListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.CampaignListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseCampaignStateFromString(rawState)
		if err != nil {
			return repository.CampaignListParams{}, err
		}
		params.State = &state
	}

	return params, nil
}

func parseDeliveryListParams(c *fiber.Ctx) (repository.DeliveryListParams, error) {
	params := repository.DeliveryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
		Search:   strings.TrimSpace(c.Query("search")),
	}

	if params.Page < 1 {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawCampaignID := strings.TrimSpace(c.Query("campaignId")); rawCampaignID != "" {
		params.CampaignID = &rawCampaignID
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseDeliveryStatusFromString(rawStatus)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func requestToDomainCampaign(req createCampaignRequest) (domain.Campaign, error) {
	targeting, err := requestToTargeting(req.Target)
	if err != nil {
		return domain.Campaign{}, err
	}

	return domain.Campaign{
		Name:        strings.TrimSpace(req.Name),
		Subject:     strings.TrimSpace(req.Subject),
		Body:        strings.TrimSpace(req.Body),
		Targeting:   targeting,
		ScheduledAt: req.ScheduledAt,
	}, nil
}

func requestToTargeting(req targetRequest) (domain.Targeting, error) {
	mode, err := domain.ParseTargetingModeFromString(req.Mode)
	if err != nil {
		return domain.Targeting{}, err
	}

	switch mode {
	case domain.TargetCustomList:
		return domain.NewCustomListTargeting(req.Addresses), nil
	case domain.TargetByCategory, domain.TargetLimitedByCategory:
		category, err := domain.ParseTeamCategoryFromString(req.Category)
		if err != nil {
			return domain.Targeting{}, err
		}
		if mode == domain.TargetLimitedByCategory {
			if req.Limit == nil {
				return domain.Targeting{}, fmt.Errorf("%w: limit is required for limited targeting", domain.ErrValidation)
			}
			return domain.NewLimitedCategoryTargeting(category, req.SeasonID, *req.Limit), nil
		}
		return domain.NewCategoryTargeting(category, req.SeasonID), nil
	}

	return domain.Targeting{}, fmt.Errorf("%w: invalid targeting mode %q", domain.ErrValidation, req.Mode)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	if campaign == nil {
		return campaignResponse{}
	}

	return campaignResponse{
		ID:      campaign.ID,
		Name:    campaign.Name,
		Subject: campaign.Subject,
		Body:    campaign.Body,
		Target: targetResponse{
			Mode:      campaign.Targeting.Mode.String(),
			Category:  campaign.Targeting.Category.String(),
			SeasonID:  campaign.Targeting.SeasonID,
			Limit:     campaign.Targeting.Limit,
			Addresses: campaign.Targeting.Addresses,
		},
		ScheduledAt:     campaign.ScheduledAt,
		State:           campaign.State.String(),
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		FailedCount:     campaign.FailedCount,
		CreatedAt:       campaign.CreatedAt,
		SentAt:          campaign.SentAt,
		UpdatedAt:       campaign.UpdatedAt,
	}
}

func toDeliveryResponse(entry *domain.DeliveryEntry) deliveryResponse {
	return deliveryResponse{
		ID:            entry.ID,
		CampaignID:    entry.CampaignID,
		Recipient:     entry.Recipient,
		RecipientName: entry.RecipientName,
		TeamID:        entry.TeamID,
		Status:        entry.Status.String(),
		ErrorReason:   entry.ErrorReason,
		AttemptedAt:   entry.AttemptedAt,
	}
}

func toDeliveryCounts(agg repository.DeliveryAggregate) deliveryCounts {
	return deliveryCounts{
		Total:   agg.Total,
		Sent:    agg.Sent,
		Failed:  agg.Failed,
		Pending: agg.Pending,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
