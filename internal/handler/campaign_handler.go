package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/numberset"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/kursadbilgin/campaign-engine/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type CampaignService interface {
	Create(ctx context.Context, in service.CreateCampaignInput) (*domain.Campaign, numberset.Stats, error)
	Preview(ctx context.Context, in numberset.Input) (numberset.Stats, error)
	Start(ctx context.Context, id string) (*service.StartResult, error)
	Cancel(ctx context.Context, id string) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Campaign, int64, error)
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

	router.Post("/campaigns", h.CreateCampaign)
	router.Post("/campaigns/preview", h.PreviewNumbers)
	router.Get("/campaigns", h.ListCampaigns)
	router.Get("/campaigns/:id", h.GetCampaign)
	router.Post("/campaigns/:id/start", h.StartCampaign)
	router.Post("/campaigns/:id/cancel", h.CancelCampaign)

	return nil
}

type campaignResponse struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Message              string              `json:"message"`
	MessagesPerHour      int                 `json:"messages_per_hour"`
	SelectedCategoryName *string             `json:"selected_category_name"`
	Status               string              `json:"status"`
	TotalCount           int                 `json:"total_count"`
	ProcessedCount       int                 `json:"processed_count"`
	ErrorCount           int                 `json:"error_count"`
	PendingCount         int                 `json:"pending_count"`
	FailureReason        *string             `json:"failure_reason"`
	Media                *mediaResponse      `json:"media"`
	CreatedAt            time.Time           `json:"created_at"`
	StartedAt            *time.Time          `json:"started_at"`
	FinishedAt           *time.Time          `json:"finished_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	SentNumbers          *[]sentNumberItem   `json:"sent_numbers,omitempty"`
	FailedNumbers        *[]failedNumberItem `json:"failed_numbers,omitempty"`
}

type mediaResponse struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	MessageType string `json:"message_type"`
	Size        int64  `json:"size"`
}

type sentNumberItem struct {
	PhoneNumber string     `json:"phone_number"`
	SentAt      *time.Time `json:"sent_at"`
}

type failedNumberItem struct {
	PhoneNumber string `json:"phone_number"`
	Error       string `json:"error"`
}

type campaignEnvelope struct {
	Campaign            campaignResponse `json:"campaign"`
	Stats               *numberset.Stats `json:"stats,omitempty"`
	EstimatedCompletion *time.Time       `json:"estimated_completion,omitempty"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
	Total     int64              `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart/form-data body")
	}

	in, cleanup, err := createInputFromForm(form)
	defer cleanup()
	if err != nil {
		return toHTTPError(err)
	}

	campaign, stats, err := h.service.Create(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(campaignEnvelope{
		Campaign: toCampaignResponse(campaign, false),
		Stats:    &stats,
	})
}

func (h *CampaignHandler) PreviewNumbers(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart/form-data body")
	}

	numbers, cleanup, err := numbersInputFromForm(form)
	defer cleanup()
	if err != nil {
		return toHTTPError(err)
	}

	stats, err := h.service.Preview(c.UserContext(), numbers)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"stats": stats})
}

func (h *CampaignHandler) StartCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	res, err := h.service.Start(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	eta := res.EstimatedCompletion
	return c.Status(fiber.StatusOK).JSON(campaignEnvelope{
		Campaign:            toCampaignResponse(res.Campaign, false),
		EstimatedCompletion: &eta,
	})
}

func (h *CampaignHandler) CancelCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	campaign, err := h.service.Cancel(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(campaignEnvelope{Campaign: toCampaignResponse(campaign, false)})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	campaign, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(campaignEnvelope{Campaign: toCampaignResponse(campaign, true)})
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	campaigns, total, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]campaignResponse, 0, len(campaigns))
	for i := range campaigns {
		items = append(items, toCampaignResponse(&campaigns[i], false))
	}

	return c.Status(fiber.StatusOK).JSON(listCampaignsResponse{
		Campaigns: items,
		Total:     total,
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Limit:  c.QueryInt("limit", defaultListLimit),
		Offset: c.QueryInt("offset", 0),
	}

	if params.Limit < 1 || params.Limit > maxListLimit {
		return repository.ListParams{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}
	if params.Offset < 0 {
		return repository.ListParams{}, fmt.Errorf("%w: offset must be >= 0", domain.ErrValidation)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseCampaignStatus(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func createInputFromForm(form *multipart.Form) (service.CreateCampaignInput, func(), error) {
	numbers, cleanup, err := numbersInputFromForm(form)
	if err != nil {
		return service.CreateCampaignInput{}, cleanup, err
	}

	rawRate := strings.TrimSpace(formValue(form, "messages_per_hour"))
	rate, err := strconv.Atoi(rawRate)
	if err != nil {
		return service.CreateCampaignInput{}, cleanup, fmt.Errorf("%w: messages_per_hour must be an integer", domain.ErrValidation)
	}

	in := service.CreateCampaignInput{
		Name:            formValue(form, "name"),
		Message:         formValue(form, "message"),
		MessagesPerHour: rate,
		Numbers:         numbers,
	}
	if category := formValue(form, "selected_category_name"); category != "" {
		in.CategoryFilter = &category
	}

	media, err := readUpload(formFile(form, "media_file"))
	if err != nil {
		return service.CreateCampaignInput{}, cleanup, err
	}
	in.Media = media

	return in, cleanup, nil
}

// numbersInputFromForm opens the numbers upload; cleanup closes it and is
// always safe to call.
func numbersInputFromForm(form *multipart.Form) (numberset.Input, func(), error) {
	cleanup := func() {}
	in := numberset.Input{
		Additional: formValue(form, "additional_numbers"),
		Exclude:    formValue(form, "exclude_numbers"),
	}

	header := formFile(form, "numbers_file")
	if header == nil {
		return in, cleanup, nil
	}

	file, err := header.Open()
	if err != nil {
		return in, cleanup, fmt.Errorf("%w: cannot open numbers_file: %v", domain.ErrValidation, err)
	}
	in.Sheet = file
	in.Filename = header.Filename
	return in, func() { _ = file.Close() }, nil
}

func readUpload(header *multipart.FileHeader) (*service.MediaUpload, error) {
	if header == nil {
		return nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", domain.ErrValidation, header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", domain.ErrValidation, header.Filename, err)
	}

	return &service.MediaUpload{
		Filename: header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Data:     data,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func formFile(form *multipart.Form, key string) *multipart.FileHeader {
	if files := form.File[key]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func toCampaignResponse(c *domain.Campaign, withNumbers bool) campaignResponse {
	if c == nil {
		return campaignResponse{}
	}

	resp := campaignResponse{
		ID:                   c.ID,
		Name:                 c.Name,
		Message:              c.Message,
		MessagesPerHour:      c.MessagesPerHour,
		SelectedCategoryName: c.CategoryFilter,
		Status:               c.Status.String(),
		TotalCount:           c.TotalCount,
		ProcessedCount:       c.ProcessedCount,
		ErrorCount:           c.ErrorCount,
		PendingCount:         c.PendingCount(),
		FailureReason:        c.FailureReason,
		CreatedAt:            c.CreatedAt,
		StartedAt:            c.StartedAt,
		FinishedAt:           c.FinishedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	if c.Media != nil {
		resp.Media = &mediaResponse{
			Filename:    c.Media.Filename,
			MimeType:    c.Media.MimeType,
			MessageType: c.Media.MessageType.String(),
			Size:        c.Media.ByteSize,
		}
	}
	if !withNumbers {
		return resp
	}

	// Detail views always carry both lists, empty or not.
	sent := make([]sentNumberItem, 0)
	for _, n := range c.SentNumbers() {
		sent = append(sent, sentNumberItem{PhoneNumber: n.PhoneNumber, SentAt: n.SentAt})
	}
	failed := make([]failedNumberItem, 0)
	for _, n := range c.FailedNumbers() {
		item := failedNumberItem{PhoneNumber: n.PhoneNumber}
		if n.Error != nil {
			item.Error = *n.Error
		}
		failed = append(failed, item)
	}
	resp.SentNumbers = &sent
	resp.FailedNumbers = &failed
	return resp
}
