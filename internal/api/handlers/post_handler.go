package handlers

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"postpilot/internal/models"
	"postpilot/internal/service"
	"postpilot/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(s service.PostService) *PostHandler {
	return &PostHandler{s: s}
}

// SchedulePost accepts a multipart form: platform, account_ref, caption
// and an optional media file. The publish time comes from the slot
// calculator, not the caller.
func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	req := &transfer.ScheduleRequest{
		Platform:   c.FormValue("platform"),
		AccountRef: c.FormValue("account_ref"),
		Caption:    c.FormValue("caption"),
	}

	var media []byte
	if file, err := c.FormFile("media"); err == nil {
		f, err := file.Open()
		if err != nil {
			slog.Error(err.Error())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to read media file",
			})
		}
		defer f.Close()

		media, err = io.ReadAll(f)
		if err != nil {
			slog.Error(err.Error())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to read media file",
			})
		}
	}

	post, err := h.s.Schedule(c.Context(), req, media)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	postID := c.QueryInt("id", 0)
	if postID != 0 {
		post, err := h.s.Info(c.Context(), int64(postID))
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), c.Query("status"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	newTime, err := time.Parse(time.RFC3339, req.NewTime)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "new_time must be RFC 3339",
		})
	}

	if err := h.s.Reschedule(c.Context(), req.ID, newTime); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	var req transfer.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	if err := h.s.Cancel(c.Context(), req.ID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// RetryPost resets a failed post back to pending, optionally at an
// explicit new time.
func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	var req transfer.RetryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	var newTime *time.Time
	if req.NewTime != "" {
		t, err := time.Parse(time.RFC3339, req.NewTime)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "new_time must be RFC 3339",
			})
		}
		newTime = &t
	}

	if err := h.s.Retry(c.Context(), req.ID, newTime); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func writeError(c *fiber.Ctx, err error) error {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
