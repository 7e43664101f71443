package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/thrdstr/backend/internal/middleware"
	"github.com/thrdstr/backend/internal/storage"
	"github.com/thrdstr/backend/pkg/utils"
)

const presignExpiry = 15 * time.Minute

type AssetsHandler struct {
	Storage *storage.MinIOClient
}

func NewAssetsHandler(storageClient *storage.MinIOClient) *AssetsHandler {
	return &AssetsHandler{Storage: storageClient}
}

// Get serves a stored media object (avatar, banner, post image or file) by its
// object key. The default mode streams the object; ?presign=true answers with
// a short-lived direct URL instead.
func (h *AssetsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	objectKey := strings.TrimPrefix(c.Params("*"), "/")
	if !storage.ValidAssetKey(objectKey) {
		return utils.Error(c, fiber.StatusNotFound, "asset not found")
	}

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "object storage not configured")
	}

	if c.QueryBool("presign") {
		url, err := h.Storage.PresignedGetURL(c.Context(), objectKey, presignExpiry)
		if err != nil {
			return utils.Error(c, fiber.StatusNotFound, "asset not found")
		}
		return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
	}

	obj, err := h.Storage.Download(c.Context(), objectKey)
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "asset not found")
	}

	stat, err := obj.Stat()
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "asset not found")
	}

	if stat.ContentType != "" {
		c.Set(fiber.HeaderContentType, stat.ContentType)
	}
	return c.SendStream(obj, int(stat.Size))
}
