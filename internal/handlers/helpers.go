package handlers

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/thrdstr/backend/internal/storage"
)

var errStorageUnavailable = errors.New("object storage not configured")

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestID").(string); ok {
		return id
	}
	return ""
}

// parseDate accepts the YYYY-MM-DD wire format used for dates of birth.
func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(value))
}

// formBool reports whether a form field holds an affirmative sentinel value.
func formBool(c *fiber.Ctx, field string) bool {
	switch strings.ToLower(strings.TrimSpace(c.FormValue(field))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// storeFormFile uploads an optional multipart file into the given namespace
// and returns its object key, or nil when the field was not submitted.
func storeFormFile(c *fiber.Ctx, store *storage.MinIOClient, field, namespace string) (*string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil || fileHeader == nil {
		return nil, nil
	}

	if store == nil {
		return nil, errStorageUnavailable
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" {
		filename = "upload"
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := storage.ObjectKey(namespace, filename)
	if err := store.Upload(c.Context(), objectKey, stream, fileHeader.Size, contentType); err != nil {
		return nil, err
	}
	return &objectKey, nil
}

// deleteStoredObject is best-effort cleanup; failures are already logged by
// the storage client.
func deleteStoredObject(c *fiber.Ctx, store *storage.MinIOClient, objectKey string) {
	if store == nil || objectKey == "" {
		return
	}
	_ = store.Delete(c.Context(), objectKey)
}
