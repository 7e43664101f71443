package handlers

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/thrdstr/backend/internal/middleware"
	"github.com/thrdstr/backend/internal/models"
	"github.com/thrdstr/backend/internal/services"
	"github.com/thrdstr/backend/internal/storage"
	"github.com/thrdstr/backend/pkg/logger"
	"github.com/thrdstr/backend/pkg/utils"
	"gorm.io/gorm"
)

type PostsHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Access  *services.AccessService
	Audit   *services.AuditService
}

func NewPostsHandler(db *gorm.DB, storageClient *storage.MinIOClient, access *services.AccessService, audit *services.AuditService) *PostsHandler {
	return &PostsHandler{DB: db, Storage: storageClient, Access: access, Audit: audit}
}

// ListByGroup returns a group's posts most-recent-first, each annotated with
// its distinct-liker count and whether the caller liked it.
func (h *PostsHandler) ListByGroup(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	var posts []models.Post
	if err := h.DB.Preload("Owner").
		Where("group_id = ?", group.ID).
		Order("created_at DESC").
		Find(&posts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing posts")
	}

	if err := h.annotateLikes(posts, currentUser.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting likes")
	}

	return utils.Success(c, fiber.StatusOK, posts)
}

func (h *PostsHandler) annotateLikes(posts []models.Post, viewerID uuid.UUID) error {
	if len(posts) == 0 {
		return nil
	}

	postIDs := make([]uuid.UUID, len(posts))
	for i := range posts {
		postIDs[i] = posts[i].ID
	}

	type likeRow struct {
		PostID uuid.UUID
		Total  int64
	}
	var counts []likeRow
	if err := h.DB.Model(&models.PostLike{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&counts).Error; err != nil {
		return err
	}

	var likedIDs []uuid.UUID
	if err := h.DB.Model(&models.PostLike{}).
		Where("post_id IN ? AND user_id = ?", postIDs, viewerID).
		Pluck("post_id", &likedIDs).Error; err != nil {
		return err
	}

	countByPost := make(map[uuid.UUID]int64, len(counts))
	for _, row := range counts {
		countByPost[row.PostID] = row.Total
	}
	liked := make(map[uuid.UUID]bool, len(likedIDs))
	for _, id := range likedIDs {
		liked[id] = true
	}

	for i := range posts {
		posts[i].LikeCount = countByPost[posts[i].ID]
		posts[i].LikedByMe = liked[posts[i].ID]
	}
	return nil
}

// Create accepts a multipart form scoped to a group. Every content field is
// optional; a post may be empty apart from its owner and group.
func (h *PostsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if utf8.RuneCountInString(title) > 100 {
		return utils.Error(c, fiber.StatusBadRequest, "title must be at most 100 characters")
	}
	body := strings.TrimSpace(c.FormValue("body"))
	if utf8.RuneCountInString(body) > 500 {
		return utils.Error(c, fiber.StatusBadRequest, "body must be at most 500 characters")
	}

	imageKey, err := storeFormFile(c, h.Storage, "image", storage.NamespacePostImage)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing image")
	}
	fileKey, err := storeFormFile(c, h.Storage, "file", storage.NamespacePostFile)
	if err != nil {
		if imageKey != nil {
			deleteStoredObject(c, h.Storage, *imageKey)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	post := models.Post{
		OwnerID:   currentUser.ID,
		GroupID:   group.ID,
		ImagePath: imageKey,
		FilePath:  fileKey,
	}
	if title != "" {
		post.Title = &title
	}
	if body != "" {
		post.Body = &body
	}

	if err := h.DB.Create(&post).Error; err != nil {
		if imageKey != nil {
			deleteStoredObject(c, h.Storage, *imageKey)
		}
		if fileKey != nil {
			deleteStoredObject(c, h.Storage, *fileKey)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating post")
	}

	logger.InfoWithUser(currentUser.ID.String(), "post_created", map[string]interface{}{
		"post_id":  post.ID.String(),
		"group_id": group.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "post.create",
		ResourceType: "post",
		ResourceID:   &post.ID,
		Details: map[string]interface{}{
			"username": currentUser.Username,
			"group_id": group.ID.String(),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, post)
}

// Update is owner-only and replaces title/body/image/file. The edited flag is
// set whenever any of them actually changes.
func (h *PostsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	postID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "post not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	if !h.Access.CanModifyPost(currentUser, &post) {
		return utils.Error(c, fiber.StatusForbidden, "only the post owner can edit the post")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if utf8.RuneCountInString(title) > 100 {
		return utils.Error(c, fiber.StatusBadRequest, "title must be at most 100 characters")
	}
	body := strings.TrimSpace(c.FormValue("body"))
	if utf8.RuneCountInString(body) > 500 {
		return utils.Error(c, fiber.StatusBadRequest, "body must be at most 500 characters")
	}

	updates := map[string]interface{}{}
	changed := false

	if title == "" {
		if post.Title != nil {
			updates["title"] = nil
			changed = true
		}
	} else if post.Title == nil || *post.Title != title {
		updates["title"] = title
		changed = true
	}

	if body == "" {
		if post.Body != nil {
			updates["body"] = nil
			changed = true
		}
	} else if post.Body == nil || *post.Body != body {
		updates["body"] = body
		changed = true
	}

	imageKey, err := storeFormFile(c, h.Storage, "image", storage.NamespacePostImage)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing image")
	}
	if imageKey != nil {
		if post.ImagePath != nil {
			deleteStoredObject(c, h.Storage, *post.ImagePath)
		}
		updates["image_path"] = *imageKey
		changed = true
	}

	fileKey, err := storeFormFile(c, h.Storage, "file", storage.NamespacePostFile)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}
	if fileKey != nil {
		if post.FilePath != nil {
			deleteStoredObject(c, h.Storage, *post.FilePath)
		}
		updates["file_path"] = *fileKey
		changed = true
	}

	if changed {
		updates["edited"] = true
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&models.Post{}).Where("id = ?", post.ID).Updates(updates).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating post")
		}
	}

	var updated models.Post
	if err := h.DB.First(&updated, "id = ?", post.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated post")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "post.update",
		ResourceType: "post",
		ResourceID:   &post.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete is owner-only and removes the post, its like rows, and its stored
// attachments.
func (h *PostsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	postID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "post not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	if !h.Access.CanModifyPost(currentUser, &post) {
		return utils.Error(c, fiber.StatusForbidden, "only the post owner can delete the post")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, "id = ?", post.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting post")
	}

	if post.ImagePath != nil {
		deleteStoredObject(c, h.Storage, *post.ImagePath)
	}
	if post.FilePath != nil {
		deleteStoredObject(c, h.Storage, *post.FilePath)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "post.delete",
		ResourceType: "post",
		ResourceID:   &post.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "post deleted"})
}

// Like adds the caller to the liker set and answers with the bare counter
// body {"likes": n} so clients can update in place. Liking twice is a no-op.
func (h *PostsHandler) Like(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	postID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "post not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	// A concurrent like can lose the FirstOrCreate race against the pair
	// index; the duplicate just means the like already exists.
	var like models.PostLike
	result := h.DB.Where(models.PostLike{UserID: currentUser.ID, PostID: post.ID}).
		FirstOrCreate(&like)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed liking post")
	}

	if result.Error == nil && result.RowsAffected > 0 {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &currentUser.ID,
			Action:       "post.like",
			ResourceType: "post",
			ResourceID:   &post.ID,
			Details: map[string]interface{}{
				"username": currentUser.Username,
			},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
	}

	return h.respondLikeCount(c, post.ID)
}

// Unlike removes the caller from the liker set; removing an absent like is a
// no-op and the count never goes negative.
func (h *PostsHandler) Unlike(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	postID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "post not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	result := h.DB.Where("user_id = ? AND post_id = ?", currentUser.ID, post.ID).
		Delete(&models.PostLike{})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed unliking post")
	}

	if result.RowsAffected > 0 {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &currentUser.ID,
			Action:       "post.unlike",
			ResourceType: "post",
			ResourceID:   &post.ID,
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return h.respondLikeCount(c, post.ID)
}

func (h *PostsHandler) respondLikeCount(c *fiber.Ctx, postID uuid.UUID) error {
	var count int64
	if err := h.DB.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting likes")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"likes": count})
}
