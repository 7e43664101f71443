package handlers

import (
	"strings"

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

type UsersHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Audit   *services.AuditService
}

func NewUsersHandler(db *gorm.DB, storageClient *storage.MinIOClient, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Storage: storageClient, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p, total)
}

func (h *UsersHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	search := strings.TrimSpace(c.Query("search"))
	limit := c.QueryInt("limit", 5)
	if limit > 50 {
		limit = 50
	}

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var users []models.User
	if err := query.Order("created_at DESC").Limit(limit).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed searching users")
	}

	return utils.Success(c, fiber.StatusOK, users)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// Delete removes an account and everything it owns: posts and their likes,
// owned groups with their posts and memberships, subscriptions, likes given,
// and notifications. Admins may delete anyone; users only themselves.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if currentUser.Role != models.UserRoleAdmin && currentUser.ID != userID {
		return utils.Error(c, fiber.StatusForbidden, "cannot delete another user")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	var ownedGroups []models.Group
	if err := h.DB.Where("owner_id = ?", user.ID).Find(&ownedGroups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading owned groups")
	}
	ownedGroupIDs := make([]uuid.UUID, len(ownedGroups))
	for i := range ownedGroups {
		ownedGroupIDs[i] = ownedGroups[i].ID
	}

	// Posts that disappear with the account: authored anywhere, plus every
	// post inside a group the account owns.
	var doomedPosts []models.Post
	postQuery := h.DB.Where("owner_id = ?", user.ID)
	if len(ownedGroupIDs) > 0 {
		postQuery = postQuery.Or("group_id IN ?", ownedGroupIDs)
	}
	if err := postQuery.Find(&doomedPosts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading posts")
	}
	doomedPostIDs := make([]uuid.UUID, len(doomedPosts))
	for i := range doomedPosts {
		doomedPostIDs[i] = doomedPosts[i].ID
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if len(doomedPostIDs) > 0 {
			if err := tx.Where("post_id IN ?", doomedPostIDs).Delete(&models.PostLike{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", doomedPostIDs).Delete(&models.Post{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		if len(ownedGroupIDs) > 0 {
			if err := tx.Where("group_id IN ?", ownedGroupIDs).Delete(&models.GroupMembership{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ownedGroupIDs).Delete(&models.Group{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR actor_id = ?", user.ID, user.ID).Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", user.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	for i := range doomedPosts {
		if doomedPosts[i].ImagePath != nil {
			deleteStoredObject(c, h.Storage, *doomedPosts[i].ImagePath)
		}
		if doomedPosts[i].FilePath != nil {
			deleteStoredObject(c, h.Storage, *doomedPosts[i].FilePath)
		}
	}
	for i := range ownedGroups {
		if ownedGroups[i].BannerPath != models.DefaultBannerPath {
			deleteStoredObject(c, h.Storage, ownedGroups[i].BannerPath)
		}
	}
	if user.AvatarPath != models.DefaultAvatarPath {
		deleteStoredObject(c, h.Storage, user.AvatarPath)
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"deleted_user_id": user.ID.String(),
		"groups_deleted":  len(ownedGroups),
		"posts_deleted":   len(doomedPosts),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "user.delete",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"username": user.Username,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}
