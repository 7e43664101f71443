package handlers

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/thrdstr/backend/internal/middleware"
	"github.com/thrdstr/backend/internal/models"
	"github.com/thrdstr/backend/internal/services"
	"github.com/thrdstr/backend/internal/storage"
	"github.com/thrdstr/backend/pkg/logger"
	"github.com/thrdstr/backend/pkg/utils"
	"gorm.io/gorm"
)

// recentWindow bounds the "recently created" listing.
const recentWindow = 7 * 24 * time.Hour

type GroupsHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Access  *services.AccessService
	Audit   *services.AuditService
}

func NewGroupsHandler(db *gorm.DB, storageClient *storage.MinIOClient, access *services.AccessService, audit *services.AuditService) *GroupsHandler {
	return &GroupsHandler{DB: db, Storage: storageClient, Access: access, Audit: audit}
}

// List returns the three catalog views in one payload: every group, the
// caller's subscriptions, and groups created within the trailing seven days.
func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var all []models.Group
	if err := h.DB.Order("created_at ASC").Find(&all).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	subscribed, err := h.subscribedGroups(currentUser)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing subscriptions")
	}

	var recent []models.Group
	cutoff := time.Now().Add(-recentWindow)
	if err := h.DB.Where("created_at > ?", cutoff).Order("created_at ASC").Find(&recent).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing recent groups")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"all":        all,
		"subscribed": subscribed,
		"recent":     recent,
	})
}

// ListMine returns the groups the caller owns and the groups they subscribe
// to, separately.
func (h *GroupsHandler) ListMine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var owned []models.Group
	if err := h.DB.Where("owner_id = ?", currentUser.ID).Order("created_at ASC").Find(&owned).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing owned groups")
	}

	subscribed, err := h.subscribedGroups(currentUser)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing subscriptions")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"owned":      owned,
		"subscribed": subscribed,
	})
}

func (h *GroupsHandler) subscribedGroups(user *models.User) ([]models.Group, error) {
	var groups []models.Group
	err := h.DB.
		Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
		Where("group_memberships.user_id = ?", user.ID).
		Order("groups.created_at ASC").
		Find(&groups).Error
	return groups, err
}

// Create accepts a multipart form: required unique name, optional description
// and banner upload. The creator becomes owner and is auto-subscribed.
func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return utils.Error(c, fiber.StatusBadRequest, "name must be at most 100 characters")
	}

	description := strings.TrimSpace(c.FormValue("description"))
	if utf8.RuneCountInString(description) > 500 {
		return utils.Error(c, fiber.StatusBadRequest, "description must be at most 500 characters")
	}

	var existing models.Group
	if err := h.DB.First(&existing, "name = ?", name).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "group name already taken")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking group name")
	}

	bannerPath := models.DefaultBannerPath
	bannerKey, err := storeFormFile(c, h.Storage, "banner", storage.NamespaceBanners)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing banner")
	}
	if bannerKey != nil {
		bannerPath = *bannerKey
	}

	ownerID := currentUser.ID
	group := models.Group{
		Name:       name,
		BannerPath: bannerPath,
		OwnerID:    &ownerID,
	}
	if description != "" {
		group.Description = &description
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership := models.GroupMembership{
			UserID:  currentUser.ID,
			GroupID: group.ID,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		if bannerKey != nil {
			deleteStoredObject(c, h.Storage, *bannerKey)
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group.create",
		ResourceType: "group",
		ResourceID:   &group.ID,
		Details: map[string]interface{}{
			"group_name": group.Name,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var group models.Group
	if err := h.DB.Preload("Owner").First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	if err := h.DB.Model(&models.GroupMembership{}).
		Where("group_id = ?", group.ID).
		Count(&group.SubscriberCount).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting subscribers")
	}

	subscribed, err := h.Access.IsMember(currentUser.ID, group.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking subscription")
	}
	group.IsSubscribed = subscribed

	return utils.Success(c, fiber.StatusOK, group)
}

// Update is owner-only. The clearBanner sentinel deletes the stored banner and
// restores the default, discarding any banner uploaded in the same request.
func (h *GroupsHandler) Update(c *fiber.Ctx) error {
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

	if !h.Access.CanModifyGroup(currentUser, &group) {
		return utils.Error(c, fiber.StatusForbidden, "only the group owner can edit the group")
	}

	updates := map[string]interface{}{}

	if name := strings.TrimSpace(c.FormValue("name")); name != "" && name != group.Name {
		if utf8.RuneCountInString(name) > 100 {
			return utils.Error(c, fiber.StatusBadRequest, "name must be at most 100 characters")
		}
		var existing models.Group
		if err := h.DB.First(&existing, "name = ? AND id <> ?", name, group.ID).Error; err == nil {
			return utils.Error(c, fiber.StatusConflict, "group name already taken")
		} else if err != gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusInternalServerError, "failed checking group name")
		}
		updates["name"] = name
	}

	description := strings.TrimSpace(c.FormValue("description"))
	if utf8.RuneCountInString(description) > 500 {
		return utils.Error(c, fiber.StatusBadRequest, "description must be at most 500 characters")
	}
	if description == "" {
		updates["description"] = nil
	} else {
		updates["description"] = description
	}

	if formBool(c, "clearBanner") {
		if group.BannerPath != models.DefaultBannerPath {
			deleteStoredObject(c, h.Storage, group.BannerPath)
		}
		updates["banner_path"] = models.DefaultBannerPath
	} else {
		bannerKey, err := storeFormFile(c, h.Storage, "banner", storage.NamespaceBanners)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed storing banner")
		}
		if bannerKey != nil {
			if group.BannerPath != models.DefaultBannerPath {
				deleteStoredObject(c, h.Storage, group.BannerPath)
			}
			updates["banner_path"] = *bannerKey
		}
	}

	if err := h.DB.Model(&models.Group{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", group.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group.update",
		ResourceType: "group",
		ResourceID:   &group.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete is owner-only and cascades: every post in the group (with its likes
// and stored attachments), every membership row, and the banner object go
// with the group.
func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
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

	if !h.Access.CanModifyGroup(currentUser, &group) {
		return utils.Error(c, fiber.StatusForbidden, "only the group owner can delete the group")
	}

	var posts []models.Post
	if err := h.DB.Where("group_id = ?", group.ID).Find(&posts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group posts")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id IN (?)",
			tx.Model(&models.Post{}).Select("id").Where("group_id = ?", group.ID),
		).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", group.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting group")
	}

	for i := range posts {
		if posts[i].ImagePath != nil {
			deleteStoredObject(c, h.Storage, *posts[i].ImagePath)
		}
		if posts[i].FilePath != nil {
			deleteStoredObject(c, h.Storage, *posts[i].FilePath)
		}
	}
	if group.BannerPath != models.DefaultBannerPath {
		deleteStoredObject(c, h.Storage, group.BannerPath)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "group.delete",
		ResourceType: "group",
		ResourceID:   &group.ID,
		Details: map[string]interface{}{
			"group_name":    group.Name,
			"posts_deleted": len(posts),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

// Subscribe adds the caller to the member set. Subscribing twice is a no-op.
func (h *GroupsHandler) Subscribe(c *fiber.Ctx) error {
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

	// A concurrent subscribe can lose the FirstOrCreate race against the pair
	// index; the duplicate just means the caller is already a member.
	var membership models.GroupMembership
	result := h.DB.Where(models.GroupMembership{UserID: currentUser.ID, GroupID: group.ID}).
		FirstOrCreate(&membership)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed subscribing")
	}

	if result.Error == nil && result.RowsAffected > 0 {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &currentUser.ID,
			Action:       "group.subscribe",
			ResourceType: "group",
			ResourceID:   &group.ID,
			Details: map[string]interface{}{
				"username":   currentUser.Username,
				"group_name": group.Name,
			},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"subscribed": true})
}

// Unsubscribe removes the caller from the member set. Unsubscribing while not
// a member is a no-op.
func (h *GroupsHandler) Unsubscribe(c *fiber.Ctx) error {
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

	result := h.DB.Where("user_id = ? AND group_id = ?", currentUser.ID, group.ID).
		Delete(&models.GroupMembership{})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed unsubscribing")
	}

	if result.RowsAffected > 0 {
		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &currentUser.ID,
			Action:       "group.unsubscribe",
			ResourceType: "group",
			ResourceID:   &group.ID,
			IPAddress:    c.IP(),
			RequestID:    getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"subscribed": false})
}
