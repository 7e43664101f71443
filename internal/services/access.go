package services

import (
	"github.com/google/uuid"
	"github.com/thrdstr/backend/internal/models"
	"gorm.io/gorm"
)

// AccessService answers the ownership and membership questions handlers ask
// before mutating groups and posts. Site admins may moderate anything.
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

func (s *AccessService) CanModifyGroup(user *models.User, group *models.Group) bool {
	if user == nil {
		return false
	}
	if user.Role == models.UserRoleAdmin {
		return true
	}
	return group.OwnerID != nil && *group.OwnerID == user.ID
}

func (s *AccessService) CanModifyPost(user *models.User, post *models.Post) bool {
	if user == nil {
		return false
	}
	if user.Role == models.UserRoleAdmin {
		return true
	}
	return post.OwnerID == user.ID
}

func (s *AccessService) IsMember(userID, groupID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
