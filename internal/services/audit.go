package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thrdstr/backend/internal/models"
	"github.com/thrdstr/backend/pkg/logger"
	"gorm.io/gorm"
)

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// AuditService persists an append-only action trail and fans selected events
// out into per-user activity notifications. Writes happen off the request
// path; a full queue drops entries rather than blocking a handler.
type AuditService struct {
	DB      *gorm.DB
	queue   chan models.AuditLog
	pending sync.WaitGroup
}

func NewAuditService(db *gorm.DB) *AuditService {
	s := &AuditService{
		DB:    db,
		queue: make(chan models.AuditLog, 1000),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	s.pending.Add(1)
	select {
	case s.queue <- row:
	default:
		s.pending.Done()
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Flush blocks until every accepted entry has been persisted and its
// notifications generated.
func (s *AuditService) Flush() {
	s.pending.Wait()
}

func (s *AuditService) processQueue() {
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
			s.pending.Done()
			continue
		}
		s.generateActivities(row)
		s.pending.Done()
	}
}

func (s *AuditService) generateActivities(log models.AuditLog) {
	if log.UserID == nil {
		return
	}

	var activities []models.Activity

	switch log.Action {
	case "post.create":
		activities = s.activitiesForPostCreate(log)
	case "post.like":
		activities = s.activitiesForPostLike(log)
	case "group.subscribe":
		activities = s.activitiesForGroupSubscribe(log)
	}

	for i := range activities {
		if err := s.DB.Create(&activities[i]).Error; err != nil {
			logger.Error("activity_insert_failed", err, map[string]interface{}{
				"action":  log.Action,
				"user_id": activities[i].UserID.String(),
			})
		}
	}
}

// A new post notifies every subscriber of the group except the author.
func (s *AuditService) activitiesForPostCreate(log models.AuditLog) []models.Activity {
	groupID, ok := detailUUID(log.Details, "group_id")
	if !ok || log.ResourceID == nil {
		return nil
	}

	var group models.Group
	if err := s.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return nil
	}

	var memberships []models.GroupMembership
	if err := s.DB.Where("group_id = ? AND user_id <> ?", groupID, *log.UserID).
		Find(&memberships).Error; err != nil {
		return nil
	}

	actorName := detailString(log.Details, "username")
	activities := make([]models.Activity, 0, len(memberships))
	for _, membership := range memberships {
		activities = append(activities, models.Activity{
			UserID:       membership.UserID,
			ActorID:      *log.UserID,
			Action:       log.Action,
			ResourceType: "post",
			ResourceID:   log.ResourceID,
			Message:      fmt.Sprintf("%s posted in %s", actorName, group.Name),
		})
	}
	return activities
}

// A like notifies the post owner, unless they liked their own post.
func (s *AuditService) activitiesForPostLike(log models.AuditLog) []models.Activity {
	if log.ResourceID == nil {
		return nil
	}

	var post models.Post
	if err := s.DB.First(&post, "id = ?", *log.ResourceID).Error; err != nil {
		return nil
	}
	if post.OwnerID == *log.UserID {
		return nil
	}

	actorName := detailString(log.Details, "username")
	return []models.Activity{{
		UserID:       post.OwnerID,
		ActorID:      *log.UserID,
		Action:       log.Action,
		ResourceType: "post",
		ResourceID:   log.ResourceID,
		Message:      fmt.Sprintf("%s liked your post", actorName),
	}}
}

// A subscription notifies the group owner, if the group still has one.
func (s *AuditService) activitiesForGroupSubscribe(log models.AuditLog) []models.Activity {
	if log.ResourceID == nil {
		return nil
	}

	var group models.Group
	if err := s.DB.First(&group, "id = ?", *log.ResourceID).Error; err != nil {
		return nil
	}
	if group.OwnerID == nil || *group.OwnerID == *log.UserID {
		return nil
	}

	actorName := detailString(log.Details, "username")
	return []models.Activity{{
		UserID:       *group.OwnerID,
		ActorID:      *log.UserID,
		Action:       log.Action,
		ResourceType: "group",
		ResourceID:   log.ResourceID,
		Message:      fmt.Sprintf("%s subscribed to %s", actorName, group.Name),
	}}
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	value, _ := details[key].(string)
	return value
}

func detailUUID(details map[string]interface{}, key string) (uuid.UUID, bool) {
	raw := detailString(details, key)
	if raw == "" {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}
