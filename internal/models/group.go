package models

import "github.com/google/uuid"

// DefaultBannerPath is the object key assigned to groups created without a
// banner and restored when a banner is cleared.
const DefaultBannerPath = "group_banners/default.jpg"

// Group is a community users subscribe to and post in. OwnerID is nullable: a
// group outlives a cleared owner reference, but deleting the owning user
// deletes the group.
type Group struct {
	BaseModel
	Name        string     `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description *string    `json:"description,omitempty" gorm:"type:varchar(500)"`
	BannerPath  string     `json:"bannerPath" gorm:"type:text;not null;default:'group_banners/default.jpg'"`
	OwnerID     *uuid.UUID `json:"ownerID,omitempty" gorm:"type:uuid;index"`

	Owner       *User             `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
	Posts       []Post            `json:"-" gorm:"foreignKey:GroupID"`

	SubscriberCount int64 `json:"subscriberCount" gorm:"-"`
	IsSubscribed    bool  `json:"isSubscribed" gorm:"-"`
}
