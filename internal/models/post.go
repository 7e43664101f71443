package models

import "github.com/google/uuid"

// Post belongs to exactly one group and one user. Every content field is
// optional; image and file attachments are object keys under the post_image/
// and post_file/ namespaces with no default asset.
type Post struct {
	BaseModel
	Title     *string   `json:"title,omitempty" gorm:"type:varchar(100)"`
	Body      *string   `json:"body,omitempty" gorm:"type:varchar(500)"`
	ImagePath *string   `json:"imagePath,omitempty" gorm:"type:text"`
	FilePath  *string   `json:"filePath,omitempty" gorm:"type:text"`
	Edited    bool      `json:"edited" gorm:"not null;default:false"`
	OwnerID   uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	GroupID   uuid.UUID `json:"groupID" gorm:"type:uuid;not null;index"`

	Owner User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Group Group      `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Likes []PostLike `json:"-" gorm:"foreignKey:PostID"`

	LikeCount int64 `json:"likeCount" gorm:"-"`
	LikedByMe bool  `json:"likedByMe" gorm:"-"`
}
