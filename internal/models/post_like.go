package models

import "github.com/google/uuid"

// PostLike records that a user liked a post, deduplicated by the pair index.
type PostLike struct {
	BaseModel
	UserID uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_post"`
	PostID uuid.UUID `json:"postID" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_post"`
	User   User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Post   Post      `json:"post,omitempty" gorm:"foreignKey:PostID"`
}
