package models

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// DefaultAvatarPath is the object key every account starts with and the key a
// cleared avatar is reset to. The object itself lives in the shared bucket.
const DefaultAvatarPath = "avatars/default.jpg"

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:text;not null"`
	FirstName    *string    `json:"firstName,omitempty" gorm:"type:varchar(100)"`
	LastName     *string    `json:"lastName,omitempty" gorm:"type:varchar(100)"`
	Bio          *string    `json:"bio,omitempty" gorm:"type:varchar(500)"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty" gorm:"type:date"`
	AvatarPath   string     `json:"avatarPath" gorm:"type:text;not null;default:'avatars/default.jpg'"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`

	OwnedGroups []Group           `json:"-" gorm:"foreignKey:OwnerID"`
	Memberships []GroupMembership `json:"-" gorm:"foreignKey:UserID"`
	Posts       []Post            `json:"-" gorm:"foreignKey:OwnerID"`
	Likes       []PostLike        `json:"-" gorm:"foreignKey:UserID"`
}
