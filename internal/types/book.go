package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Book is a user's story request. StoryID keys every blob artifact the
// generation pipeline produces for it; Params keeps the raw generation
// request for re-runs.
type Book struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"index;not null" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	StoryID      string         `gorm:"uniqueIndex;not null;column:story_id" json:"story_id"`
	Title        string         `gorm:"column:title" json:"title"`
	Genre        string         `gorm:"column:genre" json:"genre"`
	LanguageCode string         `gorm:"index;column:language_code" json:"language_code"`
	ReadingLevel string         `gorm:"column:reading_level" json:"reading_level"`
	Params       datatypes.JSON `gorm:"column:params" json:"params"`
	IsFavorite   bool           `gorm:"column:is_favorite;default:false" json:"is_favorite"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Book) TableName() string {
	return "book"
}
