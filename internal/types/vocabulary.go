package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VocabularyWord is a word a user saved while reading, with the translation
// that was shown at save time.
type VocabularyWord struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"index:idx_vocab_user_word,unique;not null" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Word         string         `gorm:"index:idx_vocab_user_word,unique;not null;column:word" json:"word"`
	Translation  string         `gorm:"column:translation" json:"translation"`
	LanguageCode string         `gorm:"index;column:language_code" json:"language_code"`
	Context      string         `gorm:"column:context" json:"context"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (VocabularyWord) TableName() string {
	return "vocabulary_word"
}
