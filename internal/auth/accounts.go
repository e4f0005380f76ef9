package auth

import (
	"strings"
	"time"
)

// Account stores a credential login. Guest sessions are not persisted; only
// email/password users get a row.
type Account struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_accounts_email"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	DisplayName  string    `gorm:"column:display_name;size:320"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing credential accounts.
func (Account) TableName() string {
	return "user_accounts"
}

// UserHandle is the signed-in identity handed to the token issuer and stamped
// onto result records.
type UserHandle struct {
	UserID      string
	Email       string
	DisplayName string
	Guest       bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
