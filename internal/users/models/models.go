// Package models defines the reference user record.
package models

import (
	"time"

	id "warden/pkg/domain"
)

type User struct {
	ID           id.UserID
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}
