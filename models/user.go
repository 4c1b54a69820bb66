package models

import "time"

/************************************************
/**** MARK: USER ROLES ****/
/************************************************/
const USER_ROLE_ADMIN = "admin"
const USER_ROLE_MANAGER = "manager"
const USER_ROLE_SALES = "sales"

/************************************************
/**** MARK: USER STATUS ****/
/************************************************/
const USER_STATUS_AVAILABLE = 0
const USER_STATUS_PENDING = 1
const USER_STATUS_BLOCKED = 2

// User is a read-only view of the CRM user directory. Accounts are created and
// authenticated elsewhere; this service only looks them up.
type User struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Name      string     `gorm:"not null" json:"name"`
	Email     string     `gorm:"not null;unique" json:"email"`
	AvatarURL string     `gorm:"column:avatar_url" json:"avatar_url"`
	Role      string     `gorm:"not null;default:'sales';index" json:"role"`
	Status    int        `gorm:"default:0" json:"status"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (user User) IsAdmin() bool {
	return user.Role == USER_ROLE_ADMIN
}

// AsSender snapshots the user as a message sender.
func (user User) AsSender() Sender {
	return Sender{ID: formatUserID(user.ID), Name: user.Name, Avatar: user.AvatarURL}
}
