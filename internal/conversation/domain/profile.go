package domain

import "time"

// UserProfile directory record joined into participant and sender reads
type UserProfile struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;column:user_id"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gorm table name
func (UserProfile) TableName() string {
	return "user_profiles"
}

// OrganizationProfile directory record for organization senders
type OrganizationProfile struct {
	OrgID     string    `json:"org_id" gorm:"primaryKey;column:org_id"`
	Name      string    `json:"name"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gorm table name
func (OrganizationProfile) TableName() string {
	return "organization_profiles"
}
