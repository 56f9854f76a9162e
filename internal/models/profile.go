package models

import "time"

const DefaultLanguage = "en"

// SupportedLanguages are the interface languages a profile may pick.
var SupportedLanguages = []string{"en", "es", "fr", "de", "pt"}

func IsSupportedLanguage(l string) bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

const MaxNameLength = 100

type Profile struct {
	ID       string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email    string  `gorm:"column:email;type:text;index" json:"email"`
	Name     *string `gorm:"column:name;type:text" json:"name"`
	Language string  `gorm:"column:language;type:text;default:en" json:"language"`
	IsAdmin  bool    `gorm:"column:is_admin;default:false" json:"is_admin"`

	StripeCustomerID   *string `gorm:"column:stripe_customer_id;type:text;index" json:"-"`
	SubscriptionStatus string  `gorm:"column:subscription_status;type:text" json:"subscription_status,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// ToUser merges the profile with provider identity fields. Zero values on the
// provider side fall back to what the profile carries.
func (p *Profile) ToUser(email string, createdAt time.Time) User {
	if email == "" {
		email = p.Email
	}
	if createdAt.IsZero() {
		createdAt = p.CreatedAt
	}
	lang := p.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return User{
		ID:        p.ID,
		Email:     email,
		Name:      p.Name,
		IsAdmin:   p.IsAdmin,
		CreatedAt: createdAt,
		Language:  lang,
	}
}

// ProfileUpdate carries the user-editable fields; nil means "leave as is".
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty" binding:"omitempty,max=100"`
	Language *string `json:"language,omitempty" binding:"omitempty,oneof=en es fr de pt"`
}

func (u ProfileUpdate) Empty() bool { return u.Name == nil && u.Language == nil }

// Columns returns the column map for a partial update.
func (u ProfileUpdate) Columns() map[string]any {
	cols := map[string]any{}
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.Language != nil {
		cols["language"] = *u.Language
	}
	return cols
}
