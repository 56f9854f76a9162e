package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityKind string

const (
	ActivityLogin          ActivityKind = "login"
	ActivityLoginFailed    ActivityKind = "login_failed"
	ActivitySignup         ActivityKind = "signup"
	ActivityLogout         ActivityKind = "logout"
	ActivityPasswordReset  ActivityKind = "password_reset"
	ActivityProfileUpdated ActivityKind = "profile_updated"
	ActivityAccountDeleted ActivityKind = "account_deleted"
	ActivityAdminToggled   ActivityKind = "admin_toggled"
	ActivityUserDeleted    ActivityKind = "user_deleted"
	ActivityUsersExported  ActivityKind = "users_exported"
	ActivitySubscription   ActivityKind = "subscription_changed"
)

type Activity struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind     ActivityKind       `bson:"kind" json:"kind"`
	UserID   string             `bson:"user_id,omitempty" json:"user_id,omitempty"`   // actor
	TargetID string             `bson:"target_id,omitempty" json:"target_id,omitempty"` // subject of admin actions
	Email    string             `bson:"email,omitempty" json:"email,omitempty"`
	IP       string             `bson:"ip,omitempty" json:"ip,omitempty"`
	Details  map[string]any     `bson:"details,omitempty" json:"details,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"` // TTL index
}
