package entity

import (
	"time"

	"github.com/google/uuid"
)

type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
)

// FollowEdge is directed. A friendship is two accepted edges, one per direction.
type FollowEdge struct {
	FollowerID  uuid.UUID    `gorm:"type:uuid;primaryKey" json:"follower_id"`
	FollowingID uuid.UUID    `gorm:"type:uuid;primaryKey;index" json:"following_id"`
	Status      FollowStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`

	Follower  *Profile `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"follower,omitempty"`
	Following *Profile `gorm:"foreignKey:FollowingID;constraint:OnDelete:CASCADE" json:"following,omitempty"`
}

func (f *FollowEdge) TableName() string {
	return TableFollows
}
