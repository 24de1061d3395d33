package models

import "time"

// Battle statuses. Transitions are one-way: pending battles become active or
// rejected, active battles become completed (or expired via the operator
// path), and terminal battles never change again.
const (
	BattleStatusPending   = "pending"
	BattleStatusActive    = "active"
	BattleStatusCompleted = "completed"
	BattleStatusExpired   = "expired"
	BattleStatusRejected  = "rejected"
)

// BattlePlayer holds one contestant's entry and running counters.
type BattlePlayer struct {
	UserID  string `json:"userId"`
	VideoID string `json:"videoId"`
	Votes   int64  `json:"votes"`
	Views   int64  `json:"views"`
}

// Battle represents a timed head-to-head voting contest between two videos.
type Battle struct {
	ID          string       `json:"id"`
	Player1     BattlePlayer `json:"player1"`
	Player2     BattlePlayer `json:"player2"`
	Category    string       `json:"category"`
	Status      string       `json:"status"`
	TotalVotes  int64        `json:"totalVotes"`
	WinnerID    string       `json:"winnerId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	ExpiredAt   *time.Time   `json:"expiredAt,omitempty"`
}

// Terminal reports whether the battle has reached a final status.
func (b Battle) Terminal() bool {
	switch b.Status {
	case BattleStatusCompleted, BattleStatusExpired, BattleStatusRejected:
		return true
	}
	return false
}

// View records a single deduplicated playback observation of a video.
type View struct {
	ID           string    `json:"id"`
	VideoID      string    `json:"videoId"`
	UserID       string    `json:"userId"`
	Source       string    `json:"source"`
	ViewDuration int64     `json:"viewDuration"`
	ViewedAt     time.Time `json:"viewedAt"`
}

// Notification types understood by the dispatcher.
const (
	NotificationFollowRequest  = "follow_request"
	NotificationBattleRequest  = "battle_request"
	NotificationBattleAccepted = "battle_accepted"
	NotificationBattleRejected = "battle_rejected"
	NotificationBattleDone     = "battle_completed"
	NotificationBattleExpired  = "battle_expired"
	NotificationVote           = "vote"
)

// Notification represents a delivered or pending user-facing event. The
// persisted record is the durable source of truth; push delivery is a side
// channel.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	SenderID    string         `json:"senderId,omitempty"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Read        bool           `json:"read"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// User carries the profile fields the engine reads plus the lifetime battle
// counters it maintains.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	DeviceToken  string    `json:"deviceToken,omitempty"`
	TotalBattles int64     `json:"totalBattles"`
	BattlesWon   int64     `json:"battlesWon"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Video is a submitted clip with its denormalized view counter.
type Video struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Views     int64     `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
}

// Follow is a directed edge between two users.
type Follow struct {
	ID         string    `json:"id"`
	FollowerID string    `json:"followerId"`
	FolloweeID string    `json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}
