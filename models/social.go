package models

import "time"

// ActivityType is the kind of social event being fanned out.
type ActivityType string

const (
	ActivityPositionShared  ActivityType = "position_shared"
	ActivityFollow          ActivityType = "follow"
	ActivityAchievement     ActivityType = "achievement"
	ActivityLeaderboardRank ActivityType = "leaderboard_rank"
)

// Visibility controls who an activity is fanned out to.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// SocialActivity is one social event (the feed kind of activity, not the
// workflow kind).
type SocialActivity struct {
	ID             string                 `json:"id"`
	ActorID        string                 `json:"actor_id"`
	Type           ActivityType           `json:"type"`
	Visibility     Visibility             `json:"visibility"`
	RelatedUserIDs []string               `json:"related_user_ids,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// FeedKind distinguishes the two feeds a fan-out writes into.
type FeedKind string

const (
	FeedFollowing     FeedKind = "following"
	FeedNotifications FeedKind = "notifications"
)

// FeedItem is one row written into a recipient's feed.
type FeedItem struct {
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	ActorID    string    `json:"actor_id"`
	Feed       FeedKind  `json:"feed"`
	CreatedAt  time.Time `json:"created_at"`
}

// FanoutPhase tracks where an in-flight fan-out run is.
type FanoutPhase string

const (
	FanoutCreating          FanoutPhase = "creating"
	FanoutFetchingFollowers FanoutPhase = "fetching_followers"
	FanoutFanningOut        FanoutPhase = "fanning_out"
	FanoutNotifying         FanoutPhase = "notifying"
	FanoutComplete          FanoutPhase = "complete"
	FanoutFailed            FanoutPhase = "failed"
)

// ActivityFanoutJob is the ephemeral, workflow-scoped progress record for one
// fan-out run. Queryable while in flight; discarded on completion.
type ActivityFanoutJob struct {
	ActivityID        string      `json:"activity_id"`
	Phase             FanoutPhase `json:"phase"`
	FollowersFetched  int         `json:"followers_fetched"`
	FeedItemsCreated  int         `json:"feed_items_created"`
	NotificationsSent int         `json:"notifications_sent"`
}

// AuditLogEntry is written at every workflow start/completion/failure
// boundary for traceability.
type AuditLogEntry struct {
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
