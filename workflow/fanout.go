package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// FanoutSnapshot is the queryable progress of one fan-out run. The underlying
// job record is workflow-scoped; the feed rows it writes persist, it does not.
type FanoutSnapshot struct {
	RunID             string             `json:"run_id"`
	ActivityID        string             `json:"activity_id"`
	Phase             models.FanoutPhase `json:"phase"`
	FollowersFetched  int                `json:"followers_fetched"`
	FeedItemsCreated  int                `json:"feed_items_created"`
	NotificationsSent int                `json:"notifications_sent"`
	Suppressed        bool               `json:"suppressed,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// FanoutWorkflow pushes one social activity into follower feeds at scale.
type FanoutWorkflow struct {
	cfg      config.FanoutConfig
	fast     RetryPolicy
	acts     activities.Social
	audit    activities.Audit
	store    storage.DataStore
	registry *Registry
}

// NewFanoutWorkflow wires the fan-out workflow.
func NewFanoutWorkflow(cfg config.FanoutConfig, retry config.RetryProfiles, acts activities.Social, audit activities.Audit, store storage.DataStore, registry *Registry) *FanoutWorkflow {
	return &FanoutWorkflow{
		cfg:      cfg,
		fast:     PolicyFromConfig(retry.Fast),
		acts:     acts,
		audit:    audit,
		store:    store,
		registry: registry,
	}
}

type fanoutRun struct {
	run *Run

	mu       sync.Mutex
	snapshot FanoutSnapshot
}

func (r *fanoutRun) Snapshot() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func (r *fanoutRun) setPhase(phase models.FanoutPhase) {
	r.mu.Lock()
	r.snapshot.Phase = phase
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

func (r *fanoutRun) addProgress(followers, feedItems, notifications int) {
	r.mu.Lock()
	r.snapshot.FollowersFetched += followers
	r.snapshot.FeedItemsCreated += feedItems
	r.snapshot.NotificationsSent += notifications
	r.snapshot.UpdatedAt = nowUTC()
	r.mu.Unlock()
}

// FanOut persists the activity and distributes it. Private activities are
// stored but never distributed. No cancellation surface: a fan-out either
// runs to completion or fails outright.
func (w *FanoutWorkflow) FanOut(ctx context.Context, runID string, activity models.SocialActivity) (FanoutSnapshot, error) {
	run := NewRun(runID, w.store)

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = nowUTC()
	}

	state := &fanoutRun{
		run: run,
		snapshot: FanoutSnapshot{
			RunID:      runID,
			ActivityID: activity.ID,
			Phase:      models.FanoutCreating,
			StartedAt:  nowUTC(),
			UpdatedAt:  nowUTC(),
		},
	}
	if w.registry != nil {
		w.registry.Register(run, state)
		defer w.registry.Finish(ctx, run, state)
	}

	activityID, err := Execute(ctx, run, "create", w.fast, func(ctx context.Context) (string, error) {
		return w.acts.CreateSocialActivity(ctx, activity)
	})
	if err != nil {
		state.setPhase(models.FanoutFailed)
		return state.snapshot, fmt.Errorf("create activity: %w", err)
	}

	if activity.Visibility == models.VisibilityPrivate {
		state.setPhase(models.FanoutComplete)
		return state.Snapshot().(FanoutSnapshot), nil
	}

	state.setPhase(models.FanoutFetchingFollowers)
	if err := w.fanOutToFollowers(ctx, run, state, activity, activityID); err != nil {
		state.setPhase(models.FanoutFailed)
		w.auditFailure(ctx, run, activityID, err)
		return state.Snapshot().(FanoutSnapshot), err
	}

	if len(activity.RelatedUserIDs) > 0 {
		state.setPhase(models.FanoutNotifying)
		if err := w.notifyRelated(ctx, run, state, activity, activityID); err != nil {
			state.setPhase(models.FanoutFailed)
			w.auditFailure(ctx, run, activityID, err)
			return state.Snapshot().(FanoutSnapshot), err
		}
	}

	state.setPhase(models.FanoutComplete)
	snap := state.Snapshot().(FanoutSnapshot)
	log.Printf("[Fanout] run %s: activity %s fanned out to %d followers (%d feed rows)",
		runID, activityID, snap.FollowersFetched, snap.FeedItemsCreated)
	return snap, nil
}

// fanOutToFollowers pages through the actor's followers until a short page
// signals exhaustion, writing following-feed rows in fixed-size batches.
func (w *FanoutWorkflow) fanOutToFollowers(ctx context.Context, run *Run, state *fanoutRun, activity models.SocialActivity, activityID string) error {
	pageSize := w.cfg.FollowerPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	for page, offset := 0, 0; ; page, offset = page+1, offset+pageSize {
		followers, err := Execute(ctx, run, fmt.Sprintf("followers:%d", page), w.fast, func(ctx context.Context) ([]string, error) {
			return w.acts.GetFollowersForFanout(ctx, activity.ActorID, offset, pageSize)
		})
		if err != nil {
			return fmt.Errorf("fetch followers page %d: %w", page, err)
		}
		if len(followers) == 0 {
			return nil
		}
		state.addProgress(len(followers), 0, 0)
		state.setPhase(models.FanoutFanningOut)

		items := make([]models.FeedItem, 0, len(followers))
		for _, followerID := range followers {
			items = append(items, models.FeedItem{
				UserID:     followerID,
				ActivityID: activityID,
				ActorID:    activity.ActorID,
				Feed:       models.FeedFollowing,
				CreatedAt:  nowUTC(),
			})
		}
		if err := w.writeFeedBatches(ctx, run, state, fmt.Sprintf("feed:%d", page), items); err != nil {
			return err
		}

		if len(followers) < pageSize {
			return nil
		}
	}
}

func (w *FanoutWorkflow) writeFeedBatches(ctx context.Context, run *Run, state *fanoutRun, stepPrefix string, items []models.FeedItem) error {
	batchSize := w.cfg.FeedBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	for start, batch := 0, 0; start < len(items); start, batch = start+batchSize, batch+1 {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		if err := Do(ctx, run, fmt.Sprintf("%s:%d", stepPrefix, batch), w.fast, func(ctx context.Context) error {
			return w.acts.FanOutToFeeds(ctx, chunk)
		}); err != nil {
			return fmt.Errorf("write feed batch: %w", err)
		}
		state.addProgress(0, len(chunk), 0)
	}
	return nil
}

// notifyRelated writes notification-feed rows for directly related users and
// dispatches their push notifications.
func (w *FanoutWorkflow) notifyRelated(ctx context.Context, run *Run, state *fanoutRun, activity models.SocialActivity, activityID string) error {
	items := make([]models.FeedItem, 0, len(activity.RelatedUserIDs))
	for _, userID := range activity.RelatedUserIDs {
		items = append(items, models.FeedItem{
			UserID:     userID,
			ActivityID: activityID,
			ActorID:    activity.ActorID,
			Feed:       models.FeedNotifications,
			CreatedAt:  nowUTC(),
		})
	}
	if err := w.writeFeedBatches(ctx, run, state, "notify-feed", items); err != nil {
		return err
	}

	if err := Do(ctx, run, "notify-push", w.fast, func(ctx context.Context) error {
		return w.acts.SendActivityNotifications(ctx, activityID, activity.RelatedUserIDs)
	}); err != nil {
		return fmt.Errorf("send activity notifications: %w", err)
	}
	state.addProgress(0, 0, len(activity.RelatedUserIDs))
	return nil
}

func (w *FanoutWorkflow) auditFailure(ctx context.Context, run *Run, activityID string, failure error) {
	if w.audit == nil {
		return
	}
	entry := models.AuditLogEntry{
		Action:       "activity_fanout_failed",
		ResourceType: "social_activity",
		ResourceID:   activityID,
		Metadata:     map[string]interface{}{"run_id": run.ID, "error": failure.Error()},
		CreatedAt:    nowUTC(),
	}
	if err := w.audit.RecordAuditLog(ctx, entry); err != nil {
		log.Printf("[Fanout] run %s: audit write failed: %v", run.ID, err)
	}
}

// --- Specialized variants ---

// SharePosition fans out a position-shared event to the actor's followers.
func (w *FanoutWorkflow) SharePosition(ctx context.Context, runID, actorID string, payload map[string]interface{}) (FanoutSnapshot, error) {
	return w.FanOut(ctx, runID, models.SocialActivity{
		ActorID:    actorID,
		Type:       models.ActivityPositionShared,
		Visibility: models.VisibilityFollowers,
		Payload:    payload,
	})
}

// RecordFollow fans out a follow event and notifies the followed user.
func (w *FanoutWorkflow) RecordFollow(ctx context.Context, runID, actorID, followedID string) (FanoutSnapshot, error) {
	return w.FanOut(ctx, runID, models.SocialActivity{
		ActorID:        actorID,
		Type:           models.ActivityFollow,
		Visibility:     models.VisibilityFollowers,
		RelatedUserIDs: []string{followedID},
	})
}

// RecordAchievement fans out an achievement event publicly.
func (w *FanoutWorkflow) RecordAchievement(ctx context.Context, runID, actorID string, payload map[string]interface{}) (FanoutSnapshot, error) {
	return w.FanOut(ctx, runID, models.SocialActivity{
		ActorID:    actorID,
		Type:       models.ActivityAchievement,
		Visibility: models.VisibilityPublic,
		Payload:    payload,
	})
}

// AnnounceLeaderboardRank fans out a rank change. Insignificant movements
// (deep ranks with small deltas) are still persisted to the activity record
// but never reach follower feeds, so leaderboard churn cannot drown them.
func (w *FanoutWorkflow) AnnounceLeaderboardRank(ctx context.Context, runID, userID string, rank, previousRank int) (FanoutSnapshot, error) {
	activity := models.SocialActivity{
		ActorID:    userID,
		Type:       models.ActivityLeaderboardRank,
		Visibility: models.VisibilityFollowers,
		Payload: map[string]interface{}{
			"rank":          rank,
			"previous_rank": previousRank,
		},
	}
	if SuppressRankFanout(rank, previousRank, w.cfg.RankCutoff, w.cfg.RankMinDelta) {
		log.Printf("[Fanout] run %s: suppressing rank fan-out for %s (%d -> %d)", runID, userID, previousRank, rank)
		return w.persistWithoutFanout(ctx, runID, activity)
	}
	return w.FanOut(ctx, runID, activity)
}

// persistWithoutFanout stores the activity and stops: no follower paging, no
// feed writes, no notifications.
func (w *FanoutWorkflow) persistWithoutFanout(ctx context.Context, runID string, activity models.SocialActivity) (FanoutSnapshot, error) {
	run := NewRun(runID, w.store)
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = nowUTC()
	}

	snap := FanoutSnapshot{
		RunID:      runID,
		ActivityID: activity.ID,
		Phase:      models.FanoutCreating,
		Suppressed: true,
		StartedAt:  nowUTC(),
		UpdatedAt:  nowUTC(),
	}
	activityID, err := Execute(ctx, run, "create", w.fast, func(ctx context.Context) (string, error) {
		return w.acts.CreateSocialActivity(ctx, activity)
	})
	if err != nil {
		snap.Phase = models.FanoutFailed
		return snap, fmt.Errorf("create activity: %w", err)
	}
	snap.ActivityID = activityID
	snap.Phase = models.FanoutComplete
	snap.UpdatedAt = nowUTC()
	return snap, nil
}

// SuppressRankFanout reports whether a rank movement is too insignificant to
// announce: outside the top cutoff and moving less than the minimum delta.
func SuppressRankFanout(rank, previousRank, cutoff, minDelta int) bool {
	delta := rank - previousRank
	if delta < 0 {
		delta = -delta
	}
	return rank > cutoff && delta < minDelta
}
