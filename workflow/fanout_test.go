package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

func testFanoutConfig() config.FanoutConfig {
	return config.FanoutConfig{
		FollowerPageSize: 1000,
		FeedBatchSize:    500,
		RankCutoff:       100,
		RankMinDelta:     10,
	}
}

func newFanoutFixture() (*FanoutWorkflow, *activities.Mock) {
	mock := activities.NewMock()
	store := storage.NewMockStore()
	return NewFanoutWorkflow(testFanoutConfig(), testRetryProfiles(), mock, mock, store, NewRegistry(nil)), mock
}

func seedFollowers(mock *activities.Mock, userID string, n int) {
	followers := make([]string, n)
	for i := range followers {
		followers[i] = fmt.Sprintf("follower-%d", i+1)
	}
	mock.Followers[userID] = followers
}

func TestFanOutToFollowers(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "actor-1", 42)

	snap, err := w.FanOut(context.Background(), "fan-1", models.SocialActivity{
		ActorID:    "actor-1",
		Type:       models.ActivityPositionShared,
		Visibility: models.VisibilityFollowers,
	})
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if snap.Phase != models.FanoutComplete {
		t.Fatalf("phase = %s, want complete", snap.Phase)
	}
	if snap.FollowersFetched != 42 {
		t.Errorf("followers fetched = %d, want 42", snap.FollowersFetched)
	}
	if snap.FeedItemsCreated != 42 {
		t.Errorf("feed items = %d, want 42", snap.FeedItemsCreated)
	}
	for _, item := range mock.FeedItems {
		if item.Feed != models.FeedFollowing {
			t.Errorf("feed item for %s landed in %s, want following", item.UserID, item.Feed)
		}
	}
}

func TestFanOutPagesUntilShortPage(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "actor-1", 1500) // 1000 + short page of 500

	snap, err := w.FanOut(context.Background(), "fan-pages", models.SocialActivity{
		ActorID:    "actor-1",
		Type:       models.ActivityPositionShared,
		Visibility: models.VisibilityPublic,
	})
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if snap.FollowersFetched != 1500 {
		t.Errorf("followers fetched = %d, want 1500", snap.FollowersFetched)
	}
	if snap.FeedItemsCreated != 1500 {
		t.Errorf("feed items = %d, want 1500", snap.FeedItemsCreated)
	}
	if mock.Calls["GetFollowersForFanout"] != 2 {
		t.Errorf("follower pages fetched = %d, want 2 (short page ends paging)", mock.Calls["GetFollowersForFanout"])
	}
	// 1000-follower page splits into two 500-row feed writes, plus one for
	// the short page.
	if mock.Calls["FanOutToFeeds"] != 3 {
		t.Errorf("feed batch writes = %d, want 3", mock.Calls["FanOutToFeeds"])
	}
}

func TestFanOutPrivateActivityNotDistributed(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "actor-1", 10)

	snap, err := w.FanOut(context.Background(), "fan-private", models.SocialActivity{
		ActorID:    "actor-1",
		Type:       models.ActivityPositionShared,
		Visibility: models.VisibilityPrivate,
	})
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if snap.Phase != models.FanoutComplete {
		t.Fatalf("phase = %s, want complete", snap.Phase)
	}
	if len(mock.Activities) != 1 {
		t.Errorf("activities persisted = %d, want 1 (private is stored, not fanned out)", len(mock.Activities))
	}
	if snap.FollowersFetched != 0 || snap.FeedItemsCreated != 0 {
		t.Errorf("private activity was distributed: %+v", snap)
	}
}

func TestFanOutNotifiesRelatedUsers(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "actor-1", 3)

	snap, err := w.FanOut(context.Background(), "fan-related", models.SocialActivity{
		ActorID:        "actor-1",
		Type:           models.ActivityFollow,
		Visibility:     models.VisibilityFollowers,
		RelatedUserIDs: []string{"followed-user"},
	})
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if snap.NotificationsSent != 1 {
		t.Errorf("notifications sent = %d, want 1", snap.NotificationsSent)
	}
	if len(mock.NotifiedIDs) != 1 || mock.NotifiedIDs[0] != "followed-user" {
		t.Errorf("notified IDs = %v, want [followed-user]", mock.NotifiedIDs)
	}

	notifFeedRows := 0
	for _, item := range mock.FeedItems {
		if item.Feed == models.FeedNotifications && item.UserID == "followed-user" {
			notifFeedRows++
		}
	}
	if notifFeedRows != 1 {
		t.Errorf("notification feed rows = %d, want 1", notifFeedRows)
	}
}

func TestAnnounceLeaderboardRankSuppressed(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "trader-1", 50)

	// Rank 150 -> 152: deep rank, tiny delta.
	snap, err := w.AnnounceLeaderboardRank(context.Background(), "fan-rank", "trader-1", 150, 152)
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if !snap.Suppressed {
		t.Fatal("insignificant rank movement not suppressed")
	}
	if snap.Phase != models.FanoutComplete {
		t.Fatalf("phase = %s, want complete", snap.Phase)
	}
	if snap.FollowersFetched != 0 || snap.FeedItemsCreated != 0 {
		t.Errorf("suppressed announcement still fanned out: %+v", snap)
	}

	// Suppression only stops distribution; the activity record survives.
	if mock.Calls["CreateSocialActivity"] != 1 {
		t.Errorf("activities created = %d, want 1", mock.Calls["CreateSocialActivity"])
	}
	if len(mock.Activities) != 1 || mock.Activities[0].Type != models.ActivityLeaderboardRank {
		t.Fatalf("persisted activities = %+v, want one leaderboard_rank", mock.Activities)
	}
	if snap.ActivityID == "" {
		t.Error("snapshot missing the persisted activity ID")
	}
	if mock.Calls["GetFollowersForFanout"] != 0 || mock.Calls["FanOutToFeeds"] != 0 {
		t.Errorf("suppressed announcement touched feeds: followers=%d batches=%d",
			mock.Calls["GetFollowersForFanout"], mock.Calls["FanOutToFeeds"])
	}
}

func TestAnnounceLeaderboardRankSignificant(t *testing.T) {
	w, mock := newFanoutFixture()
	seedFollowers(mock, "trader-1", 5)

	// Breaking into the top 100 always announces.
	snap, err := w.AnnounceLeaderboardRank(context.Background(), "fan-rank-big", "trader-1", 42, 130)
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if snap.Suppressed {
		t.Fatal("significant rank movement suppressed")
	}
	if snap.FeedItemsCreated != 5 {
		t.Errorf("feed items = %d, want 5", snap.FeedItemsCreated)
	}
	if mock.Calls["CreateSocialActivity"] != 1 {
		t.Errorf("activities created = %d, want 1", mock.Calls["CreateSocialActivity"])
	}
}

func TestSuppressRankFanout(t *testing.T) {
	tests := []struct {
		name         string
		rank, prev   int
		wantSuppress bool
	}{
		{"deep rank small delta", 150, 152, true},
		{"deep rank big delta", 150, 300, false},
		{"top rank small delta", 50, 52, false},
		{"exactly at cutoff", 100, 102, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuppressRankFanout(tt.rank, tt.prev, 100, 10); got != tt.wantSuppress {
				t.Errorf("SuppressRankFanout(%d, %d) = %v, want %v", tt.rank, tt.prev, got, tt.wantSuppress)
			}
		})
	}
}
