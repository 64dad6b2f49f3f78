package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/access"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("reward-%03d", p.next), nil
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

type recordingNotifier struct {
	mu     sync.Mutex
	drafts []notifications.Draft
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, draft notifications.Draft) (notifications.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drafts = append(n.drafts, draft)
	return notifications.Notification{}, n.err
}

var (
	alice     = access.Actor{UserID: "user-alice"}
	bob       = access.Actor{UserID: "user-bob"}
	startTime = time.Date(2026, time.May, 20, 9, 0, 0, 0, time.UTC)
)

type testEnv struct {
	service  *Service
	clock    *manualClock
	notifier *recordingNotifier
	db       *gorm.DB
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:progress_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&users.User{}, &Reward{}))

	for _, actor := range []access.Actor{alice, bob} {
		user := users.User{
			ID:           actor.UserID,
			Name:         actor.UserID,
			Email:        actor.UserID + "@example.com",
			PasswordHash: "x",
			Badges:       datatypes.JSONSlice[string]{},
			CreatedAt:    startTime,
		}
		require.NoError(t, db.Create(&user).Error)
	}

	env := testEnv{clock: &manualClock{now: startTime}, notifier: &recordingNotifier{}, db: db}
	env.service, err = NewService(ServiceConfig{
		Database:   db,
		Clock:      env.clock.Now,
		IDProvider: &sequentialIDs{},
		Notifier:   env.notifier,
	})
	require.NoError(t, err)
	return env
}

func (env testEnv) setUser(t *testing.T, userID string, changes map[string]interface{}) {
	t.Helper()
	require.NoError(t, env.db.Model(&users.User{}).Where("id = ?", userID).Updates(changes).Error)
}

func TestTouchStreakContinuity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 1, Updated: true}, result)

	_, err = env.service.AddFocusMinutes(ctx, alice, 40)
	require.NoError(t, err)

	env.clock.now = startTime.Add(3 * time.Hour)
	result, err = env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 1, Updated: false}, result)
	stats, err := env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 40, stats.TodayFocusMinutes, "same-day touch keeps today's focus")

	env.clock.now = startTime.Add(25 * time.Hour)
	result, err = env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 2, Updated: true}, result)
	stats, err = env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TodayFocusMinutes)
	require.Equal(t, 40, stats.TotalFocusMinutes)

	env.clock.now = env.clock.now.Add(72 * time.Hour)
	result, err = env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 1, Updated: true}, result)
}

func TestAddFocusMinutesValidates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.AddFocusMinutes(context.Background(), alice, -5)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.service.AddFocusMinutes(context.Background(), access.Actor{UserID: "ghost"}, 5)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRewardUnlocksExactlyAtTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reward, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Movie night", TargetTasks: 3})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		result, err := env.service.RecordTaskCompletion(ctx, alice.UserID)
		require.NoError(t, err)
		require.Empty(t, result.UnlockedRewards)
	}
	rewards, err := env.service.ListRewards(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 2, rewards[0].CurrentProgress)
	require.False(t, rewards[0].IsCompleted)

	result, err := env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, result.UnlockedRewards, 1)
	require.Equal(t, reward.ID, result.UnlockedRewards[0].ID)
	require.True(t, result.UnlockedRewards[0].IsCompleted)

	result, err = env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Empty(t, result.UnlockedRewards)

	rewards, err = env.service.ListRewards(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 3, rewards[0].CurrentProgress, "progress never exceeds the target")
	require.True(t, rewards[0].IsCompleted)

	stats, err := env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalTasksCompleted)

	require.Len(t, env.notifier.drafts, 1)
	draft := env.notifier.drafts[0]
	require.Equal(t, notifications.TypeAchievement, draft.Type)
	require.Equal(t, alice.UserID, draft.RecipientID)
	require.Equal(t, reward.ID, draft.ReferenceID)
	require.Equal(t, "reward", draft.ReferenceType)
	require.Contains(t, draft.Message, "Movie night")
}

func TestSingleCompletionCanUnlockSeveralRewards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Coffee", TargetTasks: 1})
	require.NoError(t, err)
	_, err = env.service.CreateReward(ctx, alice, RewardInput{Reward: "Snack", TargetTasks: 1})
	require.NoError(t, err)
	_, err = env.service.CreateReward(ctx, alice, RewardInput{Reward: "Trip", TargetTasks: 10})
	require.NoError(t, err)
	_, err = env.service.CreateReward(ctx, bob, RewardInput{Reward: "Bob's", TargetTasks: 1})
	require.NoError(t, err)

	result, err := env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, result.UnlockedRewards, 2)

	bobRewards, err := env.service.ListRewards(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 0, bobRewards[0].CurrentProgress)
}

func TestConcurrentAccumulationLosesNoIncrement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reward, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Big one", TargetTasks: 100})
	require.NoError(t, err)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.AccumulateRewards(ctx, alice.UserID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var stored Reward
	require.NoError(t, env.db.Where("id = ?", reward.ID).Take(&stored).Error)
	require.Equal(t, workers, stored.CurrentProgress)
}

func TestCompletionSurvivesNotifierFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("inbox offline")
	ctx := context.Background()

	_, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Coffee", TargetTasks: 1})
	require.NoError(t, err)
	result, err := env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, result.UnlockedRewards, 1)
}

func TestBadgesAwardedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	yesterday := startTime.Add(-24 * time.Hour)
	env.setUser(t, alice.UserID, map[string]interface{}{
		"daily_streak":          6,
		"last_active_date":      yesterday,
		"total_tasks_completed": 99,
	})

	result, err := env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 7, result.Streak)

	stats, err := env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []string{BadgePerfectWeek}, stats.Badges)

	completion, err := env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Equal(t, []string{BadgeCenturion}, completion.AwardedBadges)

	completion, err = env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)
	require.Empty(t, completion.AwardedBadges)

	stats, err = env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{BadgePerfectWeek, BadgeCenturion}, stats.Badges)
	require.Len(t, env.notifier.drafts, 2)
	for i, badge := range []string{BadgePerfectWeek, BadgeCenturion} {
		require.Equal(t, notifications.TypeAchievement, env.notifier.drafts[i].Type)
		require.Equal(t, badge, env.notifier.drafts[i].ReferenceID)
		require.Equal(t, "badge", env.notifier.drafts[i].ReferenceType)
	}
}

func TestAchievementNotificationsAreStoredWithReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.AutoMigrate(&notifications.Notification{}))
	inbox, err := notifications.NewService(notifications.ServiceConfig{
		Database:   env.db,
		Clock:      env.clock.Now,
		IDProvider: &sequentialIDs{},
	})
	require.NoError(t, err)
	env.service.notifier = inbox
	env.setUser(t, alice.UserID, map[string]interface{}{"total_tasks_completed": 99})

	reward, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Coffee", TargetTasks: 1})
	require.NoError(t, err)
	_, err = env.service.RecordTaskCompletion(ctx, alice.UserID)
	require.NoError(t, err)

	listing, err := inbox.List(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, listing.Notifications, 2)
	references := map[string]string{}
	for _, stored := range listing.Notifications {
		require.Equal(t, notifications.TypeAchievement, stored.Type)
		require.NotNil(t, stored.ReferenceID)
		require.NotNil(t, stored.ReferenceType)
		references[*stored.ReferenceType] = *stored.ReferenceID
	}
	require.Equal(t, map[string]string{"reward": reward.ID, "badge": BadgeCenturion}, references)
}

func TestTouchStreakFollowsCalendarDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lateEvening := time.Date(2026, time.May, 19, 23, 0, 0, 0, time.UTC)
	env.setUser(t, alice.UserID, map[string]interface{}{
		"daily_streak":        4,
		"last_active_date":    lateEvening,
		"today_focus_minutes": 30,
	})

	env.clock.now = time.Date(2026, time.May, 20, 8, 0, 0, 0, time.UTC)
	result, err := env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 5, Updated: true}, result)
	stats, err := env.service.Stats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TodayFocusMinutes, "a new calendar day resets today's focus")

	env.clock.now = time.Date(2026, time.May, 22, 7, 0, 0, 0, time.UTC)
	result, err = env.service.TouchStreak(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, StreakResult{Streak: 1, Updated: true}, result, "a skipped day restarts the streak")
}

func TestRewardCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "  ", TargetTasks: 0})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Len(t, apperr.FieldErrors(err), 2)

	reward, err := env.service.CreateReward(ctx, alice, RewardInput{Reward: "Pizza", TargetTasks: 5})
	require.NoError(t, err)
	_, err = env.service.AccumulateRewards(ctx, alice.UserID)
	require.NoError(t, err)
	_, err = env.service.AccumulateRewards(ctx, alice.UserID)
	require.NoError(t, err)

	target := 2
	updated, err := env.service.UpdateReward(ctx, alice, reward.ID, RewardUpdate{TargetTasks: &target})
	require.NoError(t, err)
	require.True(t, updated.IsCompleted)
	require.Equal(t, 2, updated.CurrentProgress)

	_, err = env.service.UpdateReward(ctx, bob, reward.ID, RewardUpdate{TargetTasks: &target})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, env.service.DeleteReward(ctx, bob, reward.ID), apperr.ErrNotFound)
	require.NoError(t, env.service.DeleteReward(ctx, alice, reward.ID))

	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error { return env.service.PurgeUser(tx, alice.UserID) }))
}
