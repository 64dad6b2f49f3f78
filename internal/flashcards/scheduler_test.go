package flashcards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var reviewStart = time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

func TestReviewCorrectClimbsAndCapsAtMaxBox(t *testing.T) {
	box := MinBox
	now := reviewStart
	expected := []int{2, 3, 4, 5, 5, 5}
	for _, want := range expected {
		schedule := Review(box, true, now)
		require.Equal(t, want, schedule.Box)
		require.Equal(t, now, schedule.LastReviewDate)
		require.Equal(t, now.AddDate(0, 0, 1<<(want-1)), schedule.NextReviewDate)
		box = schedule.Box
		now = schedule.NextReviewDate
	}
}

func TestReviewIncorrectResetsFromEveryBox(t *testing.T) {
	for box := MinBox; box <= MaxBox; box++ {
		schedule := Review(box, false, reviewStart)
		require.Equal(t, MinBox, schedule.Box)
		require.Equal(t, reviewStart.AddDate(0, 0, 1), schedule.NextReviewDate)
	}
}

func TestReviewClampsCorruptBoxes(t *testing.T) {
	require.Equal(t, 2, Review(0, true, reviewStart).Box)
	require.Equal(t, MaxBox, Review(9, true, reviewStart).Box)
	require.Equal(t, 16, Interval(42))
	require.Equal(t, 1, Interval(-3))
}

func TestDue(t *testing.T) {
	require.True(t, Due(reviewStart, reviewStart))
	require.True(t, Due(reviewStart.Add(-time.Second), reviewStart))
	require.False(t, Due(reviewStart.Add(time.Second), reviewStart))
}
