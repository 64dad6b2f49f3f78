package flashcards

import "time"

const (
	// MinBox is the box every new or missed card lands in.
	MinBox = 1
	// MaxBox is the ceiling a card stays at once fully learned.
	MaxBox = 5
)

// Schedule is the scheduling state produced by a review.
type Schedule struct {
	Box            int
	LastReviewDate time.Time
	NextReviewDate time.Time
}

// Review advances box after a response given at now.
// A correct answer moves the card up one box, capped at MaxBox; a miss returns it to MinBox.
// The next review falls 2^(box-1) days after now.
func Review(box int, correct bool, now time.Time) Schedule {
	next := MinBox
	if correct {
		next = clampBox(box) + 1
		if next > MaxBox {
			next = MaxBox
		}
	}
	return Schedule{
		Box:            next,
		LastReviewDate: now,
		NextReviewDate: now.AddDate(0, 0, Interval(next)),
	}
}

// Interval returns the review gap in days for box.
func Interval(box int) int {
	return 1 << (clampBox(box) - 1)
}

// Due reports whether a card scheduled for next is reviewable at now.
func Due(next, now time.Time) bool {
	return !next.After(now)
}

func clampBox(box int) int {
	if box < MinBox {
		return MinBox
	}
	if box > MaxBox {
		return MaxBox
	}
	return box
}
