package lesson

import "context"

// Repository persists content-addressed lessons.
type Repository interface {
	// Ensure persists the lesson if no lesson with the same fingerprint
	// exists yet, and returns the fingerprint either way. The
	// check-and-insert must be a single atomic operation: two concurrent
	// Ensure calls for identical content converge on one stored row.
	Ensure(ctx context.Context, l *Lesson) (string, error)

	// GetByID returns a stored lesson by its content hash.
	// Returns shared.ErrLessonNotFound when absent.
	GetByID(ctx context.Context, id string) (*Lesson, error)
}
