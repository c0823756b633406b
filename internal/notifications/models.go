package notifications

import "time"

// Notification kinds mirror the user-facing events the platform emits.
const (
	KindMessage = "message"
	KindRating  = "rating"
	KindComment = "comment"
	KindVisit   = "visit"
)

// Notification is one durable user-facing event. Delivery over a live
// channel is a separate, best-effort concern; this row is the source of
// truth either way.
type Notification struct {
	ID          int64      `json:"id" db:"id"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	Kind        string     `json:"kind" db:"kind"`
	Title       string     `json:"title" db:"title"`
	Body        string     `json:"body" db:"body"`
	Read        bool       `json:"read" db:"read"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`

	// Optional back-references to whatever triggered the event. The
	// message link in particular is best-effort, not an invariant.
	ActorID     *string `json:"actor_id,omitempty" db:"actor_id"`
	SubjectKind *string `json:"subject_kind,omitempty" db:"subject_kind"`
	SubjectID   *int64  `json:"subject_id,omitempty" db:"subject_id"`
	MessageID   *int64  `json:"message_id,omitempty" db:"message_id"`
}

// Counts is the badge state for a user.
type Counts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}
