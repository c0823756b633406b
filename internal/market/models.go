package market

import "time"

// SubjectKind identifies which family of marketplace subject a
// conversation is about. The two families are identical in shape, so
// everything downstream is parameterized over the kind instead of
// duplicating code paths.
type SubjectKind string

const (
	SubjectListing  SubjectKind = "listing"
	SubjectYardSale SubjectKind = "yard_sale"
)

// Valid reports whether the kind is one of the known subject families.
func (k SubjectKind) Valid() bool {
	return k == SubjectListing || k == SubjectYardSale
}

// SubjectRef is a typed reference to a marketplace subject.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   int64       `json:"id"`
}

// SubjectInfo is the narrow view of a subject the messaging core needs:
// who owns it and whether messaging is administratively enabled.
type SubjectInfo struct {
	Ref              SubjectRef `json:"ref"`
	OwnerID          string     `json:"owner_id"`
	Title            string     `json:"title"`
	MessagingEnabled bool       `json:"messaging_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
