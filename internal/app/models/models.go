package models

// PostType distinguishes lost-item reports from found-item reports
type PostType string

const (
	PostTypeLost  PostType = "lost"
	PostTypeFound PostType = "found"
)

// PostStatus is the resolution state of a post
type PostStatus string

const (
	PostStatusPending   PostStatus = "pending"
	PostStatusResolved  PostStatus = "resolved"
	PostStatusUnclaimed PostStatus = "unclaimed"
)

// FoundAction records what the finder did with a found item
type FoundAction string

const (
	FoundActionKeep            FoundAction = "keep"
	FoundActionTurnoverOSA     FoundAction = "turnover to OSA"
	FoundActionTurnoverSecurty FoundAction = "turnover to Campus Security"
)

// RequestKind identifies which workflow a request message belongs to
type RequestKind string

const (
	RequestKindHandover RequestKind = "handover"
	RequestKindClaim    RequestKind = "claim"
)

// RequestStatus is the lifecycle state of a handover or claim request
type RequestStatus string

const (
	RequestStatusPending             RequestStatus = "pending"
	RequestStatusAccepted            RequestStatus = "accepted"
	RequestStatusRejected            RequestStatus = "rejected"
	RequestStatusPendingConfirmation RequestStatus = "pending_confirmation"
	RequestStatusConfirmed           RequestStatus = "confirmed"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusConfirmed
}

// Open reports whether s blocks a new request of the same kind in the
// same conversation.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusPendingConfirmation
}
