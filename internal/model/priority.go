package model

// Priority orders pull requests by how urgently the viewer should act.
// Higher values sort first.
type Priority int

const (
	NoActionNeeded    Priority = 0
	RejectedByViewer  Priority = 10
	PendingOwn        Priority = 60
	ApprovedOwn       Priority = 70
	MissingReview     Priority = 80
	RejectedOwn       Priority = 90
	NoReviews         Priority = 100
	BlockingOtherWork Priority = 120
)

func (p Priority) String() string {
	switch p {
	case BlockingOtherWork:
		return "blocking"
	case NoReviews:
		return "no reviews"
	case RejectedOwn:
		return "changes requested"
	case MissingReview:
		return "needs your review"
	case ApprovedOwn:
		return "approved"
	case PendingOwn:
		return "pending"
	case RejectedByViewer:
		return "waiting on author"
	case NoActionNeeded:
		return "no action"
	default:
		return "unknown"
	}
}

// FollowUp is the suggested next step shown next to a pull request.
func (p Priority) FollowUp() string {
	switch p {
	case BlockingOtherWork:
		return "Other pull requests are stacked on this branch. Land it first."
	case NoReviews:
		return "Pull request has no reviews. Hurry up and be first."
	case RejectedOwn:
		return "Your pull request has requested changes. Maybe something to do here?"
	case MissingReview:
		return "Pull request is missing a review from you."
	case ApprovedOwn:
		return "Your pull request has been approved. Merge it?"
	case PendingOwn:
		return "Your pull request is waiting for reviews."
	case RejectedByViewer:
		return "You requested changes. Waiting for the author."
	default:
		return "All good. The author should be merging this anytime."
	}
}
