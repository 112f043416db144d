package entity

import "time"

// IdeaStatus is the review status of an innovation idea
type IdeaStatus string

const (
	IdeaStatusSubmitted IdeaStatus = "SUBMITTED"
	IdeaStatusApproved  IdeaStatus = "APPROVED"
	IdeaStatusRejected  IdeaStatus = "REJECTED"
)

// Votable reports whether votes may still be cast
func (s IdeaStatus) Votable() bool {
	return s == IdeaStatusSubmitted || s == IdeaStatusApproved
}

// VoteType is the direction of a vote
type VoteType string

const (
	VoteNone VoteType = ""
	VoteUp   VoteType = "UPVOTE"
	VoteDown VoteType = "DOWNVOTE"
)

// Valid reports whether the vote type can be cast
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Idea is an innovation proposal with vote counters
type Idea struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	SubmittedBy   int64      `json:"submitted_by"`
	Status        IdeaStatus `json:"status"`
	ReviewedBy    *int64     `json:"reviewed_by,omitempty"`
	ReviewComment string     `json:"review_comment,omitempty"`
	VoteCount     int64      `json:"vote_count"`
	UpvoteCount   int64      `json:"upvote_count"`
	DownvoteCount int64      `json:"downvote_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IdeaVote is the single vote a user holds on an idea
type IdeaVote struct {
	ID        int64     `json:"id"`
	IdeaID    int64     `json:"idea_id"`
	UserID    int64     `json:"user_id"`
	VoteType  VoteType  `json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoteDelta is the signed change to apply to an idea's counters
type VoteDelta struct {
	Votes int64
	Up    int64
	Down  int64
}

// IsZero reports whether the delta changes nothing
func (d VoteDelta) IsZero() bool {
	return d == VoteDelta{}
}

func contribution(v VoteType) VoteDelta {
	switch v {
	case VoteUp:
		return VoteDelta{Votes: 1, Up: 1}
	case VoteDown:
		return VoteDelta{Votes: -1, Down: 1}
	}
	return VoteDelta{}
}

// ComputeVoteDelta returns the counter change for moving from previous to next.
// VoteNone on either side means "no vote held".
func ComputeVoteDelta(previous, next VoteType) VoteDelta {
	if previous == next {
		return VoteDelta{}
	}
	p, n := contribution(previous), contribution(next)
	return VoteDelta{
		Votes: n.Votes - p.Votes,
		Up:    n.Up - p.Up,
		Down:  n.Down - p.Down,
	}
}
