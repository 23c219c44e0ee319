package types

import "time"

// LinkStatus is the relationship state of a ContactLink.
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkAccepted LinkStatus = "accepted"
	LinkBlocked  LinkStatus = "blocked"
)

// ContactLink is an unordered pair of users. UserA is always the
// lexicographically smaller id so a pair has exactly one representation.
type ContactLink struct {
	ID        LinkID     `json:"id"`
	UserA     UserID     `json:"userA"`
	UserB     UserID     `json:"userB"`
	Status    LinkStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// OrderedPair returns a and b sorted so that callers can look a link up
// without caring which side initiated it.
func OrderedPair(a, b UserID) (UserID, UserID) {
	if b < a {
		return b, a
	}
	return a, b
}

// Has reports whether u is one of the two participants.
func (l ContactLink) Has(u UserID) bool { return l.UserA == u || l.UserB == u }

// Peer returns the participant that is not u.
func (l ContactLink) Peer(u UserID) UserID {
	if l.UserA == u {
		return l.UserB
	}
	return l.UserA
}

// Participants returns both user ids.
func (l ContactLink) Participants() []UserID { return []UserID{l.UserA, l.UserB} }

// Accepted reports whether the link can carry session keys.
func (l ContactLink) Accepted() bool { return l.Status == LinkAccepted }
