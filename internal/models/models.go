package models

import (
	"strings"
	"time"
)

// UserProfile is the public profile stored at users/{uid}. Profiles are created by the
// identity provider at sign-up; the service only reads them.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// FullName joins the first and last name, trimmed.
func (p UserProfile) FullName() string {
	return joinName(p.FirstName, p.LastName)
}

// FriendRequest is a pending invitation stored in the recipient's inbox. ID always equals
// FromUID so a sender has at most one pending request per recipient.
type FriendRequest struct {
	ID        string    `json:"id"`
	FromUID   string    `json:"fromUid"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrichedFriendRequest is a FriendRequest joined with the sender's profile.
type EnrichedFriendRequest struct {
	ID        string `json:"id"`
	FromUID   string `json:"fromUid"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName joins the sender's first and last name, trimmed.
func (r EnrichedFriendRequest) FullName() string {
	return joinName(r.FirstName, r.LastName)
}

// FriendshipEdge is one direction of an accepted friendship, stored under the owner.
type FriendshipEdge struct {
	PeerID    string    `json:"peerId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Timestamp time.Time `json:"timestamp"`
}

// FriendSummary is the live view of a friend used by friend lists.
type FriendSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BuzzEvent is a single ping appended to the recipient's buzz inbox.
type BuzzEvent struct {
	ID        string    `json:"id"`
	FromUID   string    `json:"fromUid"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is the payload handed to the notification delivery collaborator.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Name fallbacks used when a profile is missing or incomplete.
const (
	UnknownSenderName = "Unknown"
	NoName            = "No Name"
	SelfFallbackName  = "Me"
	AnonymousName     = "Someone"
)

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
