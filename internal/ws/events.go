package ws

import (
	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/session"
)

// Message types sent on the streams.
const (
	TypeWelcome        = "WELCOME"
	TypeListingCreated = "LISTING_CREATED"
	TypeListingDeleted = "LISTING_DELETED"
	TypeSession        = "SESSION"
)

type Welcome struct {
	Type        string `json:"type"`
	ID          int    `json:"id"`
	Subscribers int    `json:"subscribers"`
}

type ListingCreated struct {
	Type string       `json:"type"`
	Card listing.Card `json:"card"`
}

type ListingDeleted struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type SessionChanged struct {
	Type     string           `json:"type"`
	Snapshot session.Snapshot `json:"snapshot"`
	Nav      string           `json:"nav"`
}
