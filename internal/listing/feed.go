package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// searchUpperBound closes the prefix range; it sorts after any character a
// listing name realistically contains.
const searchUpperBound = "\uf8ff"

// Card is the feed's summary of one listing.
type Card struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Year  string `json:"year"`
	KM    string `json:"km"`
	Price string `json:"price"`
	City  string `json:"city"`
	Image string `json:"image"`
}

// NewCard summarizes l for the feed.
func NewCard(l models.Listing) Card {
	return Card{
		ID:    l.ID,
		Name:  l.Name,
		Year:  l.Year,
		KM:    l.KM,
		Price: l.Price,
		City:  l.City,
		Image: l.FirstImageURL(),
	}
}

// Feed lists and searches public listings.
type Feed struct {
	docs backend.Documents
}

func NewFeed(docs backend.Documents) *Feed {
	return &Feed{docs: docs}
}

// Load returns every listing newest first, or, when q is not blank, the
// listings whose name starts with q case-insensitively.
func (f *Feed) Load(ctx context.Context, q string) ([]Card, error) {
	docs, err := f.docs.Query(ctx, Collection, FeedQuery(q))
	if err != nil {
		return nil, fmt.Errorf("loading feed: %w", err)
	}

	listings, err := decodeListings(docs)
	if err != nil {
		return nil, err
	}

	cards := make([]Card, 0, len(listings))
	for _, l := range listings {
		cards = append(cards, NewCard(l))
	}
	return cards, nil
}

// FeedQuery builds the document query for a search string. Names are stored
// upper-cased, so the prefix range is built from the upper-cased input. Only
// the empty string lists everything; whitespace is part of the prefix.
func FeedQuery(q string) backend.Query {
	if q == "" {
		return backend.Query{}.Order("createdAt", true)
	}

	prefix := strings.ToUpper(q)
	return backend.Query{}.
		Where("name", backend.OpGreaterOrEqual, prefix).
		Where("name", backend.OpLess, prefix+searchUpperBound).
		Order("name", false)
}
