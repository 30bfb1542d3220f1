package listing

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

const whatsappBase = "https://api.whatsapp.com/send"

// Detail is the public page of one listing.
type Detail struct {
	Car      models.Listing `json:"car"`
	Images   []string       `json:"images"`
	Whatsapp string         `json:"whatsapp"`
}

type Details struct {
	docs backend.Documents
}

func NewDetails(docs backend.Documents) *Details {
	return &Details{docs: docs}
}

// Load fetches one listing. A missing id yields an error wrapping
// backend.ErrNotFound.
//
// Transmission, fuel, color and plate are shown as stored; the authoring
// flow never writes them, so they are usually empty.
func (d *Details) Load(ctx context.Context, id string) (*Detail, error) {
	doc, err := d.docs.Get(ctx, Collection, id)
	if err != nil {
		return nil, fmt.Errorf("loading listing %s: %w", id, err)
	}

	car, err := decodeListing(*doc)
	if err != nil {
		return nil, err
	}

	images := make([]string, 0, len(car.Images))
	for _, img := range car.Images {
		images = append(images, img.URL)
	}

	return &Detail{
		Car:      car,
		Images:   images,
		Whatsapp: WhatsappLink(car),
	}, nil
}

// WhatsappLink opens a chat with the seller's Brazilian number and a canned
// message naming the car.
func WhatsappLink(car models.Listing) string {
	v := url.Values{}
	v.Set("phone", "+55"+car.Whatsapp)
	v.Set("text", fmt.Sprintf("Olá vi o anuncio do %s no WebCarros e fiquei interessado.", car.Name))
	return whatsappBase + "?" + v.Encode()
}
