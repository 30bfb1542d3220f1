// Package listing implements the marketplace flows over the backend: the
// public feed and search, the detail page, the authoring draft and the
// owner's management list.
package listing

import (
	"errors"
	"fmt"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// Collection holds one document per listing.
const Collection = "cars"

var (
	ErrNoImages    = errors.New("listing has no images")
	ErrImageType   = errors.New("unsupported image type")
	ErrImageSize   = errors.New("image too large")
	ErrNotSignedIn = errors.New("not signed in")
	ErrNotOwner    = errors.New("listing belongs to another user")
)

// User-facing notices.
const (
	MsgNoImages      = "Adicione uma imagem"
	MsgCreated       = "Carro cadastrado com sucesso!"
	MsgCreateFailed  = "Falha ao cadastrar o carro..."
	MsgDeleted       = "Carro deletado com sucesso!"
	MsgImageRejected = "Formato de imagem inválido... Apenas JPEG ou PNG ou Webp"
	MsgImageDeleted  = "Imagem deletada"
)

func decodeListing(doc backend.Document) (models.Listing, error) {
	var l models.Listing
	if err := doc.Decode(&l); err != nil {
		return models.Listing{}, fmt.Errorf("decoding listing: %w", err)
	}
	l.ID = doc.ID
	return l, nil
}

func decodeListings(docs []backend.Document) ([]models.Listing, error) {
	out := make([]models.Listing, 0, len(docs))
	for _, doc := range docs {
		l, err := decodeListing(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
