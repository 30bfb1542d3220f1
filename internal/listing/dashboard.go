package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// Dashboard is one owner's list of listings as last loaded.
// This implementation is safe for concurrent use.
type Dashboard struct {
	docs   backend.Documents
	logger *zap.Logger

	mu   sync.Mutex
	cars []models.Listing
}

func NewDashboard(docs backend.Documents, logger *zap.Logger) *Dashboard {
	return &Dashboard{docs: docs, logger: logger}
}

// Load replaces the held list with every listing created by uid.
func (d *Dashboard) Load(ctx context.Context, uid string) ([]models.Listing, error) {
	docs, err := d.docs.Query(ctx, Collection, backend.Query{}.Where("uid", backend.OpEqual, uid))
	if err != nil {
		return nil, fmt.Errorf("loading listings of %s: %w", uid, err)
	}

	cars, err := decodeListings(docs)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cars = cars
	d.mu.Unlock()

	return slices.Clone(cars), nil
}

// Cars returns a copy of the held list.
func (d *Dashboard) Cars() []models.Listing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.cars)
}

// Reset forgets the held list.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cars = nil
}

// Delete removes listing id, owned by uid, and drops it from the held list.
// The listing's images stay in blob storage.
func (d *Dashboard) Delete(ctx context.Context, uid, id string) error {
	car, err := d.owned(ctx, uid, id)
	if err != nil {
		return err
	}

	if err := d.docs.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("deleting listing %s: %w", id, err)
	}

	d.mu.Lock()
	d.cars = slices.DeleteFunc(d.cars, func(c models.Listing) bool { return c.ID == id })
	d.mu.Unlock()

	if len(car.Images) > 0 {
		paths := make([]string, 0, len(car.Images))
		for _, img := range car.Images {
			paths = append(paths, img.Path())
		}
		d.logger.Debug("listing deleted, images kept", zap.String("id", id), zap.Strings("paths", paths))
	}
	return nil
}

func (d *Dashboard) owned(ctx context.Context, uid, id string) (models.Listing, error) {
	d.mu.Lock()
	for _, c := range d.cars {
		if c.ID == id && c.UID == uid {
			d.mu.Unlock()
			return c, nil
		}
	}
	d.mu.Unlock()

	doc, err := d.docs.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return models.Listing{}, fmt.Errorf("listing %s: %w", id, backend.ErrNotFound)
		}
		return models.Listing{}, fmt.Errorf("loading listing %s: %w", id, err)
	}
	car, err := decodeListing(*doc)
	if err != nil {
		return models.Listing{}, err
	}
	if car.UID != uid {
		return models.Listing{}, ErrNotOwner
	}
	return car, nil
}
