package listing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// PreviewPrefix is where draft images can be fetched before submission.
const PreviewPrefix = "/dashboard/new/images/"

// MIMEPolicy decides which uploads count as images.
type MIMEPolicy string

const (
	// MIMEStrict accepts only jpeg, png and webp.
	MIMEStrict MIMEPolicy = "strict"

	// MIMEPermissive accepts any file.
	MIMEPermissive MIMEPolicy = "permissive"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// DraftImage is an uploaded image waiting for submission.
type DraftImage struct {
	models.Image
	PreviewURL string `json:"previewUrl"`
}

// Upload is one image file as received.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DraftOptions struct {
	Policy        MIMEPolicy
	MaxImageBytes int64
	IDs           backend.IDGenerator
}

// DraftState is a copy of the draft for rendering.
type DraftState struct {
	Form   Form         `json:"form"`
	Images []DraftImage `json:"images"`
}

// Draft is one client's listing under construction. Images accumulate
// independently of the form, and the last submitted form values are kept
// until a submission succeeds.
// This implementation is safe for concurrent use.
type Draft struct {
	docs   backend.Documents
	blobs  backend.Blobs
	opts   DraftOptions
	logger *zap.Logger

	mu     sync.Mutex
	form   Form
	images []DraftImage
}

func NewDraft(docs backend.Documents, blobs backend.Blobs, opts DraftOptions, logger *zap.Logger) *Draft {
	if opts.Policy == "" {
		opts.Policy = MIMEStrict
	}
	if opts.IDs == nil {
		opts.IDs = backend.UUIDGenerator{}
	}
	return &Draft{
		docs:   docs,
		blobs:  blobs,
		opts:   opts,
		logger: logger,
	}
}

// State returns a copy of the current form values and images.
func (d *Draft) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DraftState{
		Form:   d.form,
		Images: slices.Clone(d.images),
	}
}

// Image looks up a draft image by name.
func (d *Draft) Image(name string) (DraftImage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, img := range d.images {
		if img.Name == name {
			return img, true
		}
	}
	return DraftImage{}, false
}

// AddImage uploads the file under images/{uid}/{new id}, resolves its URL and
// appends it to the draft. Nothing is appended when ctx ends before the URL
// is known.
func (d *Draft) AddImage(ctx context.Context, user *models.User, up Upload) (DraftImage, error) {
	if user == nil {
		return DraftImage{}, ErrNotSignedIn
	}
	if d.opts.MaxImageBytes > 0 && up.Size > d.opts.MaxImageBytes {
		return DraftImage{}, fmt.Errorf("%s is %d bytes: %w", up.Filename, up.Size, ErrImageSize)
	}

	body := bufio.NewReader(up.Body)
	contentType, err := d.checkType(up.ContentType, body)
	if err != nil {
		return DraftImage{}, fmt.Errorf("%s: %w", up.Filename, err)
	}

	name := d.opts.IDs.New()
	path := models.ImagePath(user.ID, name)

	if err := d.blobs.Upload(ctx, path, body, up.Size, contentType); err != nil {
		return DraftImage{}, fmt.Errorf("uploading image: %w", err)
	}

	url, err := d.blobs.URL(ctx, path)
	if err != nil {
		return DraftImage{}, fmt.Errorf("resolving image url: %w", err)
	}

	if err := ctx.Err(); err != nil {
		d.logger.Debug("request ended before image was listed", zap.String("path", path))
		return DraftImage{}, err
	}

	img := DraftImage{
		Image:      models.Image{UID: user.ID, Name: name, URL: url},
		PreviewURL: PreviewPrefix + name,
	}

	d.mu.Lock()
	d.images = append(d.images, img)
	d.mu.Unlock()

	return img, nil
}

// checkType returns the content type to store the upload with, sniffing it
// when the client did not declare one.
func (d *Draft) checkType(declared string, body *bufio.Reader) (string, error) {
	contentType := declared
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := body.Peek(512)
		contentType = strings.SplitN(http.DetectContentType(head), ";", 2)[0]
	}

	if d.opts.Policy == MIMEPermissive {
		return contentType, nil
	}
	if !slices.Contains(allowedImageTypes, contentType) {
		return "", fmt.Errorf("%q: %w", contentType, ErrImageType)
	}
	return contentType, nil
}

// RemoveImage deletes a draft image from blob storage and, only once that
// succeeds, from the draft.
func (d *Draft) RemoveImage(ctx context.Context, user *models.User, name string) error {
	if user == nil {
		return ErrNotSignedIn
	}

	img, ok := d.Image(name)
	if !ok {
		return fmt.Errorf("draft image %s: %w", name, backend.ErrNotFound)
	}

	if err := d.blobs.Delete(ctx, img.Path()); err != nil {
		d.logger.Warn("could not delete draft image", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("deleting image: %w", err)
	}

	d.mu.Lock()
	d.images = slices.DeleteFunc(d.images, func(i DraftImage) bool { return i.Name == name })
	d.mu.Unlock()

	return nil
}

// Reset drops the form values and the image list. Uploaded blobs are left
// in storage.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = Form{}
	d.images = nil
}

// Submit validates the form and creates the listing from it and the draft
// images. On success the form and the submitted images are cleared; on any
// failure the draft keeps the submitted values.
func (d *Draft) Submit(ctx context.Context, user *models.User, form Form) (models.Listing, error) {
	if user == nil {
		return models.Listing{}, ErrNotSignedIn
	}

	d.mu.Lock()
	d.form = form
	images := slices.Clone(d.images)
	d.mu.Unlock()

	if err := form.Validate(); err != nil {
		return models.Listing{}, err
	}
	if len(images) == 0 {
		return models.Listing{}, ErrNoImages
	}

	stored := make([]models.Image, 0, len(images))
	for _, img := range images {
		stored = append(stored, img.Image)
	}

	car := models.Listing{
		UID:         user.ID,
		Name:        strings.ToUpper(form.Name),
		Model:       form.Model,
		Year:        form.Year,
		KM:          form.KM,
		Price:       form.Price,
		City:        form.City,
		Cambio:      form.Cambio,
		Whatsapp:    form.Whatsapp,
		Description: form.Description,
		Owner:       user.DisplayName(),
		Images:      stored,
	}

	id, err := d.docs.Add(ctx, Collection, map[string]any{
		"uid":         car.UID,
		"name":        car.Name,
		"model":       car.Model,
		"year":        car.Year,
		"km":          car.KM,
		"price":       car.Price,
		"city":        car.City,
		"whatsapp":    car.Whatsapp,
		"description": car.Description,
		"cambio":      car.Cambio,
		"owner":       car.Owner,
		"images":      car.Images,
		"createdAt":   backend.ServerTimestamp,
	})
	if err != nil {
		return models.Listing{}, fmt.Errorf("creating listing: %w", err)
	}
	car.ID = id

	submitted := make(map[string]bool, len(images))
	for _, img := range images {
		submitted[img.Name] = true
	}

	d.mu.Lock()
	if d.form == form {
		d.form = Form{}
	}
	d.images = slices.DeleteFunc(d.images, func(i DraftImage) bool { return submitted[i.Name] })
	d.mu.Unlock()

	return car, nil
}
