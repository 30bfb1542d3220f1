package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/guard"
	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/session"
)

const (
	msgLoadFailed        = "Falha ao carregar os carros"
	msgDeleteFailed      = "Falha ao deletar o carro"
	msgImageUploadFailed = "Falha ao enviar a imagem"
	msgImageDeleteFailed = "Falha ao deletar a imagem"
	msgSlowDown          = "Aguarde um momento antes de enviar outra imagem"
	msgImageTooLarge     = "Imagem muito grande"
)

type homeData struct {
	Query string         `json:"query"`
	Cars  []listing.Card `json:"cars"`
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	cards, err := s.feed.Load(r.Context(), q)
	if err != nil {
		s.logger.Error("feed failed", zap.String("q", q), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{View: "home", Notice: failure(msgLoadFailed)})
		return
	}
	s.respond(w, r, http.StatusOK, Response{View: "home", Data: homeData{Query: q, Cars: cards}})
}

// car shows one listing; unknown ids go back to the feed.
func (s *Server) car(w http.ResponseWriter, r *http.Request) {
	detail, err := s.details.Load(r.Context(), r.PathValue("id"))
	if errors.Is(err, backend.ErrNotFound) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.logger.Error("detail failed", zap.String("id", r.PathValue("id")), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{View: "car", Notice: failure(msgLoadFailed)})
		return
	}
	s.respond(w, r, http.StatusOK, Response{View: "car", Data: detail})
}

type dashboardData struct {
	Cars []models.Listing `json:"cars"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	c, user, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	cars, err := c.Dashboard.Load(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("dashboard failed", zap.String("uid", user.ID), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{View: "dashboard", Notice: failure(msgLoadFailed)})
		return
	}
	s.respond(w, r, http.StatusOK, Response{View: "dashboard", Data: dashboardData{Cars: cars}})
}

func (s *Server) deleteCar(w http.ResponseWriter, r *http.Request) {
	c, user, ok := s.signedIn(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	err := c.Dashboard.Delete(r.Context(), user.ID, id)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotFound):
		s.respond(w, r, http.StatusNotFound, Response{View: "dashboard", Notice: failure(msgDeleteFailed)})
		return
	case errors.Is(err, listing.ErrNotOwner):
		s.respond(w, r, http.StatusForbidden, Response{View: "dashboard", Notice: failure(msgDeleteFailed)})
		return
	default:
		s.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{View: "dashboard", Notice: failure(msgDeleteFailed)})
		return
	}

	s.metrics.ListingsDeleted.Inc()
	s.announce(r, func(ctx context.Context) { s.events.ListingDeleted(ctx, id) })
	s.respond(w, r, http.StatusOK, Response{
		View:   "dashboard",
		Notice: success(listing.MsgDeleted),
		Data:   dashboardData{Cars: c.Dashboard.Cars()},
	})
}

func (s *Server) draft(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.signedIn(w, r)
	if !ok {
		return
	}
	s.respond(w, r, http.StatusOK, Response{View: "new", Data: c.Draft.State()})
}

func (s *Server) submitDraft(w http.ResponseWriter, r *http.Request) {
	c, user, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	var form listing.Form
	if err := decode(w, r, &form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	car, err := c.Draft.Submit(r.Context(), user, form)
	var verr *listing.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		s.respond(w, r, http.StatusUnprocessableEntity, Response{View: "new", Errors: verr.Fields, Data: c.Draft.State()})
		return
	case errors.Is(err, listing.ErrNoImages):
		s.respond(w, r, http.StatusUnprocessableEntity, Response{
			View:   "new",
			Notice: failure(listing.MsgNoImages),
			Data:   c.Draft.State(),
		})
		return
	default:
		s.logger.Error("listing not created", zap.String("uid", user.ID), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{
			View:   "new",
			Notice: failure(listing.MsgCreateFailed),
			Data:   c.Draft.State(),
		})
		return
	}

	s.metrics.ListingsCreated.Inc()
	s.announce(r, func(ctx context.Context) { s.events.ListingCreated(ctx, car) })
	s.respond(w, r, http.StatusCreated, Response{
		View:   "new",
		Notice: success(listing.MsgCreated),
		Data:   c.Draft.State(),
	})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	c, user, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	if !c.UploadLimiter.Allow() {
		s.metrics.ImagesRejected.WithLabelValues("rate").Inc()
		w.Header().Set("Retry-After", "1")
		s.respond(w, r, http.StatusTooManyRequests, Response{View: "new", Notice: failure(msgSlowDown)})
		return
	}

	// room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImageBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.ImagesRejected.WithLabelValues("size").Inc()
			s.respond(w, r, http.StatusRequestEntityTooLarge, Response{View: "new", Notice: failure(msgImageTooLarge)})
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := c.Draft.AddImage(r.Context(), user, listing.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	switch {
	case err == nil:
	case errors.Is(err, listing.ErrImageType):
		s.metrics.ImagesRejected.WithLabelValues("type").Inc()
		s.respond(w, r, http.StatusUnsupportedMediaType, Response{View: "new", Notice: failure(listing.MsgImageRejected)})
		return
	case errors.Is(err, listing.ErrImageSize):
		s.metrics.ImagesRejected.WithLabelValues("size").Inc()
		s.respond(w, r, http.StatusRequestEntityTooLarge, Response{View: "new", Notice: failure(msgImageTooLarge)})
		return
	case r.Context().Err() != nil:
		// the client went away; nobody is left to answer
		return
	default:
		s.logger.Error("image upload failed", zap.String("uid", user.ID), zap.Error(err))
		s.respond(w, r, http.StatusBadGateway, Response{View: "new", Notice: failure(msgImageUploadFailed)})
		return
	}

	s.metrics.ImagesUploaded.Inc()
	s.respond(w, r, http.StatusCreated, Response{View: "new", Data: img})
}

// previewImage sends the browser to the stored draft image.
func (s *Server) previewImage(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	img, ok := c.Draft.Image(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, img.URL, http.StatusFound)
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	c, user, ok := s.signedIn(w, r)
	if !ok {
		return
	}

	err := c.Draft.RemoveImage(r.Context(), user, r.PathValue("name"))
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotFound):
		s.respond(w, r, http.StatusNotFound, Response{View: "new", Notice: failure(msgImageDeleteFailed), Data: c.Draft.State()})
		return
	default:
		s.respond(w, r, http.StatusBadGateway, Response{View: "new", Notice: failure(msgImageDeleteFailed), Data: c.Draft.State()})
		return
	}

	s.respond(w, r, http.StatusOK, Response{
		View:   "new",
		Notice: success(listing.MsgImageDeleted),
		Data:   c.Draft.State(),
	})
}

// signedIn returns the client and its user. Behind guard.Protect it only
// fails when the client signed out concurrently, in which case it redirects.
func (s *Server) signedIn(w http.ResponseWriter, r *http.Request) (*session.Client, *models.User, bool) {
	c := session.FromContext(r.Context())
	user := c.Session.Snapshot().User
	if user == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return nil, nil, false
	}
	return c, user, true
}

// announce publishes in the background, so a rate-limited hub never holds
// up the response.
func (s *Server) announce(r *http.Request, publish func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	go func() {
		defer cancel()
		publish(ctx)
	}()
}
