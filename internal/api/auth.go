package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/session"
)

const (
	msgLoggedIn      = "Logado com sucesso"
	msgLoginFailed   = "Email ou senha inválida(o)"
	msgRegistered    = "Cadastrado com sucesso! Bem-vindo ao WebCarros"
	msgRegisterFail  = "Erro ao cadastrar!"
	afterAuthPath    = "/dashboard"
	afterSignOutPath = "/"
)

// loginPage signs the client out, so the form always starts a fresh session.
func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.signOut(w, r)
	s.respond(w, r, http.StatusOK, Response{View: "login"})
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.signOut(w, r)
	s.respond(w, r, http.StatusOK, Response{View: "register"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.signOut(w, r)
	s.respond(w, r, http.StatusOK, Response{View: "home", Redirect: afterSignOutPath})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	c := session.FromContext(r.Context())
	if c.Auth.AccessToken() == "" {
		return
	}
	if err := c.Auth.SignOut(r.Context()); err != nil {
		s.logger.Info("remote sign out failed", zap.Error(err))
	}
	if err := s.sessions.Persist(w, r, c); err != nil {
		s.logger.Error("failed to save session cookie", zap.Error(err))
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	c := session.FromContext(r.Context())

	var req models.AuthRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errs := validateLogin(req); len(errs) > 0 {
		s.respond(w, r, http.StatusUnprocessableEntity, Response{View: "login", Errors: errs})
		return
	}

	if _, err := c.Auth.SignIn(r.Context(), req.Email, req.Password); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("login", "failed").Inc()
		status := http.StatusUnauthorized
		if !errors.Is(err, backend.ErrInvalidCredentials) {
			s.logger.Warn("sign in failed", zap.Error(err))
			status = http.StatusBadGateway
		}
		s.respond(w, r, status, Response{View: "login", Notice: failure(msgLoginFailed)})
		return
	}
	s.metrics.AuthAttempts.WithLabelValues("login", "ok").Inc()

	if err := s.sessions.Persist(w, r, c); err != nil {
		s.logger.Error("failed to save session cookie", zap.Error(err))
	}
	s.respond(w, r, http.StatusOK, Response{
		View:     "login",
		Notice:   success(msgLoggedIn),
		Redirect: afterAuthPath,
	})
}

// register creates the account, names it and seeds the session state with
// the name right away: the auth notification of the sign-up carries the
// identity as it was before the name was set.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	c := session.FromContext(r.Context())

	var req models.AuthRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errs := validateRegister(req); len(errs) > 0 {
		s.respond(w, r, http.StatusUnprocessableEntity, Response{View: "register", Errors: errs})
		return
	}

	created, err := c.Auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.metrics.AuthAttempts.WithLabelValues("register", "failed").Inc()
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, backend.ErrEmailAlreadyRegistered):
			status = http.StatusConflict
		case errors.Is(err, backend.ErrConfirmationRequired):
			status = http.StatusAccepted
		}
		s.logger.Info("sign up failed", zap.Error(err))
		s.respond(w, r, status, Response{View: "register", Notice: failure(msgRegisterFail)})
		return
	}
	s.metrics.AuthAttempts.WithLabelValues("register", "ok").Inc()

	if _, err := c.Auth.UpdateProfile(r.Context(), backend.Profile{DisplayName: req.Name}); err != nil {
		s.logger.Warn("could not set display name", zap.String("uid", created.User.ID), zap.Error(err))
	}

	c.Session.HandleInfoUser(&models.User{
		ID:    created.User.ID,
		Name:  models.StringPtr(req.Name),
		Email: models.StringPtr(req.Email),
	})

	if err := s.sessions.Persist(w, r, c); err != nil {
		s.logger.Error("failed to save session cookie", zap.Error(err))
	}
	s.respond(w, r, http.StatusCreated, Response{
		View:     "register",
		Notice:   success(msgRegistered),
		Redirect: afterAuthPath,
	})
}
