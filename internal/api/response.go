package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/session"
)

// Notice kinds.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// Notice is a toast message for the user.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the envelope of every view.
type Response struct {
	View     string            `json:"view"`
	Nav      string            `json:"nav"`
	Notice   *Notice           `json:"notice,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	Data     any               `json:"data,omitempty"`
}

func success(msg string) *Notice { return &Notice{Kind: NoticeSuccess, Message: msg} }
func failure(msg string) *Notice { return &Notice{Kind: NoticeError, Message: msg} }

// respond writes resp with the header state of the request's client.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	if c := session.FromContext(r.Context()); c != nil {
		resp.Nav = c.Session.Snapshot().Nav()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

// decode reads a JSON request body of at most 64KB into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, 64<<10)
	return json.NewDecoder(body).Decode(v)
}
