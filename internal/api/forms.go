package api

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/vindennt/webcarros/internal/models"
)

// validEmail accepts a bare address such as "maria@example.com".
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func validateRegister(req models.AuthRequest) map[string]string {
	errs := map[string]string{}
	if utf8.RuneCountInString(req.Name) < 10 {
		errs["name"] = "Digite seu nome e sobrenome"
	}
	if !validEmail(req.Email) {
		errs["email"] = "Insira um email válido"
	}
	if utf8.RuneCountInString(req.Password) < 8 {
		errs["password"] = "A senha deve conter no mínimo 8 caracteres"
	}
	return errs
}

func validateLogin(req models.AuthRequest) map[string]string {
	errs := map[string]string{}
	if !validEmail(req.Email) {
		errs["email"] = "Insira um email válido"
	}
	if req.Password == "" {
		errs["password"] = "O campo senha é obrigatório"
	}
	return errs
}
