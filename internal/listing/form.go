package listing

import (
	"regexp"
	"sort"
	"strings"
)

var whatsappPattern = regexp.MustCompile(`^\d{11,12}$`)

// Form is the authoring form as submitted.
type Form struct {
	Name        string `json:"name"`
	Model       string `json:"model"`
	Year        string `json:"year"`
	KM          string `json:"km"`
	Price       string `json:"price"`
	City        string `json:"city"`
	Cambio      string `json:"cambio"`
	Whatsapp    string `json:"whatsapp"`
	Description string `json:"description"`
}

// ValidationError maps form fields to the message shown next to them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid fields: " + strings.Join(keys, ", ")
}

// Validate applies the authoring field rules.
func (f Form) Validate() error {
	errs := map[string]string{}
	required := []struct {
		field, value, msg string
	}{
		{"name", f.Name, "O campo nome é obrigatório"},
		{"model", f.Model, "O modelo é obrigatório"},
		{"year", f.Year, "O Ano do carro é obrigatório"},
		{"km", f.KM, "O KM do carro é obrigatório"},
		{"price", f.Price, "O preço é obrigatório"},
		{"city", f.City, "A cidade é obrigatória"},
		{"cambio", f.Cambio, "O tipo cambio é obrigatório"},
		{"description", f.Description, "A descrição é obrigatória"},
	}
	for _, r := range required {
		if r.value == "" {
			errs[r.field] = r.msg
		}
	}

	switch {
	case f.Whatsapp == "":
		errs["whatsapp"] = "O Telefone é obrigatório"
	case !whatsappPattern.MatchString(f.Whatsapp):
		errs["whatsapp"] = "Numero de telefone invalido."
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
