package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Form)
		want   map[string]string
	}{
		{name: "valid", modify: func(*Form) {}},
		{name: "twelve digit phone", modify: func(f *Form) { f.Whatsapp = "556799999999" }},
		{
			name:   "missing name",
			modify: func(f *Form) { f.Name = "" },
			want:   map[string]string{"name": "O campo nome é obrigatório"},
		},
		{
			name:   "missing phone",
			modify: func(f *Form) { f.Whatsapp = "" },
			want:   map[string]string{"whatsapp": "O Telefone é obrigatório"},
		},
		{
			name:   "short phone",
			modify: func(f *Form) { f.Whatsapp = "6799999" },
			want:   map[string]string{"whatsapp": "Numero de telefone invalido."},
		},
		{
			name:   "formatted phone",
			modify: func(f *Form) { f.Whatsapp = "(67) 99999-9999" },
			want:   map[string]string{"whatsapp": "Numero de telefone invalido."},
		},
		{
			name:   "several fields",
			modify: func(f *Form) { f.KM, f.Cambio, f.Description = "", "", "" },
			want: map[string]string{
				"km":          "O KM do carro é obrigatório",
				"cambio":      "O tipo cambio é obrigatório",
				"description": "A descrição é obrigatória",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.modify(&f)

			err := f.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Fields)
		})
	}
}
