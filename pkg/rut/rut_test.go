package rut_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-uchile/ecommerce/pkg/rut"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		valid bool
	}{
		{"con puntos y guión", "11.111.111-1", true},
		{"solo guión", "12345678-5", true},
		{"sin separadores", "123456785", true},
		{"rut receptor anónimo", "66666666-6", true},
		{"dígito K", "11111112-K", true},
		{"dígito k minúscula", "11111112-k", true},
		{"dígito verificador incorrecto", "12345678-4", false},
		{"K cuando no corresponde", "11111111-K", false},
		{"vacío", "", false},
		{"un solo carácter", "1", false},
		{"letras en el cuerpo", "1234A678-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, rut.Validate(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := rut.Normalize("12.345.678-5")
	require.NoError(t, err)
	assert.Equal(t, "12345678-5", got)

	got, err = rut.Normalize("11111112k")
	require.NoError(t, err)
	assert.Equal(t, "11111112-K", got)

	// La normalización no valida: solo da formato
	got, err = rut.Normalize("12345678-4")
	require.NoError(t, err)
	assert.Equal(t, "12345678-4", got)

	_, err = rut.Normalize("--..")
	assert.Error(t, err)
}
