// Package rut valida el RUT chileno (Rol Único Tributario) y su dígito verificador.
package rut

import (
	"fmt"
	"strings"
)

const validChars = "0123456789K"

// Validate verifica que el dígito verificador del RUT sea correcto según el
// algoritmo módulo 11 del Registro Civil. Acepta puntos, guiones y minúsculas:
// "12.345.678-5", "12345678-5" y "123456785" son equivalentes.
func Validate(raw string) bool {
	s := strings.ToUpper(raw)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}

	body := s[:len(s)-1]
	dv := s[len(s)-1]

	// Cuerpo invertido multiplicado por la secuencia cíclica 2..7
	sum := 0
	factor := 2
	for i := len(body) - 1; i >= 0; i-- {
		d := body[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * factor
		if factor < 7 {
			factor++
		} else {
			factor = 2
		}
	}

	res := ((-sum) % 11 + 11) % 11
	if res == 10 {
		return dv == 'K'
	}
	return dv == byte('0'+res)
}

// Normalize limpia el identificador dejando solo dígitos y K, y reinserta el
// guión antes del dígito verificador (formato 12345678-K exigido por la API
// de Ventas). Retorna error si no quedan caracteres suficientes.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if strings.ContainsRune(validChars, r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) < 2 {
		return "", fmt.Errorf("rut: identificador %q demasiado corto", raw)
	}
	return s[:len(s)-1] + "-" + s[len(s)-1:], nil
}
