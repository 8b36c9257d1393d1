package boleta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Caso corto: la descripción cabe en una línea y solo se agrega el sufijo.
func TestPackParagraphs_LineaCorta(t *testing.T) {
	got := PackParagraphs("Curso: Introducción a la Programación", "OPEN-100001")
	assert.Equal(t, "Curso: Introducción a la Programación^OPEN-100001", got)
}

// Caso largo: se parte en segmentos de hasta 199 caracteres unidos por "^".
func TestPackParagraphs_LineaLarga(t *testing.T) {
	line := strings.Repeat("a", 450)
	got := PackParagraphs(line, "OPEN-100002")

	segments := strings.Split(got, "^")
	require.Equal(t, "OPEN-100002", segments[len(segments)-1], "el número de orden siempre va al final")
	for _, seg := range segments[:len(segments)-1] {
		assert.LessOrEqual(t, len(seg), 199)
	}
	// Nada del contenido se pierde bajo el presupuesto de 796.
	assert.Equal(t, line, strings.Join(segments[:len(segments)-1], ""))
}

// Caso extremo: el contenido que excede los 796 caracteres se descarta pero el
// sufijo con la orden se conserva.
func TestPackParagraphs_ExcedePresupuesto(t *testing.T) {
	line := strings.Repeat("b", 1200)
	got := PackParagraphs(line, "OPEN-100003")

	require.True(t, strings.HasSuffix(got, "^OPEN-100003"))
	segments := strings.Split(got, "^")
	content := strings.Join(segments[:len(segments)-1], "")
	assert.Len(t, content, 796)
}

// El largo exacto de 200 no se parte.
func TestPackParagraphs_Limite200(t *testing.T) {
	line := strings.Repeat("c", 200)
	got := PackParagraphs(line, "OPEN-100004")
	assert.Equal(t, line+"^OPEN-100004", got)
}
