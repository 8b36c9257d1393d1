package boleta

// PackParagraphs divide una descripción larga en segmentos de hasta 199
// caracteres unidos por "^" (el marcador de continuación de la API de Ventas)
// y agrega el número de orden como sufijo final para trazabilidad.
//
// El campo remoto acepta hasta 1000 caracteres en 5 líneas: se reservan 4
// líneas (796 caracteres de contenido más los "^") para la descripción y la
// última para el número de orden. El texto que exceda el presupuesto se
// descarta, pero el sufijo con la orden se agrega siempre.
func PackParagraphs(line, orderNumber string) string {
	runes := []rune(line)
	suffix := "^" + orderNumber

	if len(runes) <= 200 {
		return line + suffix
	}

	remainder := runes
	if len(remainder) > 796 {
		remainder = remainder[:796]
	}

	segments := len(remainder) / 200
	packed := ""
	for i := 0; i < segments; i++ {
		packed += string(remainder[:199]) + "^"
		remainder = remainder[199:]
	}
	return packed + string(remainder) + suffix
}
