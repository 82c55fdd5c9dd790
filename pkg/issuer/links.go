package issuer

import (
	"net/url"
	"strings"
)

// DeriveLinks construye las variantes PDF/IMAGE/QRCODE a partir del enlace base fijando
// el parámetro format. Acepta también una variante ya derivada. Sin enlace devuelve nil.
func DeriveLinks(base string) map[string]string {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil
	}
	links := make(map[string]string, 3)
	for _, variant := range []string{LinkPDF, LinkImage, LinkQRCode} {
		links[variant] = withFormat(base, strings.ToLower(variant))
	}
	return links
}

func withFormat(base, format string) string {
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + "format=" + format
	}
	q := u.Query()
	q.Set("format", format)
	u.RawQuery = q.Encode()
	return u.String()
}
