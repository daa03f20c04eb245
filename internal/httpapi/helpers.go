package httpapi

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

func isoOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// contentDisposition renders an attachment header carrying both a
// quote-escaped ASCII fallback and an RFC 5987 extended value, so a
// malicious or merely non-ASCII filename can neither break out of the
// header nor get mangled for clients that honor filename*.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		asciiFallback(filename), url.PathEscape(filename))
}

func asciiFallback(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	var b strings.Builder
	for _, r := range escaped {
		if r < 0x20 || r > 0x7e {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
