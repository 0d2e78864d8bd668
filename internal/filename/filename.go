// Package filename picks the on-disk name for a transfer.
package filename

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/vfaronov/httpheader"
)

const synthesizedPrefix = "download-"

// Resolve returns the filename for a transfer. It tries the server hint
// first (either a bare name or a Content-Disposition value), then the last
// path segment of the URLs in urlChain starting from the final one, and
// finally synthesizes download-<timestamp> with an extension guessed from
// mimeType. It never fails.
func Resolve(hint string, urlChain []string, mimeType string, now time.Time) string {
	if name := fromHint(hint); name != "" {
		return name
	}

	for i := len(urlChain) - 1; i >= 0; i-- {
		if name := fromURL(urlChain[i]); name != "" {
			return name
		}
	}

	return synthesizedPrefix + now.UTC().Format("20060102-150405") + ExtensionForMIME(mimeType)
}

func fromHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}

	if strings.ContainsAny(hint, ";=") {
		h := http.Header{}
		h.Set("Content-Disposition", hint)

		_, name, _ := httpheader.ContentDisposition(h)

		return sanitize(name)
	}

	return sanitize(hint)
}

func fromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}

	return sanitize(path.Base(u.Path))
}

// sanitize strips directory components and rejects names that cannot be
// used as a file in the download directory.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}

		return r
	}, name)

	switch name {
	case "", ".", "..", "/":
		return ""
	}

	return name
}

// ExtensionForMIME returns a dotted extension for mimeType, or "" when none
// is known.
func ExtensionForMIME(mimeType string) string {
	if mimeType == "" {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}

	var matches []string

	if filetype.IsMIMESupported(mediaType) {
		filetype.Types.Range(func(_, v any) bool {
			if t, ok := v.(types.Type); ok && t.MIME.Value == mediaType && t.Extension != "" {
				matches = append(matches, t.Extension)
			}

			return true
		})
	}

	if len(matches) > 0 {
		sort.Strings(matches)

		return "." + matches[0]
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}

	sort.Strings(exts)

	return exts[0]
}
