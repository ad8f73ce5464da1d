package mimetypes

import "mime"

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"
	TextCSS   MIME = "text/css"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationXML  MIME = "application/xml"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
)

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Inline reports whether a browser may render the type in place.
// Anything else is served as a download.
func Inline(detected string) bool {
	for _, safe := range []MIME{ImagePNG, ImageJPEG, ImageGIF, ApplicationPDF, TextPlain} {
		if _, ok := Matches(detected, safe); ok {
			return true
		}
	}
	return false
}
