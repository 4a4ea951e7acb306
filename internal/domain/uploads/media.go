package uploads

import "strings"

// Recognized document media types mapped to their usual extension.
const (
	MediaPDF  = "application/pdf"
	MediaDOC  = "application/msword"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTXT  = "text/plain"
	MediaRTF  = "application/rtf"
)

var acceptedMediaTypes = map[string]string{
	MediaPDF:  ".pdf",
	MediaDOC:  ".doc",
	MediaDOCX: ".docx",
	MediaTXT:  ".txt",
	MediaRTF:  ".rtf",
}

// IsAccepted reports whether mediaType is one of the recognized document types.
// Parameters such as "; charset=utf-8" are ignored. The tracker never calls this;
// filtering by type is the submitter's job.
func IsAccepted(mediaType string) bool {
	_, ok := acceptedMediaTypes[baseMediaType(mediaType)]
	return ok
}

// MediaTypeForExtension resolves a file extension (with or without the dot).
func MediaTypeForExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for mt, e := range acceptedMediaTypes {
		if e == ext {
			return mt, true
		}
	}
	return "", false
}

func baseMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
