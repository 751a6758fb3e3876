package model

// PartKind distinguishes text from image content parts.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// ContentPart is one unit of multimodal model input. For image parts Value is
// the base64-encoded payload and MediaType its MIME type.
type ContentPart struct {
	Kind      PartKind `json:"kind"`
	Value     string   `json:"value"`
	MediaType string   `json:"mediaType,omitempty"`
}

// TextPart builds a text content part.
func TextPart(s string) ContentPart {
	return ContentPart{Kind: PartText, Value: s}
}

// ImagePart builds an image content part from an already encoded payload.
func ImagePart(mediaType, base64Data string) ContentPart {
	return ContentPart{Kind: PartImage, Value: base64Data, MediaType: mediaType}
}

// HasImage reports whether any part is an image.
func HasImage(parts []ContentPart) bool {
	for _, p := range parts {
		if p.Kind == PartImage {
			return true
		}
	}
	return false
}

// UploadedFile is a file supplied by the learner.
type UploadedFile struct {
	Name      string
	MediaType string
	Data      []byte
}
