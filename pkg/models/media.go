package models

import "sort"

// Media reference types as they appear on persisted posts
const (
	MediaTypePhoto       = "photo"
	MediaTypeLinkedImage = "linked_image"

	OrderTypeAttachment = "attachment"
	OrderTypeLink       = "link"
)

// MediaRef is the reference a post carries to one downloaded media asset
type MediaRef struct {
	MediaID     string `json:"media_id"`
	OriginalURL string `json:"original_url"`
	Type        string `json:"type"`
	MimeType    string `json:"mime_type"`
	Size        int    `json:"size"`

	// Position is the text offset of the media's entity in the post body
	Position int `json:"position"`

	// OrderType breaks position ties: attachments sort before linked images
	OrderType string `json:"order_type"`
}

// SortMediaRefs orders references by position ascending with
// attachment-before-link on ties. Applied to every post before persistence.
func SortMediaRefs(refs []MediaRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Position != refs[j].Position {
			return refs[i].Position < refs[j].Position
		}
		return refs[i].OrderType == OrderTypeAttachment && refs[j].OrderType == OrderTypeLink
	})
}

// MediaAsset is the stored metadata of one downloaded binary
type MediaAsset struct {
	MediaID     string `json:"media_id"`
	FilePath    string `json:"file_path"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	CreatedAt   string `json:"created_at"`
}
