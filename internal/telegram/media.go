package telegram

import (
	"mime"
	"strings"

	"tgstories/internal/domain"

	"github.com/gotd/td/tg"
)

const (
	photoExt    = "jpg"
	fallbackExt = "bin"
)

func mediaLocation(media tg.MessageMediaClass) (domain.MediaKind, string, tg.InputFileLocationClass) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return domain.MediaNone, "", nil
		}

		thumbSize := largestPhotoSize(photo.Sizes)
		if thumbSize == "" {
			return domain.MediaNone, "", nil
		}

		return domain.MediaPhoto, photoExt, &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumbSize,
		}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return domain.MediaNone, "", nil
		}

		return domain.MediaDocument, extFromMimeType(doc.MimeType), &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}
	default:
		return domain.MediaNone, "", nil
	}
}

// largestPhotoSize returns the type letter of the biggest full-size variant.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	var best string
	var bestArea int

	for _, size := range sizes {
		var typ string
		var area int

		switch s := size.(type) {
		case *tg.PhotoSize:
			typ, area = s.Type, s.W*s.H
		case *tg.PhotoSizeProgressive:
			typ, area = s.Type, s.W*s.H
		default:
			continue
		}

		if best == "" || area > bestArea {
			best, bestArea = typ, area
		}
	}

	return best
}

// extFromMimeType uses the MIME subtype, so video/mp4 becomes mp4.
func extFromMimeType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	_, subtype, ok := strings.Cut(mediaType, "/")
	if !ok {
		return fallbackExt
	}

	subtype = strings.TrimSpace(subtype)
	if subtype == "" || strings.ContainsAny(subtype, `/\.`) {
		return fallbackExt
	}

	return subtype
}
