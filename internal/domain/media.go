package domain

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MessageType is the gateway message kind used for a campaign attachment.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeVoice   MessageType = "voice"
	MessageTypeSticker MessageType = "sticker"
	MessageTypeDoc     MessageType = "doc"
)

func (t MessageType) String() string { return string(t) }

func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVoice, MessageTypeSticker, MessageTypeDoc:
		return true
	}
	return false
}

const defaultMimeType = "application/octet-stream"

var allowedMimeTypes = map[string]struct{}{
	"application/ogg":               {},
	"application/pdf":               {},
	"application/zip":               {},
	"application/gzip":              {},
	"application/msword":            {},
	"application/vnd.ms-excel":      {},
	"application/vnd.ms-powerpoint": {},

	"audio/mp4":  {},
	"audio/aac":  {},
	"audio/mpeg": {},
	"audio/ogg":  {},
	"audio/webm": {},

	"image/gif":     {},
	"image/jpeg":    {},
	"image/pjpeg":   {},
	"image/png":     {},
	"image/svg+xml": {},
	"image/tiff":    {},
	"image/webp":    {},

	"video/mpeg":      {},
	"video/mp4":       {},
	"video/ogg":       {},
	"video/quicktime": {},
	"video/webm":      {},
	"video/x-ms-wmv":  {},
	"video/x-flv":     {},
}

// Media is a campaign attachment. It is immutable once the campaign is created.
type Media struct {
	Filename    string
	MimeType    string
	MessageType MessageType
	ByteSize    int64
	Data        []byte
}

// NewMedia builds an attachment, deriving the MIME type from the file
// extension when the upload did not carry one.
func NewMedia(filename, mimeType string, data []byte) (*Media, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: media filename is required", ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: media file is empty", ErrValidation)
	}

	mimeType = normalizeMimeType(mimeType)
	if mimeType == "" || mimeType == defaultMimeType {
		if byExt := normalizeMimeType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))); byExt != "" {
			mimeType = byExt
		}
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return nil, fmt.Errorf("%w: unsupported media type %q", ErrValidation, mimeType)
	}

	return &Media{
		Filename:    filename,
		MimeType:    mimeType,
		MessageType: DetectMessageType(mimeType),
		ByteSize:    int64(len(data)),
		Data:        data,
	}, nil
}

// DetectMessageType maps a MIME type to the gateway message type.
func DetectMessageType(mimeType string) MessageType {
	mimeType = normalizeMimeType(mimeType)
	if mimeType == "" {
		return MessageTypeText
	}
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return MessageTypeDoc
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return MessageTypeVoice
	default:
		return MessageTypeDoc
	}
}

// normalizeMimeType drops parameters such as "; charset=utf-8".
func normalizeMimeType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(v); err == nil {
		return parsed
	}
	return v
}
