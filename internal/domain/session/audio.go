package session

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

// MaxAudioSize is the largest file the transcription endpoint accepts.
const MaxAudioSize = 25 * 1024 * 1024

var (
	ErrAudioTooLarge    = errors.New("audio file exceeds 25 MB")
	ErrUnsupportedAudio = errors.New("unsupported audio format")
)

// audioExtensions are the container formats the transcriber understands.
var audioExtensions = map[string]bool{
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".oga":  true,
	".ogg":  true,
	".wav":  true,
	".webm": true,
}

// ValidateAudio checks an upload before it is sent for transcription. The
// file extension decides the format; a declared content type must be audio
// or video when present, since browsers record into video/webm.
func ValidateAudio(filename, contentType string, size int64) error {
	if size > MaxAudioSize {
		return ErrAudioTooLarge
	}
	if !audioExtensions[strings.ToLower(filepath.Ext(filename))] {
		return ErrUnsupportedAudio
	}
	if contentType == "" || contentType == "application/octet-stream" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ErrUnsupportedAudio
	}
	if !strings.HasPrefix(mediaType, "audio/") && !strings.HasPrefix(mediaType, "video/") {
		return ErrUnsupportedAudio
	}
	return nil
}
