package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoders for DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadSize is the largest accepted upload.
const DefaultMaxUploadSize int64 = 50 << 20

var allowedMIME = setOf(
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/zip",
	"application/x-rar-compressed",
	"audio/mpeg",
	"audio/wav",
	"video/mp4",
	"video/avi",
)

var allowedExt = setOf(
	"jpg", "jpeg", "png", "gif", "webp",
	"pdf", "txt", "doc", "docx", "xls", "xlsx",
	"zip", "rar", "mp3", "wav", "mp4", "avi",
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// oleMagic prefixes legacy Office documents (.doc, .xls).
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// FileValidator checks uploads against size, extension and sniffed content type.
type FileValidator struct {
	MaxSize int64
}

// Validate returns every problem found, or nil. r is rewound before returning.
func (v FileValidator) Validate(name string, size int64, r io.ReadSeeker) (mime string, problems []string) {
	limit := v.MaxSize
	if limit <= 0 {
		limit = DefaultMaxUploadSize
	}
	if size <= 0 {
		return "", []string{"empty file"}
	}
	if size > limit {
		problems = append(problems, fmt.Sprintf("file too large, max %d MB", limit>>20))
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !allowedExt[ext] {
		problems = append(problems, fmt.Sprintf("extension not allowed: %q", ext))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", append(problems, "unreadable file")
	}
	head = head[:n]
	mime = sniff(head, ext)
	if !allowedMIME[mime] {
		problems = append(problems, "file type not allowed: "+mime)
	}

	if strings.HasPrefix(mime, "image/") && mime != "image/webp" {
		if _, err := r.Seek(0, io.SeekStart); err == nil {
			if _, _, err := image.DecodeConfig(r); err != nil {
				problems = append(problems, "corrupted image")
			}
		}
	}
	_, _ = r.Seek(0, io.SeekStart)
	return mime, problems
}

// sniff detects the content type from the leading bytes. Formats the standard
// detector reports as generic are refined by extension when the magic agrees.
func sniff(head []byte, ext string) string {
	mime := http.DetectContentType(head)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "audio/wave":
		return "audio/wav"
	case "application/zip":
		switch ext {
		case "docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case "xlsx":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
	case "application/octet-stream":
		if bytes.HasPrefix(head, oleMagic) {
			switch ext {
			case "doc":
				return "application/msword"
			case "xls":
				return "application/vnd.ms-excel"
			}
		}
	}
	return mime
}
