package artifact

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultContentType — тип содержимого, если определить его не удалось.
const DefaultContentType = "application/octet-stream"

// sniffLen — сколько байт читается для определения типа по содержимому.
const sniffLen = 512

// ResolveContentType определяет тип содержимого artifact.
//
// Порядок: записанный при загрузке тип, расширение файла, сигнатура
// первых байт, DefaultContentType.
func ResolveContentType(recorded, filename string, head []byte) string {
	if ct := strings.TrimSpace(recorded); ct != "" {
		return ct
	}
	if ext := filepath.Ext(filename); ext != "" {
		if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
			return ct
		}
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return DefaultContentType
}
