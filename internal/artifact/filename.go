package artifact

import "strings"

const (
	// MaxFilenameLength — предельная длина имени файла после очистки.
	MaxFilenameLength = 180

	// DefaultFilename подставляется, если после очистки имя пустое.
	DefaultFilename = "artifact"
)

// SanitizeFilename приводит имя, присланное воркером, к безопасному виду.
//
// Разделители путей и управляющие символы заменяются на '_', прочие
// символы вне [A-Za-z0-9._ -] удаляются, длина ограничена MaxFilenameLength.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case isAllowedFilenameRune(r):
			b.WriteRune(r)
		}
	}

	clean := b.String()
	if len(clean) > MaxFilenameLength {
		clean = clean[:MaxFilenameLength]
	}
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return DefaultFilename
	}
	return clean
}

func isAllowedFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ' ', r == '-':
		return true
	}
	return false
}
