package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document — полуструктурированный JSON-документ (payload/result task).
//
// Хранилище не интерпретирует документ; смысл полей определяют
// обработчики конкретного TaskType.
type Document map[string]any

// Ключи payload, которые понимают обработчики anycard.
const (
	KeyAnycardID    = "anycardId"
	KeyCardNumber   = "cardNumber"
	KeySerialNumber = "serialNumber"
	KeyAnycardType  = "anycardType"
)

// Алиасы ключей: воркеры присылают и camelCase, и snake_case.
var (
	CardNumberKeys   = []string{KeyCardNumber, "card_number"}
	SerialNumberKeys = []string{KeySerialNumber, "serial_number"}
)

// Text возвращает значение первого непустого ключа из keys в виде строки.
//
// Числа и bool приводятся к тексту, объекты и массивы считаются пустыми.
// Пробелы по краям срезаются; пустая строка считается отсутствующей.
func (d Document) Text(keys ...string) string {
	if d == nil {
		return ""
	}
	for _, k := range keys {
		v, ok := d[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(scalarText(v)); s != "" {
			return s
		}
	}
	return ""
}

// NormalizeCardNumber приводит номер карты под ключами CardNumberKeys к
// строке без пробелов по краям. Так номер совпадает и с Text, и с
// BTRIM в уникальном индексе живых task. Объект или массив вместо
// номера — ошибка валидации.
func (d Document) NormalizeCardNumber() error {
	for _, k := range CardNumberKeys {
		v, ok := d[k]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			if s = scalarText(v); s == "" {
				return fmt.Errorf("%w: payload.%s must be a string or a number, got %T", ErrValidation, k, v)
			}
		}
		d[k] = strings.TrimSpace(s)
	}
	return nil
}

// Clone возвращает глубокую копию документа.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// DecodeDocument парсит JSON в Document.
//
// Числа сохраняются как json.Number, чтобы длинные номера карт не теряли
// точность. Пустой вход и JSON null дают nil.
func DecodeDocument(data []byte) (Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// EncodeDocument сериализует документ; nil превращается в {}.
func EncodeDocument(d Document) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return map[string]any(Document(x).Clone())
	case Document:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
