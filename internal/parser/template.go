package parser

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/maypok86/otter"

	"PgLogPump/internal/models"
)

// Token - фрагмент шаблона сообщения: либо текст, либо ссылка на свойство
type Token struct {
	Text string // для текстовых токенов - текст без экранирования; для свойств - исходный "{...}"

	IsProperty   bool
	Name         string
	Destructure  byte // '@', '$' или 0
	Format       string
	Alignment    int
	HasAlignment bool
}

// Ограничения кэша шаблонов. Сообщения из @m уникальны, без вытеснения кэш растёт бесконечно.
const (
	templateCacheSize    = 1000
	maxCachedTemplateLen = 1024

	// maxAlignment - больше не выравниваем, иначе "{X,1000000000}" из входной строки съест память
	maxAlignment = 1024
)

var templateCache = newTemplateCache(templateCacheSize)

func newTemplateCache(size int) otter.Cache[string, []Token] {
	cache, err := otter.MustBuilder[string, []Token](size).
		Cost(func(_ string, _ []Token) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("parser: failed to create template cache: " + err.Error())
	}
	return cache
}

// ParseTemplate разбирает шаблон вида "User {Name} logged in {@Session} at {Time:15:04}".
// "{{" и "}}" - экранированные скобки. Некорректный токен остаётся текстом.
func ParseTemplate(template string) []Token {
	if cached, ok := templateCache.Get(template); ok {
		return cached
	}
	tokens := parseTemplate(template)
	if len(template) <= maxCachedTemplateLen {
		templateCache.Set(template, tokens)
	}
	return tokens
}

func parseTemplate(template string) []Token {
	var tokens []Token
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			text.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			text.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				text.WriteString(template[i:])
				i = len(template)
				continue
			}
			raw := template[i : i+end+2]
			tok, ok := parsePropertyToken(raw)
			if !ok {
				text.WriteString(raw)
			} else {
				flushText()
				tokens = append(tokens, tok)
			}
			i += end + 1
		default:
			text.WriteByte(c)
		}
	}
	flushText()
	return tokens
}

// parsePropertyToken разбирает "{[@$]Name[,alignment][:format]}"
func parsePropertyToken(raw string) (Token, bool) {
	body := raw[1 : len(raw)-1]
	tok := Token{Text: raw, IsProperty: true}

	if body != "" && (body[0] == '@' || body[0] == '$') {
		tok.Destructure = body[0]
		body = body[1:]
	}

	if i := strings.IndexByte(body, ':'); i >= 0 {
		tok.Format = body[i+1:]
		body = body[:i]
	}
	if i := strings.IndexByte(body, ','); i >= 0 {
		n, err := strconv.Atoi(body[i+1:])
		if err != nil {
			return Token{}, false
		}
		if n > maxAlignment {
			n = maxAlignment
		} else if n < -maxAlignment {
			n = -maxAlignment
		}
		tok.Alignment = n
		tok.HasAlignment = true
		body = body[:i]
	}

	if !isValidPropertyName(body) {
		return Token{}, false
	}
	tok.Name = body
	return tok, true
}

// isValidPropertyName - буквы и цифры любого алфавита и "_"
func isValidPropertyName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// Render подставляет свойства в шаблон. Отсутствующее свойство оставляет токен как есть.
func Render(template string, props map[string]models.PropertyValue, fp FormatProvider) string {
	var sb strings.Builder
	for _, tok := range ParseTemplate(template) {
		if !tok.IsProperty {
			sb.WriteString(tok.Text)
			continue
		}
		value, ok := props[tok.Name]
		if !ok {
			sb.WriteString(tok.Text)
			continue
		}
		rendered := FormatValue(value, tok.Format, fp)
		if tok.HasAlignment {
			rendered = align(rendered, tok.Alignment)
		}
		sb.WriteString(rendered)
	}
	return sb.String()
}

// EscapeTemplate превращает готовый текст в шаблон без свойств
func EscapeTemplate(text string) string {
	text = strings.ReplaceAll(text, "{", "{{")
	return strings.ReplaceAll(text, "}", "}}")
}

func align(s string, width int) string {
	n := len([]rune(s))
	if width >= 0 {
		if n >= width {
			return s
		}
		return strings.Repeat(" ", width-n) + s
	}
	width = -width
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
