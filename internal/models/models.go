package models

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Level - уровень важности события, упорядоченное перечисление
type Level int

const (
	LevelVerbose Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelFatal
)

var levelNames = [...]string{"Verbose", "Debug", "Information", "Warning", "Error", "Fatal"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return strconv.Itoa(int(l))
}

// ParseLevel понимает полные имена уровней и распространённые сокращения (info, warn, trace…).
// Пустая строка означает Information - так принято в CLEF.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace", "vrb":
		return LevelVerbose, true
	case "debug", "dbg":
		return LevelDebug, true
	case "", "information", "info", "inf":
		return LevelInformation, true
	case "warning", "warn", "wrn":
		return LevelWarning, true
	case "error", "err", "eror":
		return LevelError, true
	case "fatal", "ftl", "critical":
		return LevelFatal, true
	}
	return LevelInformation, false
}

// PropertyValue - значение свойства события: скаляр, последовательность, структура или словарь
type PropertyValue interface {
	propertyValue()
}

// ScalarValue - примитивное значение (строка, число, bool, время, перечисление, nil)
type ScalarValue struct {
	Value any
}

// SequenceValue - упорядоченный список значений
type SequenceValue struct {
	Elements []PropertyValue
}

// StructureValue - объект с именованными полями и необязательным тегом типа
type StructureValue struct {
	TypeTag    string
	Properties []Property
}

// DictionaryValue - словарь со скалярными ключами
type DictionaryValue struct {
	Elements []DictionaryEntry
}

type DictionaryEntry struct {
	Key   ScalarValue
	Value PropertyValue
}

type Property struct {
	Name  string
	Value PropertyValue
}

func (ScalarValue) propertyValue()     {}
func (SequenceValue) propertyValue()   {}
func (StructureValue) propertyValue()  {}
func (DictionaryValue) propertyValue() {}

// LogEvent - структурированное событие лога, которое sink превращает в строку таблицы.
// Отрендеренное сообщение не хранится: его строит шаблон MessageTemplate + Properties.
type LogEvent struct {
	Timestamp       time.Time
	Level           Level
	Exception       error
	MessageTemplate string
	Properties      map[string]PropertyValue
}

// Property возвращает значение свойства по имени
func (e *LogEvent) Property(name string) (PropertyValue, bool) {
	if e.Properties == nil {
		return nil, false
	}
	v, ok := e.Properties[name]
	return v, ok
}

// PropertyNames возвращает имена свойств в алфавитном порядке, чтобы JSON был детерминированным
func (e *LogEvent) PropertyNames() []string {
	names := make([]string, 0, len(e.Properties))
	for name := range e.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExceptionText - полное текстовое представление ошибки: сообщение и стек, если он есть
func ExceptionText(err error) string {
	return fmt.Sprintf("%+v", err)
}

// TextException - исключение, пришедшее извне уже в виде текста (например, @x в CLEF).
// Error() отдаёт первую строку, %+v - весь текст без изменений.
type TextException struct {
	Text string
}

func (e *TextException) Error() string {
	if i := strings.IndexByte(e.Text, '\n'); i >= 0 {
		return strings.TrimRight(e.Text[:i], "\r")
	}
	return e.Text
}

func (e *TextException) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, e.Text)
		return
	}
	io.WriteString(s, e.Error())
}
