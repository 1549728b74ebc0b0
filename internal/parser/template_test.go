package parser

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PgLogPump/internal/models"
)

func TestParseTemplate_Tokens(t *testing.T) {
	tokens := ParseTemplate("User {@User} took {Elapsed,8:%.2f} ms")
	require.Len(t, tokens, 5)

	assert.Equal(t, "User ", tokens[0].Text)
	assert.True(t, tokens[1].IsProperty)
	assert.Equal(t, "User", tokens[1].Name)
	assert.Equal(t, byte('@'), tokens[1].Destructure)

	assert.Equal(t, "Elapsed", tokens[3].Name)
	assert.True(t, tokens[3].HasAlignment)
	assert.Equal(t, 8, tokens[3].Alignment)
	assert.Equal(t, "%.2f", tokens[3].Format)
	assert.Equal(t, " ms", tokens[4].Text)
}

func TestParseTemplate_InvalidTokensStayText(t *testing.T) {
	tokens := ParseTemplate("a {not valid} b {unclosed")
	require.Len(t, tokens, 1)
	assert.Equal(t, "a {not valid} b {unclosed", tokens[0].Text)
}

func TestParseTemplate_CacheIsBounded(t *testing.T) {
	// как строки с одним @m: каждый шаблон уникален
	for i := 0; i < 20*templateCacheSize; i++ {
		tokens := ParseTemplate(EscapeTemplate("request " + strconv.Itoa(i) + " {done}"))
		require.Len(t, tokens, 1)
	}
	require.Eventually(t, func() bool { return templateCache.Size() <= templateCacheSize },
		2*time.Second, 10*time.Millisecond)

	long := strings.Repeat("x", maxCachedTemplateLen+1) + " {Name}"
	require.Len(t, ParseTemplate(long), 2)
	_, cached := templateCache.Get(long)
	assert.False(t, cached)
}

func TestRender_UnicodePropertyNames(t *testing.T) {
	props := map[string]models.PropertyValue{
		"Пользователь": models.ScalarValue{Value: "иван"},
		"Счёт2":        models.ScalarValue{Value: int64(7)},
	}
	assert.Equal(t, `Вошёл "иван", счёт 7`, Render("Вошёл {Пользователь}, счёт {Счёт2}", props, nil))
	assert.Equal(t, "{a-b}", Render("{a-b}", props, nil))
}

func TestParseTemplate_AlignmentIsCapped(t *testing.T) {
	tokens := ParseTemplate("{X,1000000000}{Y,-1000000000}")
	require.Len(t, tokens, 2)
	assert.Equal(t, maxAlignment, tokens[0].Alignment)
	assert.Equal(t, -maxAlignment, tokens[1].Alignment)

	props := map[string]models.PropertyValue{"X": models.ScalarValue{Value: int64(1)}}
	assert.Len(t, Render("{X,1000000000}", props, nil), maxAlignment)
}

func TestRender(t *testing.T) {
	props := map[string]models.PropertyValue{
		"Name":  models.ScalarValue{Value: "bob"},
		"Count": models.ScalarValue{Value: int64(3)},
	}

	cases := []struct {
		template string
		want     string
	}{
		{"Hello {Name}", `Hello "bob"`},
		{"Hello {Name:l}", "Hello bob"},
		{"{Count} items", "3 items"},
		{"[{Count,4}]", "[   3]"},
		{"[{Count,-4}]", "[3   ]"},
		{"{Missing} stays", "{Missing} stays"},
		{"{{literal}} {Count}", "{literal} 3"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Render(c.template, props, nil), c.template)
	}
}

func TestEscapeTemplate(t *testing.T) {
	escaped := EscapeTemplate("map{a}")
	assert.Equal(t, "map{{a}}", escaped)
	assert.Equal(t, "map{a}", Render(escaped, nil, nil))
}

func TestFormatValue_Composite(t *testing.T) {
	seq := models.SequenceValue{Elements: []models.PropertyValue{
		models.ScalarValue{Value: int64(1)}, models.ScalarValue{Value: "x"},
	}}
	assert.Equal(t, `[1, "x"]`, FormatValue(seq, "", nil))

	st := models.StructureValue{TypeTag: "Point", Properties: []models.Property{
		{Name: "X", Value: models.ScalarValue{Value: int64(1)}},
		{Name: "Y", Value: models.ScalarValue{Value: 2.5}},
	}}
	assert.Equal(t, "Point { X: 1, Y: 2.5 }", FormatValue(st, "", nil))

	dict := models.DictionaryValue{Elements: []models.DictionaryEntry{
		{Key: models.ScalarValue{Value: "k"}, Value: models.ScalarValue{Value: true}},
	}}
	assert.Equal(t, `[("k": true)]`, FormatValue(dict, "", nil))
}

func TestFormatScalar(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "null", FormatScalar(nil, "", nil))
	assert.Equal(t, `"say \"hi\""`, FormatScalar(`say "hi"`, "", nil))
	assert.Equal(t, "2024-01-02T03:04:05Z", FormatScalar(ts, "", nil))
	assert.Equal(t, "2024-01-02", FormatScalar(ts, "2006-01-02", nil))
	assert.Equal(t, "0.1", FormatScalar(0.1, "", nil))
	assert.Equal(t, "0007", FormatScalar(7, "%04d", nil))
}
