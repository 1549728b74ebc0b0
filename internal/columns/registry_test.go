package columns

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestNewRegistry_DefaultsWhenEmpty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"message", "message_template", "level", "raise_date", "exception", "properties"}, names(reg.Columns()))
	assert.Equal(t, KindLogEvent, reg.Columns()[5].Writer.Kind)
	assert.Equal(t, 6, reg.Len())
}

func TestNewRegistry_StripsQuotes(t *testing.T) {
	reg, err := NewRegistry(
		Column{Name: `"Level"`, Writer: Level(true)},
		Column{Name: ` message `, Writer: RenderedMessage()},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Level", "message"}, names(reg.Columns()))
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Column{Name: `"Col"`, Writer: RenderedMessage()},
		Column{Name: "Col", Writer: MessageTemplate()},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateColumn))
}

func TestNewRegistry_RejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(Column{Name: `""`, Writer: RenderedMessage()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyColumnName))
}

func TestNewRegistry_OrderAppliedWhenAllOrdered(t *testing.T) {
	reg, err := NewRegistry(
		Column{Name: "c", Writer: RenderedMessage().WithOrder(2)},
		Column{Name: "a", Writer: MessageTemplate().WithOrder(0)},
		Column{Name: "b", Writer: Level(false).WithOrder(1)},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(reg.Columns()))
}

func TestNewRegistry_EqualOrderKeepsInsertionOrder(t *testing.T) {
	reg, err := NewRegistry(
		Column{Name: "z", Writer: RenderedMessage().WithOrder(1)},
		Column{Name: "x", Writer: MessageTemplate().WithOrder(0)},
		Column{Name: "y", Writer: Level(false).WithOrder(1)},
		Column{Name: "w", Writer: Timestamp().WithOrder(1)},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z", "y", "w"}, names(reg.Columns()))
}

func TestNewRegistry_OrderIgnoredWhenPartial(t *testing.T) {
	reg, err := NewRegistry(
		Column{Name: "c", Writer: RenderedMessage().WithOrder(2)},
		Column{Name: "a", Writer: MessageTemplate()},
		Column{Name: "b", Writer: Level(false).WithOrder(1)},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, names(reg.Columns()))
}

func TestNewRegistry_DoesNotMutateInput(t *testing.T) {
	in := []Column{
		{Name: `"b"`, Writer: RenderedMessage().WithOrder(1)},
		{Name: `"a"`, Writer: MessageTemplate().WithOrder(0)},
	}
	_, err := NewRegistry(in...)
	require.NoError(t, err)
	assert.Equal(t, `"b"`, in[0].Name)
	assert.Equal(t, `"a"`, in[1].Name)
}

func TestRegistry_InsertColumnsSkipIdentity(t *testing.T) {
	reg, err := NewRegistry(
		Column{Name: "id", Writer: Identity()},
		Column{Name: "message", Writer: RenderedMessage()},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "message"}, names(reg.Columns()))
	assert.Equal(t, []string{"message"}, names(reg.InsertColumns()))
}

func TestRegistry_ColumnsReturnsCopy(t *testing.T) {
	reg := DefaultRegistry()
	cols := reg.Columns()
	cols[0].Name = "changed"
	assert.Equal(t, "message", reg.Columns()[0].Name)
}
