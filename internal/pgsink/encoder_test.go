package pgsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PgLogPump/internal/columns"
	"PgLogPump/internal/models"
)

func TestEncodeRow_ColumnOrder(t *testing.T) {
	reg, err := columns.NewRegistry(
		columns.Column{Name: "lvl", Writer: columns.Level(false).WithOrder(2)},
		columns.Column{Name: "tpl", Writer: columns.MessageTemplate().WithOrder(1)},
		columns.Column{Name: "exc", Writer: columns.Exception().WithOrder(3)},
	)
	require.NoError(t, err)

	ev := testEvent("hello")
	row, err := EncodeRow(&ev, reg.InsertColumns(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"hello", 2, nil}, row)
}

func TestEncodeInsertArgs(t *testing.T) {
	reg, err := columns.NewRegistry(
		columns.Column{Name: `"User Name"`, Writer: columns.SingleProperty("User", columns.TypeText, columns.WriteToString, "l")},
		columns.Column{Name: "message", Writer: columns.RenderedMessage()},
	)
	require.NoError(t, err)

	ev := testEvent("{User} signed in")
	ev.Properties = map[string]models.PropertyValue{"User": models.ScalarValue{Value: "ann"}}
	other := testEvent("anonymous")

	args, err := EncodeInsertArgs([]models.LogEvent{ev, other}, reg.InsertColumns(), nil)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "ann", args[0]["User_Name"])
	assert.Equal(t, `"ann" signed in`, args[0]["message"])
	assert.Nil(t, args[1]["User_Name"])
}

func TestEncodeCopyRows(t *testing.T) {
	rows, err := EncodeCopyRows([]models.LogEvent{testEvent("a"), testEvent("b")}, columns.DefaultRegistry().InsertColumns(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 6)
	assert.Equal(t, "a", rows[0][0])
	assert.Equal(t, "b", rows[1][1])
}
