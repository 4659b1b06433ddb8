package order

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderJSONMoney(t *testing.T) {
	o := Order{
		ID:     11,
		Status: StatusPaid,
		Total:  decimal.NewFromInt(398),
		Items:  []OrderItem{{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("199.5")}},
	}

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "398.00", got["total"])
	assert.Equal(t, float64(11), got["id"])
	assert.Equal(t, "paid", got["status"])

	items := got["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "199.50", items[0].(map[string]any)["price"])

	var back Order
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Total.Equal(o.Total))
}
