package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", a.String())
	assert.Equal(t, 1, a.Sign())

	_, err = ParseAmount("")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
	_, err = ParseAmount("1e24")
	require.Error(t, err)

	neg, err := ParseAmount("-3")
	require.NoError(t, err)
	assert.Equal(t, -1, neg.Sign())
}

func TestAmountPercentTruncates(t *testing.T) {
	prize, err := ParseAmount("1000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "20000000000000000000000", prize.Percent(2).String())

	assert.Equal(t, "0", NewAmount(49).Percent(2).String())
	assert.Equal(t, "1", NewAmount(99).Percent(2).String())
	assert.Equal(t, "99", NewAmount(99).Percent(100).String())
	assert.Equal(t, "0", NewAmount(99).Percent(0).String())
}

func TestAmountJSON(t *testing.T) {
	type wrapper struct {
		Amount Amount `json:"amount"`
	}
	big, err := ParseAmount("123456789012345678901234567890")
	require.NoError(t, err)

	data, err := json.Marshal(wrapper{Amount: big})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"123456789012345678901234567890"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 0, out.Amount.Cmp(big))

	require.NoError(t, json.Unmarshal([]byte(`{"amount":42}`), &out))
	assert.Equal(t, "42", out.Amount.String())

	require.Error(t, json.Unmarshal([]byte(`{"amount":"4.2"}`), &out))
}

func TestSumAmounts(t *testing.T) {
	assert.Equal(t, "0", SumAmounts(nil).String())
	sum := SumAmounts([]Amount{NewAmount(1), NewAmount(2), NewAmount(3)})
	assert.Equal(t, "6", sum.String())
	assert.Equal(t, "3", sum.Sub(NewAmount(3)).String())
	assert.Equal(t, "9", sum.Add(NewAmount(3)).String())
}
