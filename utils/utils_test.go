package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.13, Round2(10.125))
	assert.Equal(t, -0.5, Round2(-0.499))
	assert.Equal(t, 3.0, Round2(3))
}

func TestProRata(t *testing.T) {
	assert.Equal(t, []float64{33.33, 33.33, 33.34}, ProRata(100, []float64{1, 1, 1}, 3))
	assert.Equal(t, []float64{17.5, 52.5}, ProRata(70, []float64{25, 75}, 100))
	assert.Equal(t, []float64{9.99}, ProRata(9.99, []float64{5}, 5))
	assert.Equal(t, []float64{0.32, 0.36, 0.32}, ProRata(1, []float64{1, 1.1, 1}, 3.1))
}

func TestProRataNeverNegative(t *testing.T) {
	assert.Equal(t, []float64{0, 0.01, 0}, ProRata(0.01, []float64{1, 1, 0}, 2))
	assert.Equal(t, []float64{0, 0, 0}, ProRata(0, []float64{3, 1}, 4))

	shares := ProRata(0.05, []float64{1, 1, 1, 1, 1, 1, 0}, 6)
	var sum float64
	for _, s := range shares {
		assert.GreaterOrEqual(t, s, 0.0)
		sum += s
	}
	assert.InDelta(t, 0.05, sum, 1e-9)
	assert.Zero(t, shares[6])
}

type patchInput struct {
	Name     *string  `json:"name"`
	Note     string   `json:"note"`
	Price    *float64 `json:"price"`
	Labels   []string `json:"labels"`
	OwnerID  *uint    `json:"owner_id" patch:"nullable"`
	Count    *int     `json:"count"`
	Internal *string  `json:"-"`
	Untagged *string
}

func TestNormalize(t *testing.T) {
	name := "  Amp  "
	price := 12.345
	in := patchInput{Name: &name, Note: "\tnote\n", Price: &price, Labels: []string{" a ", "", "  ", "b"}}
	Normalize(&in)

	assert.Equal(t, "Amp", *in.Name)
	assert.Equal(t, "note", in.Note)
	assert.Equal(t, 12.35, *in.Price)
	assert.Equal(t, []string{"a", "b"}, in.Labels)
	assert.Nil(t, in.OwnerID)

	// non-pointers are ignored
	Normalize(in)
}

func TestColumnUpdates(t *testing.T) {
	name := "Amp"
	zero := uint(0)
	count := 0
	hidden := "x"
	vals := ColumnUpdates(&patchInput{Name: &name, OwnerID: &zero, Count: &count, Internal: &hidden, Untagged: &hidden})
	assert.Equal(t, map[string]any{"name": "Amp", "owner_id": nil, "count": 0}, vals)

	owner := uint(7)
	vals = ColumnUpdates(&patchInput{OwnerID: &owner})
	assert.Equal(t, map[string]any{"owner_id": uint(7)}, vals)

	assert.Empty(t, ColumnUpdates(patchInput{}))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, s := range []string{"", "0", "-3", "abc"} {
		_, err := ParseID(s)
		assert.Error(t, err, s)
	}

	ids, err := ParseIDList("1, 2,,3")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)
	_, err = ParseIDList("1,x")
	assert.Error(t, err)
}
