package leadtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	cases := map[string]int{
		"In Stock":               0,
		"in stock":               0,
		"1 week":                 1,
		"2-4 weeks if nil stock": 4,
		"8+ WEEKS":               8,
		"12 days if nil stock":   -1,
		"":                       -1,
	}
	for label, want := range cases {
		assert.Equal(t, want, Index(label), label)
	}
}

func TestAggregateSlowestWins(t *testing.T) {
	got := Aggregate([]string{"In Stock", "4-6 weeks", "1-2 weeks"})
	assert.Equal(t, "4-6 weeks", got)
}

func TestAggregateOrderIndependentWinner(t *testing.T) {
	a := Aggregate([]string{"2-3 weeks", "6-8 weeks ex factory", "1 week"})
	b := Aggregate([]string{"1 week", "6-8 weeks ex factory", "2-3 weeks"})
	assert.Equal(t, "6-8 weeks ex factory", a)
	assert.Equal(t, a, b)
}

func TestAggregateTieKeepsFirst(t *testing.T) {
	got := Aggregate([]string{"2-4 weeks (Straub)", "2-4 weeks if nil stock"})
	assert.Equal(t, "2-4 weeks (Straub)", got)
}

func TestAggregateUnmatchedOnlyWhenNothingSelected(t *testing.T) {
	assert.Equal(t, "12 days if nil stock", Aggregate([]string{"12 days if nil stock"}))
	assert.Equal(t, "12 days", Aggregate([]string{"12 days", "9 to 12 weeks"}))
	assert.Equal(t, "In Stock", Aggregate([]string{"12 days", "In Stock"}))
	assert.Equal(t, "In Stock", Aggregate([]string{"In Stock", "12 days"}))
}

func TestAggregateSkipsBlank(t *testing.T) {
	assert.Equal(t, "", Aggregate(nil))
	assert.Equal(t, "", Aggregate([]string{"", "   "}))
	assert.Equal(t, "1 week", Aggregate([]string{"", "1 week", " "}))
}

func TestAggregateKeepsLabelAsGiven(t *testing.T) {
	assert.Equal(t, " 4-6 weeks ", Aggregate([]string{"1 week", " 4-6 weeks "}))
	assert.Equal(t, "  custom order", Aggregate([]string{"  custom order", ""}))
}

func TestIsLong(t *testing.T) {
	assert.False(t, IsLong("3-4 weeks"))
	assert.True(t, IsLong("4-6 weeks"))
	assert.True(t, IsLong("8+ weeks"))
	assert.False(t, IsLong("custom"))
}
