package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_QuantizeHalfUp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"positive tie rounds up", "1.005", "1.01"},
		{"negative tie rounds toward zero", "-1.005", "-1.00"},
		{"positive below tie rounds down", "1.004", "1.00"},
		{"positive above tie rounds up", "1.006", "1.01"},
		{"negative above tie rounds away", "-1.006", "-1.01"},
		{"negative below tie rounds toward zero", "-1.004", "-1.00"},
		{"already quantized", "12.34", "12.34"},
		{"zero", "0", "0.00"},
		{"sub-cent noise", "49.999999", "50.00"},
		{"extra precision from source", "-25.0000001", "-25.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Quantize().Display())
		})
	}
}

func TestMoney_EqualsIsQuantized(t *testing.T) {
	// Values that differ below the cent must compare equal.
	a := MustMoney("10.001")
	b := MustMoney("10.0049")
	assert.True(t, a.Equals(b))

	// A full cent apart must not.
	c := MustMoney("10.01")
	assert.False(t, a.Equals(c))
}

func TestMoney_SumOrderIndependent(t *testing.T) {
	values := []Money{
		MustMoney("0.1"),
		MustMoney("0.2"),
		MustMoney("-0.3"),
		MustMoney("1234.567"),
		MustMoney("-1234.567"),
	}

	forward := SumMoney(values)

	reversed := make([]Money, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		reversed = append(reversed, values[i])
	}
	backward := SumMoney(reversed)

	assert.True(t, forward.Equals(backward))
	assert.True(t, forward.IsZero())
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney("100.00")
	b := MustMoney("25.50")

	assert.Equal(t, "74.50", a.Sub(b).Display())
	assert.Equal(t, "125.50", a.Add(b).Display())
	assert.Equal(t, "-100.00", a.Neg().Display())
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(MustMoney("100.004")))
}

func TestNewMoneyFromString_Invalid(t *testing.T) {
	_, err := NewMoneyFromString("$1,234.56")
	assert.Error(t, err)
}
