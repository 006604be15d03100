package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashID(t *testing.T) {
	a := HashID("1504692")
	b := HashID("1504692")
	c := HashID("1504693")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	// sha256("1504692"), precomputed. The hash is the stored identity,
	// so it must never drift between releases.
	assert.Equal(t, "9736bfed3ffe14531d6943b3ac0f800135727e5215c331a2d47fcdf4fd310038", a)
}

func TestHasGroup(t *testing.T) {
	assert.False(t, (&User{Hash: "h"}).HasGroup())
	assert.True(t, (&User{Hash: "h", Group: "TXM15S1"}).HasGroup())
}
