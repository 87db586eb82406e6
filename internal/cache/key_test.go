package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{"abundance", "gbr", 3}, "abundance:gbr:v3"},
		{Key{"tracking", "a:b", 1}, "tracking:a%3Ab:v1"},
		{Key{"env", "ningaloo reef", 2}, "env:ningaloo+reef:v2"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())

			parsed, err := ParseKey(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.key, parsed)
		})
	}
}

func TestKeysDoNotCollide(t *testing.T) {
	a := Key{Namespace: "a:b", EntityID: "c", SchemaVersion: 1}
	b := Key{Namespace: "a", EntityID: "b:c", SchemaVersion: 1}
	assert.NotEqual(t, a.String(), b.String())

	v1 := Key{Namespace: "a", EntityID: "b", SchemaVersion: 1}
	v2 := Key{Namespace: "a", EntityID: "b", SchemaVersion: 2}
	assert.NotEqual(t, v1.String(), v2.String())
}

func TestKeyValidate(t *testing.T) {
	assert.NoError(t, Key{"a", "b", 1}.Validate())
	assert.ErrorIs(t, Key{"", "b", 1}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{"a", "", 1}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{"a", "b", 0}.Validate(), ErrInvalidKey)
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "a:b", "a:b:3", "a:b:vx", "a:b:c:v1", ":b:v1"} {
		_, err := ParseKey(s)
		assert.ErrorIs(t, err, ErrInvalidKey, s)
	}
}
