package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataJSONKeepsInsertionOrder(t *testing.T) {
	meta := Metadata{}.
		With("zone", "eu").
		With("ip", "10.0.0.1").
		With("attempt", 2)

	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.JSONEq(t, `{"zone":"eu","ip":"10.0.0.1","attempt":2}`, string(raw))
	require.Equal(t, `{"zone":"eu","ip":"10.0.0.1","attempt":2}`, string(raw))

	var decoded Metadata
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 3)
	require.Equal(t, "zone", decoded[0].Key)
	require.Equal(t, "ip", decoded[1].Key)
	require.Equal(t, "attempt", decoded[2].Key)
}

func TestMetadataWithReplacesInPlace(t *testing.T) {
	base := Metadata{}.With("a", 1).With("b", 2)
	updated := base.With("a", 3)

	v, ok := updated.Get("a")
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.Equal(t, "a", updated[0].Key)

	orig, _ := base.Get("a")
	require.Equal(t, 1, orig, "With must not mutate the receiver")
}

func TestMetadataUnmarshalRejectsArrays(t *testing.T) {
	var m Metadata
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &m))
}
