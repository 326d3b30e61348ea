package queryservice

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/chainindex/internal/kvstore"
)

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
		wire string
	}{
		{
			name: "account",
			key:  Key{Kind: kvstore.KindAccountID, Identifier: bytes.Repeat([]byte{0xaa}, 32)},
			wire: `{"AccountId":"0x` + repeatHex("aa", 32) + `"}`,
		},
		{
			name: "proposal index",
			key:  Key{Kind: kvstore.KindProposalIndex, Identifier: []byte{0x00, 0x00, 0x00, 0x2a}},
			wire: `{"ProposalIndex":42}`,
		},
		{
			name: "variant",
			key:  Key{Kind: kvstore.KindVariant, Identifier: []byte{5, 2}},
			wire: `{"Variant":[5,2]}`,
		},
		{
			name: "tip hash",
			key:  Key{Kind: kvstore.KindTipHash, Identifier: bytes.Repeat([]byte{0x01}, 32)},
			wire: `{"TipHash":"0x` + repeatHex("01", 32) + `"}`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			marshaled, err := json.Marshal(tc.key)
			require.NoError(t, err)
			require.JSONEq(t, tc.wire, string(marshaled))

			var parsed Key
			require.NoError(t, json.Unmarshal([]byte(tc.wire), &parsed))
			require.Equal(t, tc.key, parsed)
		})
	}
}

func TestKeyUnmarshalRejectsBadShapes(t *testing.T) {
	t.Parallel()

	bad := []string{
		`"AccountId"`,                      // not an object
		`{}`,                               // no entry
		`{"AccountId":"0xaa","ParaId":1}`,  // two entries
		`{"NotAKind":1}`,                   // unknown kind
		`{"AccountId":"0xaabb"}`,           // wrong hash length
		`{"AccountId":"0xzz"}`,             // not hex
		`{"ProposalIndex":"forty-two"}`,    // number expected
		`{"Variant":[1]}`,                  // pair expected
		`{"Variant":"0x0502"}`,             // pair expected
	}
	for _, wire := range bad {
		var k Key
		require.Error(t, json.Unmarshal([]byte(wire), &k), "input %s", wire)
	}
}

func TestRequestParsing(t *testing.T) {
	t.Parallel()

	var req request
	require.NoError(t, json.Unmarshal([]byte(`{"type":"GetEvents","key":{"EraIndex":9}}`), &req))
	require.Equal(t, requestGetEvents, req.Type)
	require.NotNil(t, req.Key)
	require.Equal(t, kvstore.KindEraIndex, req.Key.Kind)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x09}, req.Key.Identifier)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"Status"}`), &req))
	require.Equal(t, requestStatus, req.Type)
}

func repeatHex(pair string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pair
	}
	return out
}
