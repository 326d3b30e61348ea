package kvstore

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, kind := range allKinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			identifier := make([]byte, kind.Len())
			for i := range identifier {
				identifier[i] = byte(i*7 + 3)
			}

			key := EncodeKey(identifier, 123456, 42)
			require.Len(t, key, kind.Len()+8)

			gotID, gotBlock, gotIndex, err := DecodeKey(key, kind.Len())
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(identifier, gotID))
			require.Equal(t, uint32(123456), gotBlock)
			require.Equal(t, uint32(42), gotIndex)
		})
	}
}

func TestDecodeKeyWrongLength(t *testing.T) {
	t.Parallel()

	key := EncodeKey(make([]byte, 32), 1, 1)
	_, _, _, err := DecodeKey(key, 4)
	require.Error(t, err)
}

func TestEncodeKeyInjective(t *testing.T) {
	t.Parallel()

	seen := map[string]string{}
	for _, idByte := range []byte{0x00, 0x01, 0xff} {
		for _, block := range []uint32{0, 1, 256, 1 << 24} {
			for _, index := range []uint32{0, 1, 255} {
				identifier := bytes.Repeat([]byte{idByte}, 4)
				key := string(EncodeKey(identifier, block, index))
				triple := fmt.Sprintf("%x/%d/%d", identifier, block, index)
				prev, dup := seen[key]
				require.False(t, dup, "key collision between %s and %s", prev, triple)
				seen[key] = triple
			}
		}
	}
}

func TestKeyOrderCoincidesWithNumericOrder(t *testing.T) {
	t.Parallel()

	identifier := bytes.Repeat([]byte{0xab}, 32)
	locators := [][2]uint32{
		{0, 0}, {0, 1}, {0, 300}, {1, 0}, {255, 0}, {256, 0},
		{256, 256}, {1 << 16, 0}, {1<<31 + 5, 2},
	}

	keys := make([][]byte, len(locators))
	for i, l := range locators {
		keys[i] = EncodeKey(identifier, l[0], l[1])
	}

	numericallySorted := sort.SliceIsSorted(locators, func(i, j int) bool {
		if locators[i][0] != locators[j][0] {
			return locators[i][0] < locators[j][0]
		}
		return locators[i][1] < locators[j][1]
	})
	require.True(t, numericallySorted)

	byteSorted := sort.SliceIsSorted(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	require.True(t, byteSorted)
}

func TestUpperBoundIsPastEverySuffix(t *testing.T) {
	t.Parallel()

	identifier := bytes.Repeat([]byte{0x10}, 4)
	bound := upperBound(identifier)

	maxKey := EncodeKey(identifier, ^uint32(0), ^uint32(0))
	require.True(t, bytes.Compare(maxKey, bound) <= 0)

	next := bytes.Repeat([]byte{0x10}, 4)
	next[3] = 0x11
	require.True(t, bytes.Compare(bound, EncodeKey(next, 0, 0)) < 0)
}
