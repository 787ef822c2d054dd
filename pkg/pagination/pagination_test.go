package pagination

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.FixedZone("IST", 19800)),
		ID:        uuid.New(),
	}
	token := EncodeCursor(in)
	require.False(t, strings.ContainsAny(token, "+/="), token)

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, time.UTC, out.CreatedAt.Location())
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, got)

	for _, bad := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano) + "|nope")),
	} {
		_, err := ParseCursor(bad)
		require.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrim(t *testing.T) {
	key := func(n int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(n)})} }

	rows, next := Trim([]int{1, 2, 3}, 3, key)
	require.Equal(t, []int{1, 2, 3}, rows)
	require.Nil(t, next)

	rows, next = Trim([]int{1, 2, 3, 4}, 3, key)
	require.Equal(t, []int{1, 2, 3}, rows)
	require.NotNil(t, next)
	require.Equal(t, key(3).ID, next.ID)
}
