package postgres

import (
	"testing"
	"time"

	"github.com/parleyhq/parley/errs"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Run("int64", func(t *testing.T) {
		want := Cursor[int64]{ID: "d1tstc0csl2ka0b8hce0", Value: 42}

		s, err := EncodeCursor(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		got, err := DecodeCursor[int64](s)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})

	t.Run("time", func(t *testing.T) {
		want := Cursor[time.Time]{
			ID:    "d1tstc0csl2ka0b8hce0",
			Value: time.Date(2025, time.March, 9, 12, 30, 0, 0, time.UTC),
		}

		s, err := EncodeCursor(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		got, err := DecodeCursor[time.Time](s)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if got.ID != want.ID || !got.Value.Equal(want.Value) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})
}

func TestDecodeCursor_invalid(t *testing.T) {
	for _, s := range []string{"", "0OIl", "not a cursor at all"} {
		_, err := DecodeCursor[int64](s)
		if errs.KindOf(err) != errs.KindInvalidArgument {
			t.Errorf("DecodeCursor(%q): got %v, want invalid argument", s, err)
		}
	}
}
