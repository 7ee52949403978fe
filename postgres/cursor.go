package postgres

import (
	"fmt"
	"slices"

	"github.com/btcsuite/btcutil/base58"
	"github.com/jackc/pgx/v5"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultPageSize = 25

type Cursor[T any] struct {
	ID string `msgpack:"i"`
	// Value is the ordering column value: updated_at for conversations,
	// seq for messages.
	Value T `msgpack:"v,omitempty"`
}

func EncodeCursor[T any](cursor Cursor[T]) (string, error) {
	b, err := msgpack.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("msgpack marshal cursor: %w", err)
	}

	return base58.Encode(b), nil
}

func DecodeCursor[T any](s string) (Cursor[T], error) {
	var c Cursor[T]

	b := base58.Decode(s)
	if len(b) == 0 {
		return c, errs.NewInvalidArgumentError("Cursor", "invalid cursor")
	}
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return c, errs.NewInvalidArgumentError("Cursor", "invalid cursor")
	}

	return c, nil
}

type PageArgs[T any] struct {
	First  *uint
	After  *Cursor[T]
	Last   *uint
	Before *Cursor[T]
}

func (args PageArgs[T]) IsBackwards() bool {
	return args.Last != nil || args.Before != nil
}

func ParsePageArgs[T any](in types.PageArgs) (PageArgs[T], error) {
	var out PageArgs[T]

	if in.After != nil {
		after, err := DecodeCursor[T](*in.After)
		if err != nil {
			return out, fmt.Errorf("decode after cursor: %w", err)
		}

		out.After = &after
	}

	if in.Before != nil {
		before, err := DecodeCursor[T](*in.Before)
		if err != nil {
			return out, fmt.Errorf("decode before cursor: %w", err)
		}

		out.Before = &before
	}

	out.First = in.First
	out.Last = in.Last

	return out, nil
}

// Listings run newest first: "after" pages toward older rows, "before" toward
// newer ones. The filters pair the ordering column with the id so rows
// sharing a value still page deterministically.
func addPageFilter[T any](query, table, column string, args pgx.NamedArgs, page PageArgs[T]) string {
	if page.After != nil {
		args["after_value"] = page.After.Value
		args["after_id"] = page.After.ID
		query += fmt.Sprintf(" AND (%[1]s.%[2]s, %[1]s.id) < (@after_value, @after_id)", table, column)
	}

	if page.Before != nil {
		args["before_value"] = page.Before.Value
		args["before_id"] = page.Before.ID
		query += fmt.Sprintf(" AND (%[1]s.%[2]s, %[1]s.id) > (@before_value, @before_id)", table, column)
	}

	return query
}

func addPageOrder[T any](query, table, column string, page PageArgs[T]) string {
	if page.IsBackwards() {
		return query + fmt.Sprintf(" ORDER BY %[1]s.%[2]s ASC, %[1]s.id ASC", table, column)
	}

	return query + fmt.Sprintf(" ORDER BY %[1]s.%[2]s DESC, %[1]s.id DESC", table, column)
}

// addPageLimit fetches one row beyond the page size so applyPageInfo can tell
// whether more rows remain.
func addPageLimit[T any](query string, args pgx.NamedArgs, page PageArgs[T]) string {
	size := or(page.First, defaultPageSize)
	if page.IsBackwards() {
		size = or(page.Last, defaultPageSize)
	}

	args["limit"] = size + 1
	return query + " LIMIT @limit"
}

// applyPageInfo modifies the given page in-place: it cuts the extra
// look-ahead row and reverses the items for backwards pagination so pages
// always read newest first.
func applyPageInfo[I, C any](page *types.Page[I], pageArgs PageArgs[C], cursorFunc func(item I) Cursor[C]) error {
	l := uint(len(page.Items))
	if l == 0 {
		return nil
	}

	backwards := pageArgs.IsBackwards()
	if backwards {
		last := or(pageArgs.Last, defaultPageSize)
		page.PageInfo.HasPreviousPage = l > last
		if page.PageInfo.HasPreviousPage {
			page.Items = page.Items[:last]
		}
		page.PageInfo.HasNextPage = pageArgs.Before != nil
	} else {
		first := or(pageArgs.First, defaultPageSize)
		page.PageInfo.HasNextPage = l > first
		if page.PageInfo.HasNextPage {
			page.Items = page.Items[:first]
		}
		page.PageInfo.HasPreviousPage = pageArgs.After != nil
	}

	if backwards {
		slices.Reverse(page.Items)
	}

	l = uint(len(page.Items))
	if l == 0 {
		return nil
	}

	startCursor := cursorFunc(page.Items[0])
	endCursor := cursorFunc(page.Items[l-1])

	if c, err := EncodeCursor(startCursor); err != nil {
		return fmt.Errorf("encode start cursor: %w", err)
	} else {
		page.PageInfo.StartCursor = new(c)
	}

	if c, err := EncodeCursor(endCursor); err != nil {
		return fmt.Errorf("encode end cursor: %w", err)
	} else {
		page.PageInfo.EndCursor = new(c)
	}

	return nil
}

func or[T any](a *T, b T) T {
	if a != nil {
		return *a
	}

	return b
}
