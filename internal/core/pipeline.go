package core

import "context"

// DefaultDecodeBuffer is how many decoded rows may wait for the apply stage.
const DefaultDecodeBuffer = 16

// decoded is one row handed from the decode stage to the apply stage.
type decoded[T any] struct {
	row   DataRow
	value T
	err   error
}

// runPipeline runs rows through two stages. decode is pure and runs ahead
// in its own goroutine, bounded by buffer. apply runs on the calling
// goroutine, strictly in file order, so exactly one row at a time reaches
// the store. A panic in decode becomes that row's error.
func runPipeline[T any](
	ctx context.Context,
	rows []DataRow,
	buffer int,
	decode func(DataRow) (T, error),
	apply func(context.Context, DataRow, T, error),
) {
	if buffer <= 0 {
		buffer = DefaultDecodeBuffer
	}

	queue := make(chan decoded[T], buffer)
	go func() {
		defer close(queue)
		for _, row := range rows {
			queue <- safeDecode(row, decode)
		}
	}()

	for item := range queue {
		apply(ctx, item.row, item.value, item.err)
	}
}

func safeDecode[T any](row DataRow, decode func(DataRow) (T, error)) (out decoded[T]) {
	out.row = row
	defer func() {
		if r := recover(); r != nil {
			out.err = &PanicError{Value: r}
		}
	}()
	out.value, out.err = decode(row)
	return out
}
