package source

import "context"

// SliceSource streams a fixed slice of rows. It is used by tests and by
// callers that already hold the ordered sequence in memory.
type SliceSource struct {
	Rows []Row
}

func (s *SliceSource) Stream(ctx context.Context) (<-chan Row, <-chan error) {
	rows := make(chan Row, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errc)
		for _, r := range s.Rows {
			select {
			case rows <- r:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return rows, errc
}

func (s *SliceSource) Close() error { return nil }
