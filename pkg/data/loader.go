package data

import (
	"context"

	"predkit/pkg/core"
)

// Sample is one decoded image, or the error that prevented decoding it.
type Sample struct {
	Index int
	File  ImageFile
	X     *core.Tensor
	Err   error
}

// StreamImages decodes files in order on a background goroutine and sends
// them on out, which it closes when done. A decode failure is delivered as
// a Sample with Err set and ends the stream. Cancelling ctx stops early.
func StreamImages(ctx context.Context, files []ImageFile, opts LoadOptions, out chan<- Sample) {
	go func() {
		// Close the output channel to signal that no more samples will be sent.
		defer close(out)
		for i, f := range files {
			x, err := LoadImage(f.Path, opts)
			select {
			case <-ctx.Done():
				return
			case out <- Sample{Index: i, File: f, X: x, Err: err}:
			}
			if err != nil {
				return
			}
		}
	}()
}

// Batch is a run of consecutive samples.
type Batch struct {
	Samples []Sample
}

// Batcher groups samples from in into batches of batchSize, sending the
// final partial batch when in closes. A sample carrying an error is
// flushed immediately in its own batch. out is closed on return.
func Batcher(ctx context.Context, in <-chan Sample, batchSize int, out chan<- Batch) {
	go func() {
		defer close(out)
		var cur []Sample
		send := func(b []Sample) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- Batch{Samples: b}:
				return true
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					if len(cur) > 0 {
						send(cur)
					}
					return
				}
				if s.Err != nil {
					if len(cur) > 0 && !send(cur) {
						return
					}
					send([]Sample{s})
					return
				}
				cur = append(cur, s)
				if len(cur) == batchSize {
					if !send(cur) {
						return
					}
					// start a fresh slice; the sent one now belongs to the receiver
					cur = nil
				}
			}
		}
	}()
}
