package progress

import "context"

// Sink consumes batches of events. Implementations honor ctx deadlines and
// may be called repeatedly.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it.
type Emitter interface {
	Emit(evt Event)
}

// SinkFunc adapts a function to Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
