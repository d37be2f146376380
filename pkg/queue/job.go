package queue

import "context"

// Job is a unit of work dispatchable through the queue. Type selects which
// registered job handles a message; Name identifies the handler in logs.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
