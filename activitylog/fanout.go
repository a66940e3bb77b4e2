package activitylog

import (
	"context"
	"errors"

	auth "github.com/hirelane/jobboard-auth"
)

// Fanout records every event on each sink. A failing sink does not stop
// the others, the errors are joined.
type Fanout []auth.ActivitySink

var _ auth.ActivitySink = Fanout(nil)

func NewFanout(sinks ...auth.ActivitySink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) Record(ctx context.Context, event auth.ActivityEvent) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
