// Package async provides safe fire-and-forget execution for background work.
//
// A Dispatcher runs each task in its own goroutine with panic recovery and a timeout,
// logging failures instead of propagating them. It bounds how many tasks run at once;
// when every slot is busy new tasks are dropped instead of blocking the caller, which
// suits side channels such as audit logging that must never slow down or fail the
// main path:
//
//	d := async.NewDispatcher(logger, 64, 2*time.Second)
//	d.Go(ctx, "audit", func(ctx context.Context) error {
//		return sink.Record(ctx, rec)
//	})
//	defer d.Close(5 * time.Second)
package async
