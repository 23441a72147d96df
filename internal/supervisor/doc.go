/*
Package supervisor owns the lifecycle of every live terminal session.

A Supervisor runs a single event loop. Public methods marshal onto it and
wait for the result; process readers, process waiters, external detectors
and timers only post closures onto it. Every posted closure carries the
session id and spawn token it was created for and is discarded when the
session has since been replaced or torn down.

Output flows from the process reader through the session buffers into the
session's flow controller, which batches it by delivery tier and passes the
namespace filter before it reaches Bus subscribers. Agent sessions also
publish typed agent:* domain events.

Usage:

	sup, err := supervisor.New(supervisor.Config{}, supervisor.Deps{
		Spawner: pty.NewSpawner(pty.Config{}),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer sup.Dispose()

	notes, unsubscribe := sup.Subscribe(events.KindData, events.KindExit)
	defer unsubscribe()

	err = sup.Spawn(ctx, "term-1", session.Options{Cols: 120, Rows: 40})
*/
package supervisor
