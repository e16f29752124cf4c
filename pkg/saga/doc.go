// Package saga runs an ordered list of steps, each paired with a
// compensating action, and undoes completed steps in reverse order when a
// later step fails.
//
// The Journal returned by Run is the audit trail of a run: which steps
// completed, which one failed, and which compensations succeeded. A rollback
// that fails part-way can be finished later with Resume, which only retries
// what is still outstanding.
//
//	journal, err := saga.Run(ctx, []saga.Step{
//		{Name: "reserve", Action: reserve, Compensate: release},
//		{Name: "create-db", Action: createDB, Compensate: dropDB},
//		{Name: "migrate", Action: migrate},
//	}, saga.WithLogger(log))
//	var serr *saga.Error
//	if errors.As(err, &serr) && !serr.RolledBack() {
//		// retry later with saga.Resume(ctx, journal)
//	}
package saga
