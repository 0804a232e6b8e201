// Package uow coordinates repositories and transactions for one logical
// operation.
//
// A UnitOfWork holds a dedicated connection. Repositories obtained with
// RepositoryFor read through it and stage writes in its change set; nothing
// reaches storage until SaveChanges or CommitTransaction. Transactions are
// explicit: without BeginTransaction every flushed statement commits on its
// own.
//
//	u, err := uow.New(ctx, db)
//	if err != nil {
//		return err
//	}
//	defer u.Dispose()
//
//	widgets, _ := uow.RepositoryFor[Widget](u)
//	_ = u.BeginTransaction(ctx)
//	_ = widgets.Add(&Widget{Name: "A", Price: 5})
//	if err := u.CommitTransaction(ctx); err != nil {
//		return err
//	}
package uow
