// Package batch runs batches of SQL queries in two phases against one or more
// database engines.
//
// A batch is described by a Spec. The fact phase runs every fact group first;
// each fact query is named, and its result is stored in a fact store under
// that name. The store is then frozen and the admin phase runs every admin
// group, whose queries may bind facts as named parameters or read them from
// templates.
//
// # Core Components
//
//   - Spec, QueryGroup, QueryItem: the batch description, decoded from YAML
//     or built from a directory with FromDir
//   - Orchestrator: validates a Spec, resolves connection contexts and runs
//     both phases in order
//   - Report, ItemResult: what happened to every query
//   - SpecError, ItemError: typed failures carrying their position in the
//     batch
//
// # Resuming
//
// Every completed query is recorded in a ledger by its identity (its literal
// text, or its file path). Queries already in the ledger are skipped before
// their source is loaded, so a failed batch is retried by running it again.
// Nothing is recorded in check mode.
//
// # Usage Example
//
//	o := batch.New(batch.Config{
//		Resolver: resolver,
//		Registry: registry,
//		Ledger:   history,
//	})
//
//	report, err := o.Run(ctx, spec)
//	for _, r := range report.Results {
//		switch r.Status {
//		case batch.StatusExecuted:
//			fmt.Printf("ran %s in %v\n", r.Identity, r.Duration)
//		case batch.StatusSkipped:
//			fmt.Printf("%s already applied\n", r.Identity)
//		}
//	}
//
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Failure Handling
//
// Configuration problems (no engine, unsupported engine, missing
// credentials) are found by Init before anything executes. At run time the
// first failure stops the batch unless Config.ContinueOnError is set, in
// which case the remaining queries run and the batch still ends in
// StateFailed. Cancelling the context always stops the batch.
package batch
