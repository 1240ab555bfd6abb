// Package batch runs one PhotoRoom operation over many inputs with bounded
// concurrency, progress reporting and a per-run error strategy.
//
// Example usage:
//
//	coord := batch.NewCoordinator(batch.Config{
//		Concurrency: 4,
//		OnError:     batch.Continue,
//		OutputDir:   "out",
//		Reporter: batch.ReporterFunc(func(p batch.Progress) {
//			fmt.Printf("%d/%d\n", p.Completed, p.Total)
//		}),
//	})
//	result, err := coord.Run(ctx, batch.FromPaths(files...), op)
//
// The coordinator:
//   - Hands every input to a Runner (worker Pool by default, or Limited)
//   - Records one Outcome per input under a single lock
//   - Emits a Progress snapshot after each completion, Completed strictly increasing
//   - Persists successful artifacts through a Sink when one is configured
//   - Returns outcomes sorted by input index
//
// With FailFast the first failing item stops scheduling; in-flight items
// finish and Run returns an *AbortError naming the failing index.
package batch
