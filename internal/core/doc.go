// Package core provides the row pipeline of the file importer.
//
// A file is streamed line by line through a chain of stages. Each stage
// receives a [RowContext], may change the type of its payload, and forwards
// to the next stage. File-level lifecycle calls travel down the same chain.
//
// # Pipeline
//
// A typical chain for a CSV file with one header line:
//
//	raw line -> RowTypeSetter -> RowTypeFilter(DATA) -> CSVToColumns -> sink
//
// built as:
//
//	sink := ...                                    // core.Processor[[]string]
//	split, _ := core.NewCSVToColumns(core.CSVSplitter{}, sink)
//	filter, _ := core.NewRowTypeFilter[string](core.NewRowTypeSet(core.RowData), split)
//	head, _ := core.NewRowTypeSetter[string](core.FixedHeaderCount[string]{HeaderRows: 1}, filter)
//
// The caller drives the chain for one file at a time:
//
//  1. head.BeforeFile(ctx, fc)
//  2. head.ProcessRow(ctx, NewRowContext(fc, n, line)) for n = 1, 2, ...
//  3. head.AfterFile(ctx, fc), or head.AbortFile(ctx, fc, err) on failure
//
// # Per-file state
//
// Stages never key their state by file path. Anything a stage must remember
// between rows of one file is stored on the [FileContext] under a [StateKey],
// so a chain can be reused for any number of files.
//
// # Errors
//
// Every failure is fatal for the current file. Errors carrying a stable code
// (malformed rows, codec validation, configuration) implement [Coder];
// [ErrorCode] extracts the code from a wrapped error.
package core
