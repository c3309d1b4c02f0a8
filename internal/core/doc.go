// Package core provides the business logic for bulk inventory imports.
//
// The package is independent of any transport. The web server, the
// stockimport CLI and the tests all drive the same [Service].
//
// # Import Modes
//
// A file is imported in one of two modes, registered at init time in the
// mode registry (see [Register] and [All]):
//
//   - products: one catalogue product per row, created or updated by SKU,
//     with its category, prices and per-location stock.
//   - serial: one serialized unit per row, created as a child of a parent
//     product (SKU "<PARENT>-<SERIAL>") with quantity 1 at one location.
//
// The mode is chosen from the header and the optional parent SKU of the
// [ImportRequest].
//
// # Flow
//
//  1. [ReadImportFile] strips the BOM and repairs the encoding.
//  2. The column resolver builds a Layout: separator, headers, stock
//     columns. File-level problems are a [StructuralError] and stop here.
//  3. Rows are decoded and validated in a producer goroutine and applied
//     one at a time, in file order, by a single consumer.
//  4. Each row either succeeds or becomes a [RowError]; progress is
//     broadcast through [Service.SubscribeProgress].
//
// Only one import runs at a time. A started import is never cancelled.
//
// # Error Handling
//
// Technical errors are mapped to French user messages with [MapError]:
//
//   - IMP001-IMP005: file structure and mode selection
//   - DB001-DB006: persistence
//   - FILE001-FILE004: upload, header and template files
//   - UPL001-UPL006: import sessions and request limits
package core
