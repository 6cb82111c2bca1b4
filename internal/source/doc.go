// Package source loads pipeline input values from outside the program.
//
// Supported sources:
//   - YAML files (.yaml, .yml): sequences become bags, mappings become records
//   - JSON files (.json): decoded with UseNumber so integers stay exact
//   - SQLite queries: one record per row, keyed by column name
//
// # Value Rules
//
//   - Floats are rejected everywhere; values carry integers only
//   - Mapping keys must be strings
//   - SQLite REAL columns are accepted only when the value is integral
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package source
