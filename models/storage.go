package models

// Storage defines the task-history persistence layer for trendlabel.
//
// Every task that passes through the transport is recorded so that an
// annotation session can be audited after the fact. The primary
// implementation is DuckDBStorage which uses DuckDB for local persistent
// storage.
//
// Thread Safety: Implementations should be safe for concurrent use.
type Storage interface {
	// RecordTask persists a finished task.
	//
	// The record's ID is assigned when empty. CreatedAt defaults to now.
	RecordTask(record *TaskRecord) error

	// ListTasks returns the most recent records (newest first).
	//
	// Parameters:
	//   - filePath: restricts results to one data file; empty lists all files
	//   - limit: maximum number of records; values <= 0 use a default of 100
	ListTasks(filePath string, limit int) ([]*TaskRecord, error)

	// GetTask retrieves a record by its ID.
	//
	// Returns the record and true if found, nil and false otherwise.
	GetTask(id string) (*TaskRecord, bool)

	// Close releases any resources held by the storage.
	//
	// After Close is called, the storage should not be used.
	Close() error
}
