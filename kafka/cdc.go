package kafka

// Op change data capture operation
type Op string

const (
	OpCreate Op = "c"
	OpRead   Op = "r" // snapshot read
	OpUpdate Op = "u"
	OpDelete Op = "d"
)

// SourceInfo origin of a change event
type SourceInfo struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot"`
	DB        string `json:"db"`
	Sequence  string `json:"sequence"`
	TsUs      int64  `json:"ts_us"`
	TsNs      int64  `json:"ts_ns"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	TxID      int64  `json:"txId"`
	LSN       int64  `json:"lsn"`
	Xmin      *int64 `json:"xmin"`
}

// DatabaseEvent row change envelope published by the database connector.
// Before is nil for creates and snapshot reads.
type DatabaseEvent[T any] struct {
	Before      *T         `json:"before"`
	After       T          `json:"after"`
	Source      SourceInfo `json:"source"`
	Transaction any        `json:"transaction"`
	Op          Op         `json:"op"`
	TsMs        int64      `json:"ts_ms"`
	TsUs        int64      `json:"ts_us"`
	TsNs        int64      `json:"ts_ns"`
}

// Table returns the qualified source table, e.g. "public.sessions"
func (e DatabaseEvent[T]) Table() string {
	if e.Source.Schema == "" {
		return e.Source.Table
	}
	return e.Source.Schema + "." + e.Source.Table
}

// IsDelete reports whether the row was removed
func (e DatabaseEvent[T]) IsDelete() bool {
	return e.Op == OpDelete
}
