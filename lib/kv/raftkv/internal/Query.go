package internal

import "github.com/ValentinKolb/dStruct/lib/kv"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet      QueryType = iota // Retrieve an entry by key.
	QueryTBatchGet                  // Retrieve several entries at once.
	QueryTScan                      // Retrieve an ordered key range.
	QueryTVersion                   // Retrieve the current write index of the replica.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTBatchGet:
		return "BatchGet"
	case QueryTScan:
		return "Scan"
	case QueryTVersion:
		return "Version"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests sent via SyncRead or StaleRead.
type Query struct {
	Type  QueryType
	Key   []byte   // Get, Scan start
	End   []byte   // Scan end, nil for unbounded
	Keys  [][]byte // BatchGet
	Limit int      // Scan
}

// QueryResult is the result of a QueryTGet operation. BatchGet answers with
// [][]byte, Scan with []kv.KvPair and Version with uint64.
type QueryResult struct {
	Found bool
	Value []byte
}

// ScanResult is the result of a QueryTScan operation.
type ScanResult = []kv.KvPair
