package ingest

// ItemStatus is the processing outcome of a single ingested document.
type ItemStatus string

// Ingest item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of ingesting one source document. Persisted
// holds the IDs actually written to the vector store: the source ID
// for short content, derived chunk IDs for split content. A failed
// result may still carry a persisted subset when earlier batches of a
// multi-batch document went through before the failure.
type Result struct {
	sourceID  string
	persisted []string
	status    ItemStatus
	err       error
}

// NewOK creates a successful ingest result with the persisted IDs.
func NewOK(sourceID string, persisted []string) Result {
	return Result{sourceID: sourceID, persisted: persisted, status: StatusOK}
}

// NewError creates a failed ingest result. persisted lists the chunk
// IDs written before the failure, if any.
func NewError(sourceID string, persisted []string, err error) Result {
	return Result{sourceID: sourceID, persisted: persisted, status: StatusError, err: err}
}

// ID returns the source document identifier.
func (r Result) ID() string { return r.sourceID }

// Persisted returns the IDs written to the vector store.
func (r Result) Persisted() []string { return r.persisted }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Report is the complete outcome of one ingest batch. A partially failed
// batch is never reported as full success: Failed() carries the failed
// subset alongside the persisted IDs.
type Report struct {
	results []Result
}

// NewReport assembles a report from per-item results.
func NewReport(results []Result) Report { return Report{results: results} }

// Results returns all per-item outcomes in input order.
func (r Report) Results() []Result { return r.results }

// Succeeded returns every ID persisted to the vector store, including
// the partial subsets of failed documents. These are the IDs Forget
// accepts.
func (r Report) Succeeded() []string {
	var ids []string
	for _, res := range r.results {
		ids = append(ids, res.persisted...)
	}
	return ids
}

// Failed returns the failed subset.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.results {
		if res.status == StatusError {
			failed = append(failed, res)
		}
	}
	return failed
}
