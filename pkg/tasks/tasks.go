// Package tasks defines the messages sent over the ingestion queue.
package tasks

// IngestTask asks the consumer to ingest one raw scrape file stored in
// object storage.
type IngestTask struct {
	Source    string `json:"source"`
	ObjectKey string `json:"object_key"`
	FileMD5   string `json:"file_md5"`
	// Reconcile marks a re-run triggered by failed ledger rows.
	Reconcile bool `json:"reconcile,omitempty"`
}

// Key identifies the task for attempt counting.
func (t IngestTask) Key() string {
	if t.FileMD5 != "" {
		return t.FileMD5
	}
	return t.ObjectKey
}
