package etl

// UpsertResult counts the outcome of one bulk upsert. Results merge
// associatively and commutatively so per-chunk and per-stream counts can be
// combined in any order.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Batches  int `json:"batches"`
}

func (r UpsertResult) Merge(other UpsertResult) UpsertResult {
	return UpsertResult{
		Inserted: r.Inserted + other.Inserted,
		Updated:  r.Updated + other.Updated,
		Failed:   r.Failed + other.Failed,
		Skipped:  r.Skipped + other.Skipped,
		Batches:  r.Batches + other.Batches,
	}
}

// Processed is the number of rows that reached the database.
func (r UpsertResult) Processed() int {
	return r.Inserted + r.Updated
}
