// directory.go - Append-only registry of treasury public keys.

package treasury

// Record is one directory entry: a treasury's public key and a descriptive
// label. Labels are informational only and carry no uniqueness invariant.
type Record struct {
	PublicKey Point  `json:"public_key"`
	Label     string `json:"label"`
}

// Directory is the append-only treasury listing. Entries are never mutated
// or deleted.
type Directory struct {
	records []Record
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{records: make([]Record, 0)}
}

// Append registers a treasury and returns its position.
func (d *Directory) Append(pub Point, label string) int {
	d.records = append(d.records, Record{PublicKey: pub, Label: label})
	return len(d.records) - 1
}

// Len returns the number of registered treasuries.
func (d *Directory) Len() int { return len(d.records) }

// Records returns a copy of all entries.
func (d *Directory) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}
