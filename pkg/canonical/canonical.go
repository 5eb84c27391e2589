// pkg/canonical/canonical.go
package canonical

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/chartcsv/import-engine/pkg/model"
)

// DefaultAlgorithm is the content hash used unless configured
// otherwise.
const DefaultAlgorithm = "sha256"

// Canonicalizer turns rows into deterministic content hashes. The hash
// covers the declared columns only, processed in lexicographic order,
// so the caller's column ordering and any extra keys on the row never
// change the digest. Hashing is pure: identical logical content always
// yields an identical hash.
type Canonicalizer struct {
	algorithm string
	newDigest func() hash.Hash
}

// New returns a canonicalizer for the named hash algorithm. Supported
// algorithms are "sha256" (the default when empty) and "sha1".
func New(algorithm string) (*Canonicalizer, error) {
	switch algorithm {
	case "", "sha256":
		return &Canonicalizer{algorithm: "sha256", newDigest: sha256.New}, nil
	case "sha1":
		return &Canonicalizer{algorithm: "sha1", newDigest: sha1.New}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Algorithm returns the configured hash algorithm name.
func (c *Canonicalizer) Algorithm() string { return c.algorithm }

// Hash returns the hex content hash of row over columns: the normalized
// value of each column, sorted by column name and joined with "|", fed
// through the configured digest. Columns missing from the row hash as
// the canonical empty value.
func (c *Canonicalizer) Hash(row model.Row, columns []string) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)

	parts := make([]string, len(sorted))
	for i, col := range sorted {
		parts[i] = row[col].Normalized()
	}

	d := c.newDigest()
	d.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(d.Sum(nil))
}

// Canonicalize binds a row to its dataset scope: the payload is reduced
// to the declared columns with nulls unified to the empty string and
// string cells trimmed, and the content hash is attached.
func (c *Canonicalizer) Canonicalize(datasetID string, row model.Row, columns []string) model.CanonicalRow {
	payload := make(model.Row, len(columns))
	for _, col := range columns {
		v := row[col]
		switch v.Kind() {
		case model.KindNumber:
			payload[col] = v
		default:
			payload[col] = model.String(v.Normalized())
		}
	}
	return model.CanonicalRow{
		DatasetID:   datasetID,
		ContentHash: c.Hash(row, columns),
		Payload:     payload,
	}
}

// CleanRows drops rows that are blank in every declared column and
// normalizes the survivors the same way Canonicalize does. It returns
// the cleaned rows and the number of blank rows removed.
func CleanRows(rows []model.Row, columns []string) ([]model.Row, int) {
	cleaned := make([]model.Row, 0, len(rows))
	removed := 0
	for _, row := range rows {
		if row.IsBlank(columns) {
			removed++
			continue
		}
		out := make(model.Row, len(columns))
		for _, col := range columns {
			v := row[col]
			switch v.Kind() {
			case model.KindNumber:
				out[col] = v
			default:
				out[col] = model.String(v.Normalized())
			}
		}
		cleaned = append(cleaned, out)
	}
	return cleaned, removed
}
