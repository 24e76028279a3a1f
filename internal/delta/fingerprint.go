package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainBatch is the hash domain for batch fingerprints.
// The version suffix allows the encoding to change later.
const DomainBatch = "storesync/batch/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content-addressed identity for a set of queue
// records. It depends only on (kind, store_id, objectid) of each record and is
// independent of input order, so the same unconsumed queue always yields the
// same fingerprint.
func Fingerprint(records ...[]DeltaRecord) string {
	var lines []string
	for _, batch := range records {
		for _, r := range batch {
			lines = append(lines, strings.Join([]string{
				string(r.Kind),
				norm.NFC.String(r.StoreID),
				strconv.FormatInt(r.ObjectID, 10),
			}, "\x1f"))
		}
	}
	slices.Sort(lines)
	return hashWithDomain(DomainBatch, []byte(strings.Join(lines, "\n")))
}
