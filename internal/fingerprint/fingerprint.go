// Package fingerprint computes an order-independent hash of a transaction batch.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/leakscan/internal/model"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Dataset returns the hex-encoded SHA-256 of the batch. The digest does not
// depend on the order of txns.
func Dataset(txns []model.Transaction) string {
	records := make([]string, len(txns))
	ids := make([]string, len(txns))
	for i, tx := range txns {
		records[i] = serialize(tx)
		ids[i] = tx.ID
	}

	order := make([]int, len(txns))
	for i := range order {
		order[i] = i
	}
	// Ids should be unique; the full record breaks ties if they are not.
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if ids[ia] != ids[ib] {
			return ids[ia] < ids[ib]
		}
		return records[ia] < records[ib]
	})

	h := sha256.New()
	for _, i := range order {
		h.Write([]byte(records[i]))
		h.Write([]byte(recordSep))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func serialize(tx model.Transaction) string {
	return strings.Join([]string{
		tx.ID,
		tx.Date.Format(time.RFC3339Nano),
		tx.VendorName,
		model.AmountKey(tx.Amount),
		tx.Currency,
	}, fieldSep)
}
