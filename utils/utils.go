package utils

import (
	"crypto/md5"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
)

// DeriveUUID hashes parts into a version 3 style uuid. The order of parts does not matter.
func DeriveUUID(parts ...string) uuid.UUID {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)

	sum := md5.Sum([]byte(strings.Join(sorted, "")))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum[:])
}

// DeriveAccount names a system account of a market, e.g. DeriveAccount("btc-usdt", "pool").
func DeriveAccount(market, role string) uuid.UUID {
	return DeriveUUID("market:"+market, "role:"+role)
}
