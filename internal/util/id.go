package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 8

// NewID returns a random identifier such as "sub_1f9c03aa7be2d410". Used
// for websocket subscribers, which only need to be unique per process.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
