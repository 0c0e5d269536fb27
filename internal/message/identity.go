// ABOUTME: Deterministic identifier derivation for sessions and numeric surrogates
// ABOUTME: Keeps non-chat transports compatible with numeric-only downstream fields

package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strconv"
)

// maxSafeInteger bounds surrogate identifiers to the range the downstream
// engine's numeric identifier fields can represent without loss.
const maxSafeInteger = 1<<53 - 1

// SurrogateID maps an arbitrary identifier string onto a stable positive
// integer. Identifiers that are already decimal integers pass through
// unchanged so chat-native ids keep their original value.
//
// The mapping is lossy: two distinct strings can collide. This is an accepted
// limitation; the alternative (widening the engine's identifier fields to
// strings) would break the engine's native update contract.
func SurrogateID(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() % (maxSafeInteger + 1))
}

// DeriveSessionID produces a stable session identifier from the conversation
// coordinates, so repeated messages from one conversation route consistently
// even when the transport supplies no session id of its own.
func DeriveSessionID(platform Platform, chatID, userID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", platform, chatID, userID)))
	return "sess_" + hex.EncodeToString(sum[:8])
}
