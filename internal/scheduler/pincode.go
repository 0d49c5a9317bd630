package scheduler

import "crypto/rand"

// pincodeAlphabet is the 62-symbol [0-9A-Za-z] dictionary spec.md §4.1
// requires. A third-party id generator (uuid/ulid/ksuid) would impose its
// own fixed alphabet and length, so this draws directly against
// crypto/rand the way the teacher's util.NewReqID does — see DESIGN.md.
const pincodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generatePincode draws six independent uniform characters from
// pincodeAlphabet. Collisions across different orders are tolerated per
// spec.md §4.1 — pincodes are scoped per-id, not globally unique.
func generatePincode() string {
	// Bytes >= 248 (4*62) are redrawn so that v%62 stays uniform.
	const limit = 256 - 256%len(pincodeAlphabet)
	var raw [1]byte
	out := make([]byte, 0, 6)
	for len(out) < 6 {
		_, _ = rand.Read(raw[:]) // crypto/rand.Read on this platform does not fail in practice
		if int(raw[0]) >= limit {
			continue
		}
		out = append(out, pincodeAlphabet[int(raw[0])%len(pincodeAlphabet)])
	}
	return string(out)
}
