package pow

import "encoding/binary"

// BuildPreimage returns domainTag || wallet || token || le64(taskID) || le64(nonce).
//
// Every field has a fixed width so the concatenation needs no separators.
// The on-chain verifier hashes the same bytes; any change here invalidates
// every proof.
func BuildPreimage(id Identity, taskID, nonce uint64) []byte {
	tag := id.domainTag()
	return AppendPreimage(make([]byte, 0, len(tag)+2*PublicKeySize+16), id, taskID, nonce)
}

// AppendPreimage appends the preimage to dst and returns the extended slice.
// The solver uses it to reuse one buffer across iterations.
func AppendPreimage(dst []byte, id Identity, taskID, nonce uint64) []byte {
	dst = append(dst, id.domainTag()...)
	dst = append(dst, id.Wallet[:]...)
	dst = append(dst, id.Token[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, taskID)
	dst = binary.LittleEndian.AppendUint64(dst, nonce)
	return dst
}

// preimageLen returns the byte length of a preimage for id.
func preimageLen(id Identity) int {
	return len(id.domainTag()) + 2*PublicKeySize + 16
}
