package audit

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

func sha3NewHash() hash.Hash {
	return sha3.New256()
}
