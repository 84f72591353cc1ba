package workspace

import "golang.org/x/crypto/blake2b"

type digest [blake2b.Size256]byte

func digestOf(src []byte) digest {
	return blake2b.Sum256(src)
}
