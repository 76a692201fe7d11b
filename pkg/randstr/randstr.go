package randstr

import "crypto/rand"

// Generator produces random strings over a fixed alphabet using crypto/rand.
type Generator struct {
	letters []byte
}

func New(letters []byte) *Generator {
	return &Generator{letters: letters}
}

func (g *Generator) GenerateRandomString(length int) string {
	buf := make([]byte, length)
	rand.Read(buf)

	for i, b := range buf {
		buf[i] = g.letters[int(b)%len(g.letters)]
	}

	return string(buf)
}
