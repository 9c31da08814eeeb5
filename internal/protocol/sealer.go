package protocol

import "github.com/dmitrijs2005/clipsync/internal/cryptox"

// Sealer turns messages into transport payloads and back: codec first, then
// the optional cipher.
type Sealer struct {
	cipher *cryptox.MessageCipher
}

func NewSealer(c *cryptox.MessageCipher) *Sealer {
	return &Sealer{cipher: c}
}

// Seal encodes and encrypts m.
func (s *Sealer) Seal(m Message) ([]byte, error) {
	b, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return s.cipher.Encrypt(b)
}

// Open decrypts and decodes payload. Decryption failures wrap
// common.ErrDecryption, unknown tags return ErrUnknownKind.
func (s *Sealer) Open(payload []byte) (Message, error) {
	b, err := s.cipher.Decrypt(payload)
	if err != nil {
		return Message{}, err
	}
	return Decode(b)
}
