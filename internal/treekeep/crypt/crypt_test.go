package crypt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("secret")},
		{"exact block", bytes.Repeat([]byte{0xAB}, 16)},
		{"multi block", bytes.Repeat([]byte("0123456789abcdef"), 64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := writeTemp(t, "plain", tc.data)
			enc := in + ".enc"
			out := in + ".dec"

			require.NoError(t, EncryptFile(in, enc, "correct horse"))
			require.NoError(t, DecryptFile(enc, out, "correct horse"))

			restored, err := os.ReadFile(out)
			require.NoError(t, err)
			if len(tc.data) == 0 {
				assert.Empty(t, restored)
			} else {
				assert.Equal(t, tc.data, restored)
			}
		})
	}
}

func TestCiphertextLayout(t *testing.T) {
	in := writeTemp(t, "plain", []byte("x"))
	enc := in + ".enc"
	require.NoError(t, EncryptFile(in, enc, "pw"))

	ct, err := os.ReadFile(enc)
	require.NoError(t, err)
	// salt(16) || iv(16) || one padded AES block
	assert.Len(t, ct, 48)
}

func TestEncryptionIsNondeterministic(t *testing.T) {
	in := writeTemp(t, "plain", []byte("same plaintext, same passphrase"))
	enc1 := in + ".enc1"
	enc2 := in + ".enc2"

	require.NoError(t, EncryptFile(in, enc1, "pw"))
	require.NoError(t, EncryptFile(in, enc2, "pw"))

	ct1, err := os.ReadFile(enc1)
	require.NoError(t, err)
	ct2, err := os.ReadFile(enc2)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2, "fresh salt and IV must vary the ciphertext")
}

func TestDecryptWrongPassword(t *testing.T) {
	in := writeTemp(t, "plain", []byte("guard me"))
	enc := in + ".enc"
	out := in + ".dec"

	require.NoError(t, EncryptFile(in, enc, "right"))
	err := DecryptFile(enc, out, "wrong")
	if err == nil {
		// PKCS#7 can accept garbage with probability ~2^-8; the plaintext
		// still cannot match.
		restored, rerr := os.ReadFile(out)
		require.NoError(t, rerr)
		assert.NotEqual(t, []byte("guard me"), restored)
		return
	}
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptTruncatedInput(t *testing.T) {
	short := writeTemp(t, "short", bytes.Repeat([]byte{1}, 47))
	err := DecryptFile(short, short+".dec", "pw")
	assert.ErrorIs(t, err, ErrDecrypt)

	misaligned := writeTemp(t, "misaligned", bytes.Repeat([]byte{1}, 49))
	err = DecryptFile(misaligned, misaligned+".dec", "pw")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptMissingInput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.enc")
	err := DecryptFile(missing, missing+".dec", "pw")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecrypt)
}
