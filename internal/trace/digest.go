package trace

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/spaolacci/murmur3"

	terrors "github.com/tracelens/tracelens/internal/errors"
)

// Digest computes the murmur3 128-bit content digest of a trace file,
// returned as a hex string. Used by the run catalog to tie scan results
// to exact input bytes.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", terrors.NewOpenError(path, err)
	}
	defer f.Close()

	h := murmur3.New128()
	if _, err := io.Copy(h, f); err != nil {
		return "", terrors.NewReadError(path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
