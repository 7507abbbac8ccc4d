package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/zhoupc/wechat-file-manager/internal/errors"
)

const fingerprintChunkSize = 256 * 1024

// Fingerprint streams the file at path through MD5 in fixed-size chunks
// and returns the lowercase hex digest. Peak memory is bounded regardless
// of file size. A read failure (the chat app may still be writing the
// file) comes back as a FileIOError so the caller can skip and retry on
// the next run.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.FileIO("open", path, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, fingerprintChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", errors.FileIO("read", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
