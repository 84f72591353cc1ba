package jobs

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// SetSnapshot stores src compressed. A nil src clears the snapshot.
func (j *Job) SetSnapshot(src []byte) error {
	if src == nil {
		j.snapshot = nil
		return nil
	}
	enc, _, err := codec()
	if err != nil {
		return err
	}
	j.snapshot = enc.EncodeAll(src, nil)
	return nil
}

// Snapshot returns the stored source, or nil when none was recorded.
func (j *Job) Snapshot() ([]byte, error) {
	if j.snapshot == nil {
		return nil, nil
	}
	_, dec, err := codec()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(j.snapshot, nil)
}
