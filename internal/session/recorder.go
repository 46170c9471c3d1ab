package session

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recorder tees the outgoing audio stream into a WAV file so the
// hearing keeps a playable record alongside the transcript. Input is
// 16-bit little-endian PCM.
type recorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *wav.Encoder
	rate int
	ch   int
}

func newRecorder(dir, sessionID string, sampleRate, channels int) (*recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	return &recorder{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, 16, channels, 1),
		rate: sampleRate,
		ch:   channels,
	}, nil
}

func (r *recorder) Path() string {
	return r.file.Name()
}

func (r *recorder) Append(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: r.ch, SampleRate: r.rate},
		Data:   samples,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return r.file.Close()
}
