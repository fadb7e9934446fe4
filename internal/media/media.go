// Package media loads the audio and video assets sent by the funnel.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrAssetMissing indicates an expected media file is absent on disk. A
// sequence step hitting this aborts without advancing state.
var ErrAssetMissing = errors.New("media asset missing")

// Voice asset file names used by the funnel sequences.
const (
	VoiceGreeting    = "oi.mp3"
	VoiceTease       = "pauzao.mp3"
	VoiceApology     = "desculpa.mp3"
	VoiceCallDropped = "caiu.mp3"
	VoicePixDetails  = "pix.mp3"
	VoicePaymentAsk  = "comprovante.mp3"
	VoiceClosing     = "fim.mp3"
)

// Video asset file names.
const (
	VideoIntro     = "start.mp4"
	VideoAfterCall = "final.mp4"
)

// Assets resolves named media files under a base directory with audio/ and
// video/ subdirectories.
type Assets struct {
	dir string
}

// NewAssets creates an asset loader rooted at dir.
func NewAssets(dir string) *Assets {
	slog.Debug("Creating media assets loader", "dir", dir)
	return &Assets{dir: dir}
}

// Voice reads an audio asset by file name.
func (a *Assets) Voice(name string) ([]byte, error) {
	return a.read(filepath.Join(a.dir, "audio", name))
}

// Video reads a video asset by file name.
func (a *Assets) Video(name string) ([]byte, error) {
	return a.read(filepath.Join(a.dir, "video", name))
}

func (a *Assets) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Error("media asset not found", "path", path)
		return nil, fmt.Errorf("%w: %s", ErrAssetMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read media asset %s: %w", path, err)
	}
	return data, nil
}
