package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"poetry-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AudioMixer = (*FFmpegMixer)(nil)

// musicFilter keeps the music at 20% under a full-volume voice and ends with the voice.
const musicFilter = "[1:a]volume=0.20[music];[0:a][music]amix=inputs=2:duration=first:dropout_transition=3[out]"

type FFmpegMixer struct {
	bin string
}

func NewFFmpegMixer(bin string) *FFmpegMixer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegMixer{bin: bin}
}

func mixArgs(voicePath, musicPath, outPath string) []string {
	return []string{
		"-y",
		"-i", voicePath,
		"-i", musicPath,
		"-filter_complex", musicFilter,
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		outPath,
	}
}

func (m *FFmpegMixer) Mix(ctx context.Context, voice, music []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "poem-mix-*")
	if err != nil {
		return nil, fmt.Errorf("mix temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	voicePath := filepath.Join(dir, "voice.mp3")
	musicPath := filepath.Join(dir, "music.mp3")
	outPath := filepath.Join(dir, "combined.mp3")
	if err := os.WriteFile(voicePath, voice, 0o600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(musicPath, music, 0o600); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, m.bin, mixArgs(voicePath, musicPath, outPath)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	return os.ReadFile(outPath)
}
