package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProbeResult holds metadata extracted from an uploaded audio file
type ProbeResult struct {
	Duration int       // seconds, rounded
	Peaks    []float32 // normalized waveform peaks for frontend rendering
}

// PeakCount is the number of waveform bins extracted per track
const PeakCount = 150

// Probe writes the audio bytes to a temp file and runs ffprobe/ffmpeg to
// extract duration and a normalized peak array. Callers run this off the
// request path; a missing ffmpeg binary degrades to an error, not a crash.
func Probe(ctx context.Context, audioData []byte, ext string) (*ProbeResult, error) {
	tempDir, err := os.MkdirTemp("", "audio-probe-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inFile := filepath.Join(tempDir, "input"+ext)
	if err := os.WriteFile(inFile, audioData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	result := &ProbeResult{}

	durationStr, err := runCommand(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inFile)
	if err != nil {
		return nil, fmt.Errorf("failed to extract duration: %w", err)
	}
	if d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil {
		result.Duration = int(math.Round(d))
	}

	// 1000Hz mono f32le keeps the full amplitude envelope. Lower rates let
	// ffmpeg's lowpass filter flatten transients and the waveform looks dead.
	pcmData, err := runCommandBytes(ctx, "ffmpeg",
		"-i", inFile,
		"-f", "f32le",
		"-ac", "1",
		"-ar", "1000",
		"pipe:1")
	if err != nil {
		return nil, fmt.Errorf("failed to extract pcm data: %w", err)
	}
	result.Peaks = calculatePeaks(pcmData, PeakCount)

	return result, nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := runCommandBytes(ctx, name, args...)
	return string(out), err
}

func runCommandBytes(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// calculatePeaks divides raw 32-bit float PCM data into count bins and takes
// the absolute maximum of each bin, normalized to 0..1. Max instead of RMS so
// transients like snares and hi-hats stay visible.
func calculatePeaks(pcmData []byte, count int) []float32 {
	peaks := make([]float32, count)
	if len(pcmData) == 0 || count <= 0 {
		return peaks
	}

	samplesCount := len(pcmData) / 4
	samples := make([]float32, samplesCount)
	for i := 0; i < samplesCount; i++ {
		bits := binary.LittleEndian.Uint32(pcmData[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}

	binSize := float64(samplesCount) / float64(count)

	var globalMax float32
	for i := 0; i < count; i++ {
		start := int(float64(i) * binSize)
		end := int(float64(i+1) * binSize)
		if end > samplesCount {
			end = samplesCount
		}

		var maxVal float32
		for j := start; j < end; j++ {
			val := samples[j]
			if val < 0 {
				val = -val
			}
			if val > maxVal {
				maxVal = val
			}
		}

		peaks[i] = maxVal
		if maxVal > globalMax {
			globalMax = maxVal
		}
	}

	if globalMax > 0 {
		for i := range peaks {
			peaks[i] = peaks[i] / globalMax
		}
	}

	return peaks
}
