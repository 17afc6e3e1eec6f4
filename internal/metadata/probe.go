package metadata

import (
	"errors"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Probe reads what the audio file itself can tell us: the playing time in
// whole seconds (0 when the frames cannot be decoded) and the ID3 title.
func Probe(path string) (int, string) {
	seconds := 0
	if dur, err := computeMP3Duration(path); err == nil && dur > 0 {
		seconds = int(math.Round(dur))
	}
	return seconds, readTitle(path)
}

func readTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Title())
}

func computeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
