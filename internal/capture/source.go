package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/detection"
	"github.com/tphakala/killclip/internal/errors"
)

// maxLineSize bounds one frame line of the JSON-lines stream.
const maxLineSize = 1 << 20

// Frame is one captured frame with the text recognized on it.
type Frame struct {
	Number    uint64
	Offset    time.Duration // capture-clock offset from the start of the recording
	WallClock time.Time
	Samples   []detection.RawSample
}

// FrameSource yields frames in capture order. Next returns io.EOF after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// frameLine is the wire form of one frame in a JSON-lines stream.
type frameLine struct {
	Frame     uint64       `json:"frame"`
	Offset    float64      `json:"offset"`
	WallClock float64      `json:"wallclock,omitempty"`
	Samples   []sampleLine `json:"samples"`
}

type sampleLine struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Box        *conf.Region `json:"box,omitempty"`
}

// JSONLSource replays recognizer output stored as JSON lines, one frame per line:
//
//	{"frame":42,"offset":1.4,"samples":[{"text":"ELIMINATED","confidence":0.93}]}
//
// Frames without a wallclock field are stamped startedAt + offset.
type JSONLSource struct {
	scanner   *bufio.Scanner
	startedAt time.Time
	line      int
	last      time.Duration
}

// NewJSONLSource reads frames from r.
func NewJSONLSource(r io.Reader, startedAt time.Time) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &JSONLSource{scanner: scanner, startedAt: startedAt}
}

// Next implements FrameSource. Blank lines are skipped. Offsets must not decrease.
func (s *JSONLSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Frame{}, s.lineError(err)
			}
			return Frame{}, io.EOF
		}
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var fl frameLine
		if err := json.Unmarshal(raw, &fl); err != nil {
			return Frame{}, s.lineError(err)
		}
		if math.IsNaN(fl.Offset) || math.IsInf(fl.Offset, 0) || fl.Offset < 0 {
			return Frame{}, s.lineError(errors.Newf("invalid offset %v", fl.Offset).Build())
		}
		offset := time.Duration(fl.Offset * float64(time.Second))
		if offset < s.last {
			return Frame{}, s.lineError(errors.Newf("offset %s precedes %s", offset, s.last).Build())
		}
		s.last = offset

		f := Frame{
			Number:    fl.Frame,
			Offset:    offset,
			WallClock: s.startedAt.Add(offset),
			Samples:   make([]detection.RawSample, 0, len(fl.Samples)),
		}
		if fl.WallClock > 0 {
			f.WallClock = time.UnixMicro(int64(fl.WallClock * 1e6))
		}
		for _, sl := range fl.Samples {
			f.Samples = append(f.Samples, detection.RawSample{
				Text:          sl.Text,
				Confidence:    sl.Confidence,
				CaptureOffset: offset,
				Box:           sl.Box,
			})
		}
		return f, nil
	}
}

func (s *JSONLSource) lineError(err error) error {
	return errors.New(err).
		Component("capture").
		Category(errors.CategoryValidation).
		Context("line", s.line).
		Build()
}
