package pipeline

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/quillscribe/quill/pkg/provider/stt"
)

// boundarySimilarity is the Jaro-Winkler score above which the first span of
// a window is considered a re-recognition of the previous window's last span.
const boundarySimilarity = 0.90

// draft is a stitched per-window transcript piece, ready to be appended as a
// segment.
type draft struct {
	startMs    int64
	endMs      int64
	text       string
	confidence float64
}

// Stitcher removes the overlap region from consecutive window results for a
// single audio source. Each window re-recognizes the tail of its predecessor;
// the stitcher drops spans already covered by previously emitted text, then
// applies a fuzzy boundary check for spans that straddle the cut point.
//
// Not safe for concurrent use; the coordinator serializes calls per source.
type Stitcher struct {
	emittedEndMs int64
	tailText     string
}

// NewStitcher returns a stitcher with no emitted history.
func NewStitcher() *Stitcher {
	return &Stitcher{}
}

// Break clears the fuzzy-boundary history after a gap. Offsets keep counting
// on the same capture timeline, so the emitted-end watermark survives.
func (st *Stitcher) Break() {
	st.tailText = ""
}

// Stitch trims a window's result against what has already been emitted and
// returns the surviving piece. ok is false when the window adds no new text.
func (st *Stitcher) Stitch(w Window, res *stt.Result) (draft, bool) {
	spans := res.Spans
	if len(spans) == 0 {
		text := strings.TrimSpace(res.Text)
		if text == "" {
			return draft{}, false
		}
		spans = []stt.Span{{Start: w.StartOffset, End: w.StartOffset + w.Duration, Text: text}}
	}

	kept := spans[:0:0]
	for _, sp := range spans {
		if sp.End.Milliseconds() <= st.emittedEndMs {
			continue
		}
		if strings.TrimSpace(sp.Text) == "" {
			continue
		}
		kept = append(kept, sp)
	}

	if len(kept) > 0 && st.tailText != "" && similarText(kept[0].Text, st.tailText) {
		kept = kept[1:]
	}
	if len(kept) == 0 {
		return draft{}, false
	}

	parts := make([]string, 0, len(kept))
	for _, sp := range kept {
		parts = append(parts, strings.TrimSpace(sp.Text))
	}

	startMs := max(kept[0].Start.Milliseconds(), st.emittedEndMs)
	endMs := kept[len(kept)-1].End.Milliseconds()
	if endMs <= startMs {
		endMs = startMs + 1
	}

	st.emittedEndMs = endMs
	st.tailText = kept[len(kept)-1].Text

	return draft{
		startMs:    startMs,
		endMs:      endMs,
		text:       strings.Join(parts, " "),
		confidence: res.Confidence,
	}, true
}

// EmittedEnd returns the end offset of the last emitted text in milliseconds.
func (st *Stitcher) EmittedEnd() int64 {
	return st.emittedEndMs
}

// MarkCovered advances the emitted-end watermark without emitting text, used
// when a window's time range is written out as a gap segment.
func (st *Stitcher) MarkCovered(end time.Duration) {
	if ms := end.Milliseconds(); ms > st.emittedEndMs {
		st.emittedEndMs = ms
	}
}

func similarText(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= boundarySimilarity
}
