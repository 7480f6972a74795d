package cleanup

import (
	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// FillerSpans returns the merged word spans of every filler command in det.
// Blank words never match a filler, so resolving a timeline that was already
// cleaned yields nothing.
func FillerSpans(det command.Detection) []timeline.Span {
	fillers := det.Of(command.Filler)
	if len(fillers) == 0 {
		return nil
	}
	spans := make([]timeline.Span, len(fillers))
	for i, c := range fillers {
		spans[i] = c.Trigger()
	}
	return timeline.MergeSpans(spans)
}
