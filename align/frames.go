package align

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FrameSource supplies the external frame listings: how many frames each clip
// has, and which clips a scan covers.
type FrameSource interface {
	FrameCount(clip string) (int, error)
	ScanClips(scan string) ([]string, error)
}

// FrameDirectory reads frame listings from disk. Each clip's frames live in
// FramesRoot/<clip>; the clips of a scan are the entries of
// ScanRoot/<scan>/database.
type FrameDirectory struct {
	FramesRoot string
	ScanRoot   string
}

// FrameCount returns the number of entries in the clip's frame directory.
func (d FrameDirectory) FrameCount(clip string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(d.FramesRoot, clip))
	if err != nil {
		return 0, fmt.Errorf("listing frames of clip %s: %w", clip, err)
	}
	return len(entries), nil
}

// ScanClips returns the clip names registered in a scan's database directory.
func (d FrameDirectory) ScanClips(scan string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.ScanRoot, scan, "database"))
	if err != nil {
		return nil, fmt.Errorf("listing clips of scan %s: %w", scan, err)
	}
	clips := make([]string, 0, len(entries))
	for _, e := range entries {
		clips = append(clips, e.Name())
	}
	sort.Strings(clips)
	return clips, nil
}

// FrameNamer maps a clip and frame index to the frame identifier used as a
// PoseMap key.
type FrameNamer func(clip string, index int) string

// ClipFrameName names frames in the clip pass: color_0000042.jpg.
func ClipFrameName(_ string, index int) string {
	return fmt.Sprintf("color_%07d.jpg", index)
}

// ScanFrameName names frames in the scan pass: <clip>/color_0000042.jpg.
func ScanFrameName(clip string, index int) string {
	return clip + "/" + ClipFrameName(clip, index)
}
