// Package engine wires the Image Reader, Tree Walker, and History
// Classifier together into the single pipeline both the CLI and the
// end-to-end tests drive.
package engine

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/baharrsalmann/filesystem-recovery/internal/history"
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
	"github.com/baharrsalmann/filesystem-recovery/internal/walk"
)

// Result is the complete output of one run of the engine over an image.
type Result struct {
	TreeLines []string
	Actions   []history.Action
}

// Run opens r as an ext2/3/4 image, walks its directory tree salvaging
// ghost entries, and classifies a plausible history from the resulting
// inode index.
func Run(r io.ReaderAt, size int64, log *logrus.Entry) (Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	img, err := image.Open(r, size, log)
	if err != nil {
		return Result{}, err
	}

	w := walk.New(img, log)
	lines, idx, err := w.Walk()
	if err != nil {
		return Result{}, fmt.Errorf("walking directory tree: %w", err)
	}

	actions := history.Classify(idx, img, log)

	return Result{TreeLines: lines, Actions: actions}, nil
}
