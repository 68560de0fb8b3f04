package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/baharrsalmann/filesystem-recovery/internal/engine"
	"github.com/baharrsalmann/filesystem-recovery/internal/history"
	"github.com/baharrsalmann/filesystem-recovery/internal/image"
)

// run implements the histfs verb end to end: open the image, run the
// engine pipeline, and write the two output files spec.md §6 describes.
func run(imagePath, statePath, historyPath string, log *logrus.Entry) error {
	imgFile, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("%w: opening image: %v", image.ErrImageIO, err)
	}
	defer imgFile.Close()

	info, err := imgFile.Stat()
	if err != nil {
		return fmt.Errorf("%w: statting image: %v", image.ErrImageIO, err)
	}

	result, err := engine.Run(imgFile, info.Size(), log.WithField("image", imagePath))
	if err != nil {
		return err
	}

	stateOut, err := os.Create(statePath)
	if err != nil {
		return fmt.Errorf("creating state output %q: %w", statePath, err)
	}
	defer stateOut.Close()
	if err := history.EmitTree(stateOut, result.TreeLines); err != nil {
		return err
	}

	historyOut, err := os.Create(historyPath)
	if err != nil {
		return fmt.Errorf("creating history output %q: %w", historyPath, err)
	}
	defer historyOut.Close()
	if err := history.EmitActions(historyOut, result.Actions); err != nil {
		return err
	}

	return nil
}
