// Command pagetree-cli exercises the core end to end (open, read, insert,
// remove, find, undo, redo, save, stats) standing in for the out-of-scope
// UI and editor-mode layers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/buffer"
	"github.com/carlerwin/pagetree/pkg/editorcore"
)

var (
	bufferPath string
	verbose    bool
)

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// withBuffer opens bufferPath read-write, runs fn against it, then closes
// it without saving (callers that mutate call b.Save themselves).
func withBuffer(fn func(*buffer.Buffer) error) error {
	ctx := context.Background()
	mgr := editorcore.NewManager(newLogger(), activity.AlwaysIdle)

	var b *buffer.Buffer
	var err error
	if _, statErr := os.Stat(bufferPath); statErr == nil {
		b, err = mgr.OpenFile(ctx, bufferPath)
	} else {
		b, err = mgr.NewEmpty(ctx, bufferPath)
		if err == nil {
			b.SetFileName(bufferPath)
		}
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", bufferPath, err)
	}
	defer mgr.Close(b.ID(), false)

	return fn(b)
}

func main() {
	root := &cobra.Command{
		Use:   "pagetree-cli",
		Short: "Exercise the pagetree document engine from the command line",
	}
	root.PersistentFlags().StringVar(&bufferPath, "file", "", "path to the file to operate on (required)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")
	root.MarkPersistentFlagRequired("file")

	root.AddCommand(
		newReadCmd(),
		newInsertCmd(),
		newRemoveCmd(),
		newFindCmd(),
		newUndoCmd(),
		newRedoCmd(),
		newSaveCmd(),
		newStatsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
