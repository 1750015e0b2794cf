package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/buffer"
)

func newReadCmd() *cobra.Command {
	var offset, count uint64
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read bytes starting at an offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				var out []byte
				n, err := b.Read(offset, int(count), &out)
				if err != nil {
					return err
				}
				fmt.Printf("%d bytes: %q\n", n, out)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "byte offset to read from")
	cmd.Flags().Uint64Var(&count, "count", 64, "number of bytes to read")
	return cmd
}

func newInsertCmd() *cobra.Command {
	var offset uint64
	var text string
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert text at an offset and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				n, err := b.Insert(offset, []byte(text))
				if err != nil {
					return err
				}
				fmt.Printf("inserted %d bytes at %d\n", n, offset)
				return b.Save(context.Background(), activity.AlwaysIdle)
			})
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "byte offset to insert at")
	cmd.Flags().StringVar(&text, "text", "", "text to insert")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var offset uint64
	var count int
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove bytes starting at an offset and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				var removed []byte
				n, err := b.Remove(offset, count, &removed)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d bytes: %q\n", n, removed)
				return b.Save(context.Background(), activity.AlwaysIdle)
			})
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "byte offset to remove from")
	cmd.Flags().IntVar(&count, "count", 1, "number of bytes to remove")
	return cmd
}

func newFindCmd() *cobra.Command {
	var needle string
	var from, to uint64
	var reverse bool
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find a byte pattern in [from, to)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				if to == 0 {
					to = b.Size()
				}
				var off uint64
				var ok bool
				var err error
				if reverse {
					off, ok, err = b.FindReverse([]byte(needle), from, to)
				} else {
					off, ok, err = b.Find([]byte(needle), from, to)
				}
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("no match")
					return nil
				}
				fmt.Printf("match at offset %d\n", off)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&needle, "pattern", "", "byte pattern to search for")
	cmd.Flags().Uint64Var(&from, "from", 0, "start of search range")
	cmd.Flags().Uint64Var(&to, "to", 0, "end of search range (0 = document end)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "search backward")
	cmd.MarkFlagRequired("pattern")
	return cmd
}

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the last change and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				offset, ok, err := b.Undo()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("nothing to undo")
					return nil
				}
				fmt.Printf("undone, cursor at %d\n", offset)
				return b.Save(context.Background(), activity.AlwaysIdle)
			})
		},
	}
}

func newRedoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Redo the last undone change and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				offset, ok, err := b.Redo()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("nothing to redo")
					return nil
				}
				fmt.Printf("redone, cursor at %d\n", offset)
				return b.Save(context.Background(), activity.AlwaysIdle)
			})
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Flush the buffer to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				return b.Save(context.Background(), activity.AlwaysIdle)
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print document size and byte-frequency counts for newline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuffer(func(b *buffer.Buffer) error {
				fmt.Printf("size: %d bytes\n", b.Size())
				counts := b.Stats()
				fmt.Printf("newline count: %d\n", counts['\n'])
				fmt.Printf("nr_changes: %d\n", b.NrChanges())
				return nil
			})
		},
	}
}
