package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heapscan/internal/heap/snapfile"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/utils"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot>",
	Short: "Print the header of a snapshot file",
	Long:  `Print the layout, metadata and object counts of a snapshot without decoding its objects.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.CodeSnapshotNotFound, "snapshot not found", err)
		}
		return err
	}
	defer f.Close()

	hdr, codec, err := snapfile.ReadHeader(f)
	if err != nil {
		return err
	}
	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	w := cmd.OutOrStdout()
	headerColor.Fprintf(w, "=== %s ===\n", path)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File size:\t%s\n", utils.FormatBytes(size))
	fmt.Fprintf(tw, "Compression:\t%s\n", codec)
	fmt.Fprintf(tw, "Schema:\t%d\n", hdr.Schema)
	if hdr.Info.Name != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", hdr.Info.Name)
	}
	if hdr.Info.JVMVersion != "" {
		fmt.Fprintf(tw, "JVM:\t%s\n", hdr.Info.JVMVersion)
	}
	if !hdr.Info.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", hdr.Info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(tw, "Pointer size:\t%d\n", hdr.Layout.PointerSize)
	fmt.Fprintf(tw, "Object header:\t%d\n", hdr.Layout.ObjectHeaderSize)
	fmt.Fprintf(tw, "Alignment:\t%d\n", hdr.Layout.Alignment)
	fmt.Fprintf(tw, "Narrow pointers:\t%t\n", hdr.Layout.NarrowPointers)
	fmt.Fprintf(tw, "Classes:\t%d\n", hdr.NumClasses)
	fmt.Fprintf(tw, "Objects:\t%d\n", hdr.NumObjects)
	fmt.Fprintf(tw, "GC roots:\t%d\n", hdr.NumRoots)
	return tw.Flush()
}
