package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	ntfs "www.velocidex.com/golang/go-ntfs/parser"

	ewf "github.com/dfirkit/go-ewf"
)

var (
	debug   bool
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "ewfimg",
		Short:         "Read, verify and produce EWF (E01) forensic images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newInfoCmd(), newVerifyCmd(), newAcquireCmd(), newLsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ewfimg:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func openImage(path string) (*ewf.Handle, error) {
	ok, err := ewf.CheckSignature(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not an EWF segment file", path)
	}
	return ewf.Open([]string{path}, ewf.AccessRead, ewf.WithLogger(newLogger()))
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image.E01>",
		Short: "Print image geometry and acquiry metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			if err := h.ParseHeaderValues(ewf.DateFormatISO8601); err != nil {
				return err
			}

			size, _ := h.GetMediaSize()
			chunkSize, _ := h.GetChunkSize()
			sectors, _ := h.GetAmountOfSectors()
			mediaType, _ := h.GetMediaType()
			guid, _ := h.GetGUID()

			fmt.Printf("Media size:\t%d bytes\n", size)
			fmt.Printf("Sectors:\t%d\n", sectors)
			fmt.Printf("Chunk size:\t%d bytes\n", chunkSize)
			fmt.Printf("Media type:\t%s\n", mediaType)
			fmt.Printf("GUID:\t\t%s\n", hex.EncodeToString(guid[:]))
			if md5Hash, err := h.GetMD5Hash(); err == nil {
				fmt.Printf("MD5:\t\t%s\n", hex.EncodeToString(md5Hash))
			}
			if sha1Hash, err := h.GetSHA1Hash(); err == nil {
				fmt.Printf("SHA1:\t\t%s\n", hex.EncodeToString(sha1Hash))
			}

			fmt.Println("\nAcquiry metadata:")
			for k, v := range h.Metadata() {
				fmt.Printf("  %s: %v\n", k, v)
			}

			if n, _ := h.GetAmountOfAcquiryErrors(); n > 0 {
				fmt.Printf("\nAcquisition errors: %d\n", n)
				for i := 0; i < int(n); i++ {
					e, _ := h.GetAcquiryError(i)
					fmt.Printf("  sector %d, %d sectors\n", e.Sector, e.AmountOfSectors)
				}
			}

			if verbose {
				for _, seg := range h.SegmentFiles() {
					fmt.Printf("\nSegment %s:\n", seg.Path)
					spew.Dump(seg.Sections)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump section descriptors")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <image.E01>",
		Short: "Re-read the full media and compare against the stored MD5",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			start := time.Now()
			hasher := md5.New()
			if _, err := io.CopyBuffer(hasher, io.NewSectionReader(h, 0, h.Size()), make([]byte, 1024*1024)); err != nil {
				return err
			}
			computed := hasher.Sum(nil)

			stored, err := h.GetMD5Hash()
			if err != nil {
				return fmt.Errorf("image carries no MD5: %w", err)
			}

			fmt.Printf("Read %d bytes in %s\n", h.Size(), time.Since(start).Round(time.Millisecond))
			fmt.Printf("Stored MD5:\t%s\n", hex.EncodeToString(stored))
			fmt.Printf("Computed MD5:\t%s\n", hex.EncodeToString(computed))

			if n, _ := h.GetAmountOfCRCErrors(); n > 0 {
				fmt.Printf("Chunk checksum errors: %d\n", n)
			}

			if !bytes.Equal(stored, computed) {
				return fmt.Errorf("MD5 mismatch")
			}
			fmt.Println("Verification passed")
			return nil
		},
	}
}

func newAcquireCmd() *cobra.Command {
	var (
		formatName  string
		compression string
		segmentSize int64
		caseNumber  string
		examiner    string
		evidence    string
		description string
		notes       string
	)

	cmd := &cobra.Command{
		Use:   "acquire <source> <target.E01>",
		Short: "Image a raw source file or device into an EWF segment set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			st, err := src.Stat()
			if err != nil {
				return err
			}

			format, err := ewf.ParseFormat(formatName)
			if err != nil {
				return err
			}

			h, err := ewf.Open([]string{args[1]}, ewf.AccessWrite, ewf.WithLogger(newLogger()))
			if err != nil {
				return err
			}

			if err := h.SetWriteFormat(format); err != nil {
				return err
			}
			if segmentSize > 0 {
				if err := h.SetWriteSegmentFileSize(segmentSize); err != nil {
					return err
				}
			}

			level := ewf.CompressionNone
			switch compression {
			case "none":
			case "good":
				level = ewf.CompressionGood
			case "best":
				level = ewf.CompressionBest
			default:
				return fmt.Errorf("unknown compression %q", compression)
			}
			if err := h.SetWriteCompressionValues(level, true); err != nil {
				return err
			}
			if err := h.SetWriteInputSize(st.Size()); err != nil {
				return err
			}

			for id, v := range map[ewf.EWFMediaInfo]string{
				ewf.EWF_HEADER_VALUES_INDEX_CASE_NUMBER:     caseNumber,
				ewf.EWF_HEADER_VALUES_INDEX_EXAMINER_NAME:   examiner,
				ewf.EWF_HEADER_VALUES_INDEX_EVIDENCE_NUMBER: evidence,
				ewf.EWF_HEADER_VALUES_INDEX_DESCRIPTION:     description,
				ewf.EWF_HEADER_VALUES_INDEX_NOTES:           notes,
			} {
				if v != "" {
					if err := h.SetHeaderValue(string(id), v); err != nil {
						return err
					}
				}
			}

			start := time.Now()
			written, err := io.CopyBuffer(h, src, make([]byte, 1024*1024))
			if err != nil {
				h.Close()
				return err
			}
			if err := h.Close(); err != nil {
				return err
			}

			fmt.Printf("Acquired %d bytes in %s\n", written, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "encase5", "output format (encase1..6, smart, ftk, linen, ewfx)")
	cmd.Flags().StringVar(&compression, "compression", "good", "compression level (none, good, best)")
	cmd.Flags().Int64Var(&segmentSize, "segment-size", 0, "maximum bytes per segment file")
	cmd.Flags().StringVar(&caseNumber, "case-number", "", "case number header value")
	cmd.Flags().StringVar(&examiner, "examiner", "", "examiner name header value")
	cmd.Flags().StringVar(&evidence, "evidence-number", "", "evidence number header value")
	cmd.Flags().StringVar(&description, "description", "", "description header value")
	cmd.Flags().StringVar(&notes, "notes", "", "notes header value")
	return cmd
}

func newLsCmd() *cobra.Command {
	var offset int64

	cmd := &cobra.Command{
		Use:   "ls <image.E01> [path]",
		Short: "List a directory of the NTFS volume inside the image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openImage(args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			paged, err := ntfs.NewPagedReader(h, 4096, 65536)
			if err != nil {
				return err
			}

			ntfsCtx, err := ntfs.GetNTFSContext(paged, offset)
			if err != nil {
				return fmt.Errorf("no NTFS volume at offset %d: %w", offset, err)
			}

			dir, err := ntfsCtx.GetMFT(5)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				dir, err = dir.Open(ntfsCtx, args[1])
				if err != nil {
					return err
				}
			}

			for _, info := range ntfs.ListDir(ntfsCtx, dir) {
				kind := "-"
				if info.IsDir {
					kind = "d"
				}
				fmt.Printf("%s %12d %s %s\n", kind, info.Size, info.Mtime.Format("2006-01-02 15:04:05"), info.Name)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset of the NTFS volume within the image")
	return cmd
}
