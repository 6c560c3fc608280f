package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/zoobzio/fieldz"
)

var decodeZstd bool

func init() {
	decodeCmd.Flags().BoolVar(&decodeZstd, "zstd", false, "input is a zstd stream")
	rootCmd.AddCommand(decodeCmd)
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Check a stream of documents and print one line per event",
	Long:  "Reads documents from file, or stdin when no file or - is given. Fails on the first document that does not parse.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	if decodeZstd {
		dec, err := zstd.NewReader(in)
		if err != nil {
			return fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		in = dec
	}

	out := cmd.OutOrStdout()
	count := 0
	err := fieldz.ReadDocuments(in, func(doc fieldz.Document) error {
		count++
		_, err := fmt.Fprintln(out, summarize(doc))
		return err
	})
	if err != nil {
		return fmt.Errorf("document %d: %w", count+1, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d documents\n", count)
	return nil
}

// summarize renders doc as
// "LEVEL target name [outer{k=v} > inner{k=v}] k=v".
func summarize(doc fieldz.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %s %s [", doc.Level, doc.Target, doc.Name)
	for i, span := range doc.Spans {
		if i > 0 {
			b.WriteString(" > ")
		}
		b.WriteString(span.Name)
		b.WriteByte('{')
		writeFields(&b, span.Fields)
		b.WriteByte('}')
	}
	b.WriteByte(']')
	if doc.Fields.Len() > 0 {
		b.WriteByte(' ')
		writeFields(&b, doc.Fields)
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields *fieldz.Fields) {
	for i, key := range fields.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		v, _ := fields.Get(key)
		fmt.Fprintf(b, "%s=%s", key, v)
	}
}
