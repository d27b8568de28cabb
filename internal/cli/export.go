package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"task-manager/internal/models"
)

var csvHeader = []string{"id", "title", "description", "status", "tags", "created_at", "updated_at"}

func encodeTasks(format string, tasks []models.Task) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tasks); err != nil {
			return nil, err
		}
	case "csv":
		w := csv.NewWriter(&buf)
		_ = w.Write(csvHeader)
		for _, t := range tasks {
			_ = w.Write([]string{
				t.ID, t.Title, t.Description, string(t.Status),
				strings.Join(t.Tags, ";"),
				t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q (json|csv)", format)
	}
	return buf.Bytes(), nil
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your tasks as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadView(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			data, err := encodeTasks(format, c.Tasks())
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := atomic.WriteFile(outFile, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tasks exported to %s in %s format\n", outFile, format)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "export format (json|csv)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	return cmd
}
