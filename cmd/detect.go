package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courseops/subaudit/internal/detect"
	"github.com/courseops/subaudit/internal/report"
)

var (
	detectOutDir string
	detectXLSX   bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect exact-duplicate submissions in the collected data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// All stored records must be readable before any report artifact
		// is produced; a partial read would silently understate duplicates.
		records, err := st.LoadAll(ctx)
		if err != nil {
			return eris.Wrap(err, "load submissions")
		}
		if len(records) == 0 {
			return eris.New("detect: no submissions collected yet")
		}

		result := detect.Detect(records)
		rep := report.Build(result, records)

		zap.L().Info("detection complete",
			zap.Int("records", len(records)),
			zap.Int("problems", len(result.TotalByProblem)),
			zap.Int("groups", result.GroupCount()),
		)

		outDir := detectOutDir
		if outDir == "" {
			outDir = cfg.Report.Dir
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return eris.Wrap(err, "create report dir")
		}

		if err := writeArtifact(filepath.Join(outDir, "summary.csv"), rep.WriteSummaryCSV); err != nil {
			return err
		}
		if err := writeArtifact(filepath.Join(outDir, "groups.csv"), rep.WriteGroupsCSV); err != nil {
			return err
		}
		if err := writeArtifact(filepath.Join(outDir, "report.txt"), rep.WriteText); err != nil {
			return err
		}
		if detectXLSX {
			if err := rep.WriteXLSX(filepath.Join(outDir, "report.xlsx")); err != nil {
				return err
			}
		}

		zap.L().Info("reports written", zap.String("dir", outDir))
		return nil
	},
}

func writeArtifact(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	detectCmd.Flags().StringVar(&detectOutDir, "out", "", "report output directory (default from config)")
	detectCmd.Flags().BoolVar(&detectXLSX, "xlsx", false, "also write an xlsx workbook")
	rootCmd.AddCommand(detectCmd)
}
