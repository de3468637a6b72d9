package analyze

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/report"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
	"github.com/cropdx/leafscan/internal/session"
)

type options struct {
	saveImage string
	jsonOut   bool
}

// Command creates a new cobra.Command for analyzing a single leaf photo.
func Command(rt runtimectx.Provider) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "analyze [image]",
		Short: "Analyze a leaf photo",
		Long:  "Stage a leaf photo, submit it to the diagnosis service and print the diagnosis.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rt(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.saveImage, "save-image", "o", "", "Download the image stored by the service to this path")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the diagnosis as JSON")

	return cmd
}

func run(cmd *cobra.Command, rt *runtimectx.Context, path string, opts options) error {
	ctx := cmd.Context()

	img, err := rt.Session.AttachFile(path)
	if err != nil {
		return err
	}
	var spin *report.Spinner
	if !opts.jsonOut {
		label := fmt.Sprintf("Analyzing %s (%d KB)...", img.Name, (img.Size()+1023)/1024)
		if f, ok := cmd.ErrOrStderr().(*os.File); ok && report.IsTerminal(f) {
			spin = report.NewSpinner(f, label)
			spin.Start()
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), label)
		}
	}

	outcome, err := rt.Session.Submit(ctx)
	if spin != nil {
		spin.Stop()
	}
	rt.Metrics.RecordOutcome(outcome)
	if err != nil {
		return err
	}
	if outcome.Status != session.SubmitApplied || outcome.Result == nil {
		return errors.Newf("submission ended as %s", outcome.Status).
			Component("cli").
			Category(errors.CategoryState).
			UserMessage("The analysis was superseded before it completed.").
			Build()
	}
	result := *outcome.Result

	if opts.saveImage != "" {
		if err := saveUpload(cmd, rt, result, opts.saveImage); err != nil {
			return err
		}
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return rt.Printer(cmd.OutOrStdout()).Diagnosis(result)
}

func saveUpload(cmd *cobra.Command, rt *runtimectx.Context, result diagnosis.AnalysisResult, dest string) error {
	img, err := rt.Uploads.Fetch(cmd.Context(), result.Filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, img.Data, 0o644); err != nil {
		return errors.FileError(err, dest, int64(len(img.Data)))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved stored image to %s\n", dest)
	return nil
}
