package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"defaulter/internal/daemonrun"
	"defaulter/internal/language"
	"defaulter/internal/selection"
	"defaulter/internal/workflow"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var library string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "preview <ratingKey>",
		Short: "Show the tracks of one item and the plan each group would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(session *daemonrun.Session) error {
				preview, err := session.Manager.Preview(cmd.Context(), args[0], library)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, preview)
				}
				return printPreview(cmd.OutOrStdout(), preview)
			})
		},
	}

	cmd.Flags().StringVar(&library, "library", "", "Only evaluate the rules of this library")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the preview as JSON")
	return cmd
}

func printPreview(out io.Writer, preview *workflow.Preview) error {
	part := preview.Part
	fmt.Fprintf(out, "%s (ratingKey=%s, part=%d)\n", dash(part.Title), part.RatingKey, part.PartID)

	trackRows := make([][]string, 0, len(part.Tracks))
	for _, track := range part.Tracks {
		trackRows = append(trackRows, []string{
			strconv.FormatInt(track.ID, 10),
			titleLabel(string(track.Kind)),
			trackLanguage(track),
			dash(track.Codec),
			dash(firstLabel(track)),
			yesNo(track.Selected),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Kind", "Language", "Codec", "Title", "Selected"},
		trackRows,
		[]columnAlignment{alignRight},
	))

	planRows := make([][]string, 0, len(preview.Groups))
	for _, group := range preview.Groups {
		row := []string{group.Library, group.Group, "", ""}
		switch {
		case group.Error != "":
			row[2] = "error: " + group.Error
		case group.Plan == nil:
			row[2], row[3] = "no change", "no change"
		default:
			row[2] = formatSelection(group.Plan.Audio)
			row[3] = formatSelection(group.Plan.Subtitles)
		}
		planRows = append(planRows, row)
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"Library", "Group", "Audio", "Subtitles"}, planRows, nil))
	return err
}

// trackLanguage prefers the server's language name and falls back to the
// English name of the ISO code.
func trackLanguage(track selection.Track) string {
	if track.Language != "" {
		return track.Language
	}
	if code, ok := track.Field("languageCode"); ok {
		return language.DisplayName(code)
	}
	return "-"
}

func firstLabel(track selection.Track) string {
	if track.ExtendedDisplayTitle != "" {
		return track.ExtendedDisplayTitle
	}
	return track.DisplayTitle
}
