package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sitaware/internal/protocol"
	"github.com/ppiankov/sitaware/internal/session"
	"github.com/ppiankov/sitaware/internal/store"
)

var (
	transcriptFormat string
	transcriptOut    string
)

func init() {
	rootCmd.AddCommand(transcriptCmd)
	transcriptCmd.AddCommand(transcriptListCmd)
	transcriptCmd.AddCommand(transcriptShowCmd)
	transcriptListCmd.Flags().StringVarP(&transcriptFormat, "format", "f", "text", "Output format (text|json)")
	transcriptShowCmd.Flags().StringVarP(&transcriptOut, "out", "o", "", "Write the transcript to this JSON file instead of stdout")
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect stored session transcripts",
	Long:  "Commands for listing and exporting session transcripts kept in the sqlite store.",
}

var transcriptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTranscriptList,
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the turns of a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptShow,
}

func openStore() (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, &protocol.ConfigError{Field: "store.path", Err: errors.New("no transcript store configured")}
	}
	return store.Open(cfg.Store.Path)
}

func runTranscriptList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if transcriptFormat == "json" {
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal sessions: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREATED\tTURNS\tMODEL")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionID, s.CreatedAt.Format(time.RFC3339), s.TurnCount, s.Model)
	}
	return w.Flush()
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sc, err := st.Restore(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if transcriptOut != "" {
		if err := session.WriteJSON(transcriptOut, sc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d turns to %s\n", sc.Len(), transcriptOut)
		return nil
	}

	data, err := json.MarshalIndent(sc.Turns(), "", "    ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
