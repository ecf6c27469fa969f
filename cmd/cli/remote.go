package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// remoteTarget mirrors the target snapshot returned by the server
type remoteTarget struct {
	Target     string    `json:"target"`
	State      string    `json:"state"`
	Handle     int64     `json:"handle"`
	TotalBytes int64     `json:"total_bytes"`
	BytesSoFar int64     `json:"bytes_so_far"`
	Percent    int       `json:"percent"`
	URI        string    `json:"uri"`
	MimeType   string    `json:"mime_type"`
	Error      string    `json:"error"`
	UpdatedAt  time.Time `json:"updated_at"`
	Request    struct {
		SourceURL       string `json:"source_url"`
		DestinationPath string `json:"destination_path"`
	} `json:"request"`
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Control downloads on a fetch-install server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ensureServer(cmd)
	},
}

var remoteStartCmd = &cobra.Command{
	Use:   "start [url]",
	Short: "Start a download on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]string{"url": args[0]}
		for flag, key := range map[string]string{
			"version": "version_key",
			"dest":    "destination",
			"mime":    "mime_type",
			"title":   "title",
			"network": "network",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				payload[key] = v
			}
		}
		if payload["version_key"] == "" {
			payload["version_key"] = args[0]
		}

		var target remoteTarget
		if err := doJSON(http.MethodPost, "/api/v1/transfers", payload, http.StatusAccepted, &target); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Transfer started\nTarget: %s\nState:  %s\n", target.Target, target.State)
		return nil
	},
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status [target]",
	Short: "Show the state of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var t remoteTarget
		if err := doJSON(http.MethodGet, "/api/v1/transfers/"+url.PathEscape(args[0]), nil, http.StatusOK, &t); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Target Details:\n")
		fmt.Fprintf(out, "  Target:   %s\n", t.Target)
		fmt.Fprintf(out, "  URL:      %s\n", t.Request.SourceURL)
		fmt.Fprintf(out, "  State:    %s\n", t.State)
		fmt.Fprintf(out, "  Progress: %d%% (%s / %s)\n", t.Percent,
			humanize.Bytes(uint64(t.BytesSoFar)), humanize.Bytes(uint64(t.TotalBytes)))
		fmt.Fprintf(out, "  Updated:  %s\n", humanize.Time(t.UpdatedAt))
		if t.URI != "" {
			fmt.Fprintf(out, "  File:     %s (%s)\n", t.URI, t.MimeType)
		}
		if t.Error != "" {
			fmt.Fprintf(out, "  Error:    %s\n", t.Error)
		}
		return nil
	},
}

var remoteCancelCmd = &cobra.Command{
	Use:   "cancel [target]",
	Short: "Cancel the download of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doJSON(http.MethodPost, "/api/v1/transfers/"+url.PathEscape(args[0])+"/cancel", nil, http.StatusOK, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Transfer cancelled")
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List targets known to the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/transfers"
		if state, _ := cmd.Flags().GetString("state"); state != "" {
			path += "?state=" + url.QueryEscape(state)
		}

		var targets []remoteTarget
		if err := doJSON(http.MethodGet, path, nil, http.StatusOK, &targets); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TARGET\tSTATE\tPROGRESS\tURL")
		for _, t := range targets {
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\n",
				truncate(t.Target, 24),
				t.State,
				t.Percent,
				truncate(t.Request.SourceURL, 50))
		}
		return w.Flush()
	},
}

func init() {
	remoteStartCmd.Flags().StringP("version", "V", "", "Version key (default: the URL)")
	remoteStartCmd.Flags().StringP("dest", "d", "", "Destination file on the server")
	remoteStartCmd.Flags().String("mime", "", "Media type of the file")
	remoteStartCmd.Flags().String("title", "", "Title shown in notifications")
	remoteStartCmd.Flags().String("network", "", "Allowed networks (wifi, mobile, any)")
	remoteListCmd.Flags().StringP("state", "s", "", "Filter by state")

	remoteCmd.AddCommand(remoteStartCmd)
	remoteCmd.AddCommand(remoteStatusCmd)
	remoteCmd.AddCommand(remoteCancelCmd)
	remoteCmd.AddCommand(remoteListCmd)
}

// doJSON sends body as JSON and decodes the response into out when the
// status matches want
func doJSON(method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
