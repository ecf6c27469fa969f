package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/bootstrap"
	"github.com/yourusername/fetch-install-go/internal/domain"
	"github.com/yourusername/fetch-install-go/pkg/logger"
)

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download a file and install it",
	Long: `Download a file in this process, printing progress. A version that was
already downloaded is installed from the existing file.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	registerGetFlags(getCmd)
}

func registerGetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dest", "d", "", "Destination file (default: URL file name in the download directory)")
	cmd.Flags().StringP("version", "V", "", "Version key (default: the URL)")
	cmd.Flags().String("mime", "", "Media type of the file")
	cmd.Flags().String("title", "", "Title shown in notifications")
	cmd.Flags().Bool("wifi-only", false, "Only download over wifi")
	cmd.Flags().Bool("no-install", false, "Leave the file in place instead of installing it")
	cmd.Flags().BoolP("verbose", "v", false, "Log coordinator activity to stderr")
}

func runGet(cmd *cobra.Command, args []string) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if noInstall, _ := cmd.Flags().GetBool("no-install"); noInstall {
		config.Install.Enabled = false
	}

	log := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log = logger.NewDefault()
	}
	defer log.Sync()

	req, err := buildRequest(cmd, args[0], config.Download.DestinationDir)
	if err != nil {
		return err
	}

	components, err := bootstrap.Build(config, log)
	if err != nil {
		return err
	}
	defer components.Close()

	session := newGetSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), components.Installer, components.Notifier)
	dispatcher := app.NewDispatcher(log)
	deps := components.Deps()
	deps.Installer = session
	deps.Messenger = session
	deps.Dispatcher = dispatcher
	coordinator := app.NewCoordinator(deps, session)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator.StartDownload(ctx, req)

	select {
	case err = <-session.done:
	case <-ctx.Done():
		coordinator.Cancel()
		dispatcher.Stop()
		return fmt.Errorf("interrupted")
	}
	if err != nil {
		dispatcher.Stop()
		return err
	}

	select {
	case ok := <-session.installed:
		dispatcher.Stop()
		if !ok {
			return fmt.Errorf("%s could not be installed", domain.ResultPath(session.uri))
		}
	case <-ctx.Done():
		coordinator.Cancel()
		dispatcher.Stop()
		return fmt.Errorf("interrupted")
	}
	return nil
}

func buildRequest(cmd *cobra.Command, rawURL, destinationDir string) (domain.TransferRequest, error) {
	dest, _ := cmd.Flags().GetString("dest")
	if dest == "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return domain.TransferRequest{}, fmt.Errorf("invalid url: %w", err)
		}
		name := path.Base(u.Path)
		if name == "/" || name == "." {
			return domain.TransferRequest{}, fmt.Errorf("cannot derive a file name from %s, use --dest", rawURL)
		}
		dest = filepath.Join(destinationDir, name)
	}
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}

	versionKey, _ := cmd.Flags().GetString("version")
	if versionKey == "" {
		versionKey = rawURL
	}

	req := domain.NewTransferRequest(rawURL, dest, versionKey)
	if mime, _ := cmd.Flags().GetString("mime"); mime != "" {
		req.MimeType = mime
	}
	if title, _ := cmd.Flags().GetString("title"); title != "" {
		req.DisplayTitle = title
	}
	if wifiOnly, _ := cmd.Flags().GetBool("wifi-only"); wifiOnly {
		req.AllowedNetworks = domain.NetworkWifi
	}
	return req, req.Validate()
}

// getSession prints listener callbacks and messages to the terminal and
// reports when the attempt and the install step are over
type getSession struct {
	out       io.Writer
	errOut    io.Writer
	installer domain.Installer
	messenger domain.Messenger

	done      chan error
	installed chan bool
	once      sync.Once
	uri       string
}

func newGetSession(out, errOut io.Writer, installer domain.Installer, messenger domain.Messenger) *getSession {
	return &getSession{
		out:       out,
		errOut:    errOut,
		installer: installer,
		messenger: messenger,
		done:      make(chan error, 1),
		installed: make(chan bool, 1),
	}
}

func (s *getSession) finish(err error) {
	s.once.Do(func() { s.done <- err })
}

func (s *getSession) OnPrepared(req domain.TransferRequest) {
	fmt.Fprintf(s.out, "Downloading %s\n  -> %s\n", req.DisplayTitle, req.DestinationPath)
}

func (s *getSession) OnProgress(totalBytes, bytesSoFar int64, percent int) {
	if totalBytes > 0 {
		fmt.Fprintf(s.out, "\r  %3d%%  %s / %s", percent,
			humanize.Bytes(uint64(bytesSoFar)), humanize.Bytes(uint64(totalBytes)))
		return
	}
	fmt.Fprintf(s.out, "\r  %s", humanize.Bytes(uint64(bytesSoFar)))
}

func (s *getSession) OnSuccess(uri, mimeType string) {
	s.uri = uri
	fmt.Fprintf(s.out, "\nSaved %s (%s)\n", domain.ResultPath(uri), mimeType)
	s.finish(nil)
}

func (s *getSession) OnFailed(err error) {
	fmt.Fprintln(s.out)
	s.finish(err)
}

// Install implements domain.Installer
func (s *getSession) Install(uri, mimeType string) bool {
	ok := s.installer.Install(uri, mimeType)
	s.installed <- ok
	return ok
}

func (s *getSession) ShowMessage(title, message string) {
	fmt.Fprintf(s.errOut, "%s: %s\n", title, message)
	s.messenger.ShowMessage(title, message)
}

func (s *getSession) OfferSettings(message string) {
	fmt.Fprintf(s.errOut, "%s\nEnable it with download.service_enabled: true or FETCHINSTALL_DOWNLOAD_SERVICE_ENABLED=true\n", message)
	s.messenger.OfferSettings(message)
}

func (s *getSession) OfferFallback(url string) {
	fmt.Fprintf(s.errOut, "Open %s in a browser to download it manually\n", url)
	s.messenger.OfferFallback(url)
}
