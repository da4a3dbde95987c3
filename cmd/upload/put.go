package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fanvue/fanvue-app-starter/internal/upload"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPut,
	}

	cmd.Flags().String("media-type", "image", "declared media type")
	cmd.Flags().String("name", "", "filename sent to the backend (default: base name of the file)")
	cmd.Flags().Int64("part-size", upload.DefaultPartSize, "part size in bytes")
	cmd.Flags().Int("concurrency", 1, "parts in flight at once")

	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	ctx := cmd.Context()

	token := accessToken()
	if token == "" {
		return fmt.Errorf("no access token: pass --token or set %s", tokenEnvVar)
	}

	mediaType, _ := cmd.Flags().GetString("media-type")
	name, _ := cmd.Flags().GetString("name")
	partSize, _ := cmd.Flags().GetInt64("part-size")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}
	if name == "" {
		name = filepath.Base(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	logger := buildLogger()
	out := cmd.ErrOrStderr()
	orch := upload.New(newAPIClient(logger).WithToken(token), logger,
		upload.WithPartSize(partSize),
		upload.WithConcurrency(concurrency),
		upload.WithHTTPClient(partPutClient()),
		upload.WithProgress(func(e upload.Event) {
			if !flagQuiet && e.Phase != upload.PhaseFailed && e.Phase != upload.PhaseCancelled {
				fmt.Fprintln(out, e.String())
			}
		}),
	)

	res, err := orch.Run(ctx, upload.Source{
		Name:      name,
		MediaType: mediaType,
		Size:      fi.Size(),
		Reader:    f,
	})
	if err != nil {
		if errors.Is(err, upload.ErrCancelled) {
			return err
		}
		return fmt.Errorf("uploading %q: %w", localPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "media_uuid=%s status=%s\n", res.MediaUUID, res.ProcessingStatus)
	if res.ProcessedURL != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.ProcessedURL)
	}
	return nil
}
