package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Renedz21/client/internal/api"
	"github.com/Renedz21/client/internal/app"
	"github.com/Renedz21/client/internal/logging"
	"github.com/Renedz21/client/internal/upload"

	"github.com/spf13/cobra"
)

func uploadCmd(opts *options) *cobra.Command {
	var (
		concurrency int
		timeout     time.Duration
		transport   string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Validate and upload local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("concurrency") {
				cfg.UploadConcurrency = concurrency
			}
			if cmd.Flags().Changed("timeout") {
				cfg.UploadTimeout = timeout
			}
			if transport != "" {
				cfg.UploadTransport = transport
			}

			// 日志写到 stderr，stdout 只输出进度与结果。
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			tr, err := app.NewTransport(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			session, err := api.NewSession(api.SessionConfig{
				Rules:       cfg.UploadRules(),
				Transport:   tr,
				Broker:      upload.NewBroker(1024),
				Logger:      logger,
				Concurrency: cfg.UploadConcurrency,
				Timeout:     cfg.UploadTimeout,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			files, err := readFiles(args)
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), session, files, cmd.OutOrStdout(), !quiet)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum parallel uploads, 0 for unlimited")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-file upload timeout, 0 for none")
	cmd.Flags().StringVar(&transport, "transport", "", "upload transport: http or store")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	return cmd
}

func readFiles(paths []string) ([]upload.RawFile, error) {
	files := make([]upload.RawFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, upload.RawFile{
			Name: filepath.Base(p),
			Size: int64(len(data)),
			Data: data,
		})
	}
	return files, nil
}

// runUpload 走文件选择路径：先校验入库，再整批上传，有失败时返回错误。
func runUpload(ctx context.Context, session *api.Session, files []upload.RawFile, out io.Writer, progress bool) error {
	result := session.Dropzone().Select(files)
	for _, v := range result.Rejected {
		fmt.Fprintf(out, "skip   %s (%s): %s\n", v.File.Name, upload.FormatBytes(v.File.Size), v.Err)
	}
	if len(result.Accepted) == 0 {
		return fmt.Errorf("no files to upload")
	}

	names := make(map[string]string, len(result.Accepted))
	for _, e := range result.Accepted {
		names[e.ID] = e.Source.Name
	}

	stopProgress := func() {}
	if progress {
		events, unsubscribe := session.Broker().Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			printProgress(out, events, names)
		}()
		stopProgress = func() {
			unsubscribe()
			<-done
		}
	}

	outcomes := session.Upload(ctx)
	stopProgress()

	failed := 0
	for _, o := range outcomes {
		name := names[o.ID]
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "failed %s: %s\n", name, upload.UserMessage(o.Err))
			continue
		}
		fmt.Fprintf(out, "done   %s -> %s\n", name, o.File.URL)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(outcomes))
	}
	return nil
}

// printProgress 只打印 25% 粒度的进度，避免刷屏。
func printProgress(out io.Writer, events <-chan upload.Event, names map[string]string) {
	last := make(map[string]int)
	for ev := range events {
		if ev.Type != upload.EventProgress || ev.Entry.Progress == nil {
			continue
		}
		name, ok := names[ev.Entry.ID]
		if !ok {
			continue
		}
		pct := ev.Entry.Progress.Percentage / 25 * 25
		if prev, seen := last[ev.Entry.ID]; seen && prev >= pct {
			continue
		}
		last[ev.Entry.ID] = pct
		fmt.Fprintf(out, "%3d%%   %s (%s / %s)\n", pct, name,
			upload.FormatBytes(ev.Entry.Progress.BytesSent), upload.FormatBytes(ev.Entry.Progress.BytesTotal))
	}
}
