package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/app"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source/localdir"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source/manifest"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "webchat-ingest",
		Usage: "Load documents into the knowledge base and inspect background tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured logging level (debug, info, warn, error)",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for submitted documents to finish processing",
				Value: 30 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "file",
				Usage:     "Ingest one or more files",
				ArgsUsage: "PATH...",
				Action:    fileCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tenant",
						Usage: "Tenant the documents belong to",
					},
				},
			},
			{
				Name:      "dir",
				Usage:     "Ingest every supported file below a directory",
				ArgsUsage: "PATH",
				Action:    dirCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of files to submit (0 means all)",
					},
					&cli.StringFlag{
						Name:  "tenant",
						Usage: "Tenant the documents belong to",
					},
					&cli.BoolFlag{
						Name:  "manifest",
						Usage: "Read PATH/manifest.jsonl instead of walking the directory",
					},
				},
			},
			{
				Name:  "tasks",
				Usage: "Inspect and cancel background tasks",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List recent tasks",
						Action: listTasksCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "status",
								Usage: "Filter by status (pending, running, completed, failed, cancelled)",
							},
							&cli.StringFlag{
								Name:  "type",
								Usage: "Filter by task type",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of tasks to show",
								Value: 20,
							},
						},
					},
					{
						Name:      "cancel",
						Usage:     "Cancel a pending or running task",
						ArgsUsage: "TASK_ID",
						Action:    cancelTaskCommand,
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// open loads configuration and wires the application. The returned context is
// cancelled on SIGINT or SIGTERM.
func open(c *cli.Context) (context.Context, *app.App, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	application, err := app.Build(ctx, cfg, app.Options{ServiceName: "webchat-ingest"})
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	ctx = application.Logger.WithContext(ctx)

	closeFn := func() {
		stop()
		application.Close(c.Duration("wait"))
	}
	return ctx, application, closeFn, nil
}

func fileCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file path is required")
	}

	ctx, application, closeFn, err := open(c)
	if err != nil {
		return err
	}
	defer closeFn()

	var ids []string
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("path", path).Error("Failed to read file")
			continue
		}
		doc, err := application.Ingest.Ingest(ctx, service.IngestRequest{
			Data:     data,
			Filename: filepath.Base(path),
			TenantID: c.String("tenant"),
		})
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("path", path).Error("Failed to submit file")
			continue
		}
		ids = append(ids, doc.ID)
	}

	return report(ctx, application, c.Duration("wait"), ids)
}

func dirCommand(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		return fmt.Errorf("directory path is required")
	}

	ctx, application, closeFn, err := open(c)
	if err != nil {
		return err
	}
	defer closeFn()

	var src source.Source
	if c.Bool("manifest") {
		src = manifest.NewAdapter(root)
	} else {
		src = localdir.NewAdapter(root, c.String("tenant"))
	}

	stats, err := application.Ingest.IngestDirectory(ctx, src, c.Int("limit"))
	if stats != nil {
		fmt.Fprintf(os.Stderr, "Import task %s: %d found, %d submitted, %d rejected\n",
			stats.TaskID, stats.Total, stats.Submitted, stats.Failed)
	}
	if err != nil {
		// Documents already submitted still finish below.
		logger.FromContext(ctx).WithError(err).Error("Import stopped early")
	}
	if stats == nil {
		return err
	}
	if reportErr := report(ctx, application, c.Duration("wait"), stats.Documents); reportErr != nil {
		return reportErr
	}
	return err
}

// report waits for the submitted documents to reach a terminal state and prints
// one line per document.
func report(ctx context.Context, application *app.App, wait time.Duration, ids []string) error {
	if err := application.Drain(wait); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Some documents are still processing")
	}

	// The signal context may already be cancelled; results are still worth printing.
	ctx = context.WithoutCancel(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tFILE\tSTATUS\tCHUNKS\tERROR")
	var failed int
	for _, id := range ids {
		doc, err := application.Ingest.GetDocument(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%v\n", id, err)
			failed++
			continue
		}
		if doc.Status != domain.DocumentStatusCompleted {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", doc.ID, doc.Filename, doc.Status, doc.ChunkCount, doc.ErrorMessage)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents did not complete", failed, len(ids))
	}
	return nil
}

func listTasksCommand(c *cli.Context) error {
	filter := repository.TaskFilter{
		Status: domain.TaskStatus(c.String("status")),
		Type:   domain.TaskType(c.String("type")),
		Limit:  c.Int("limit"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown task status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("unknown task type %q", filter.Type)
	}

	ctx, application, closeFn, err := open(c)
	if err != nil {
		return err
	}
	defer closeFn()

	tasks, total, err := application.Tracker.List(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTYPE\tSTATUS\tPROGRESS\tCREATED\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			t.ID, t.Type, t.Status, t.Progress, t.CreatedAt.Format(time.RFC3339), t.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d of %d tasks shown\n", len(tasks), total)
	return nil
}

func cancelTaskCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("task id is required")
	}

	ctx, application, closeFn, err := open(c)
	if err != nil {
		return err
	}
	defer closeFn()

	task, err := application.Tracker.Cancel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Task %s is now %s\n", task.ID, task.Status)
	return nil
}
