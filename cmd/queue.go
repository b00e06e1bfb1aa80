package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/arrowline/internal/model"
	"github.com/sells-group/arrowline/internal/queue"
	"github.com/sells-group/arrowline/internal/source"
	"github.com/sells-group/arrowline/internal/store"
)

var (
	queueAddInput   string
	queueAddFormat  string
	queueAddPackage string
	queueAddXLSX    source.XLSXOptions
	queueAddLayer   layerFlags

	queueListStatus  string
	queueListPackage string
	queueListLimit   int

	queueShowArrowHeads bool

	queueRunConcurrency int
	queueRunRate        float64
	queueRunPackage     string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage queued arrow-line tasks",
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue a layer build for later processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("queue"); err != nil {
			return err
		}
		layerCfg, err := queueAddLayer.resolve(cfg.Layer)
		if err != nil {
			return err
		}
		fc, err := loadInput(cmd.InOrStdin(), queueAddInput, queueAddFormat, queueAddXLSX)
		if err != nil {
			return err
		}
		payload, err := queue.EncodeJob(queue.Job{Features: fc, Config: layerCfg})
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		task, err := st.CreateTask(ctx, store.NewTask{
			Type:        model.TaskTypeArrowLine,
			PackageName: queueAddPackage,
			Payload:     payload,
		})
		if err != nil {
			return eris.Wrap(err, "queue add")
		}
		fmt.Fprintln(cmd.OutOrStdout(), task.ID)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		filter := store.TaskFilter{
			Type:        model.TaskTypeArrowLine,
			PackageName: queueListPackage,
			Limit:       queueListLimit,
		}
		if queueListStatus != "" {
			status, err := model.ParseTaskStatus(queueListStatus)
			if err != nil {
				return err
			}
			filter.Status = &status
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		tasks, err := st.ListTasks(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "queue list")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPACKAGE\tSTATUS\tARROW HEADS\tUPDATED")
		for _, t := range tasks {
			heads := "-"
			if t.Result != nil {
				heads = fmt.Sprint(t.Result.ArrowHeads)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.PackageName, t.Status, heads, t.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a task and its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		task, err := st.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		out := map[string]any{"task": task}
		if queueShowArrowHeads {
			heads, err := st.ListArrowHeads(ctx, task.ID)
			if err != nil {
				return err
			}
			out["arrow_heads"] = heads
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Build every pending task once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		qc := cfg.Queue
		if queueRunConcurrency > 0 {
			qc.Concurrency = queueRunConcurrency
		}
		if queueRunRate > 0 {
			qc.Rate = queueRunRate
		}
		if queueRunPackage != "" {
			qc.PackageName = queueRunPackage
		}
		cfg.Queue = qc
		if err := cfg.Validate("queue"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := queue.NewRunner(st, qc).RunPending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d succeeded=%d failed=%d skipped=%d requeued=%d\n",
			stats.Claimed, stats.Succeeded, stats.Failed, stats.Skipped, stats.Requeued)
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringVarP(&queueAddInput, "input", "i", "", "input file (.geojson, .json, .shp, .xlsx) or - for GeoJSON on stdin")
	queueAddCmd.Flags().StringVar(&queueAddFormat, "input-format", "", "input format when the extension is ambiguous")
	queueAddCmd.Flags().StringVar(&queueAddPackage, "package", "", "package name grouping related tasks")
	registerXLSXFlags(queueAddCmd, &queueAddXLSX)
	queueAddLayer.register(queueAddCmd)
	_ = queueAddCmd.MarkFlagRequired("input")

	queueListCmd.Flags().StringVar(&queueListStatus, "status", "", "filter by status (not_started, started, done, failed)")
	queueListCmd.Flags().StringVar(&queueListPackage, "package", "", "filter by package name")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 100, "max tasks to list")

	queueShowCmd.Flags().BoolVar(&queueShowArrowHeads, "arrow-heads", false, "include stored arrow heads")

	queueRunCmd.Flags().IntVar(&queueRunConcurrency, "concurrency", 0, "tasks built at once (default from config)")
	queueRunCmd.Flags().Float64Var(&queueRunRate, "rate", 0, "task starts per second (default from config)")
	queueRunCmd.Flags().StringVar(&queueRunPackage, "package", "", "only run tasks of this package")

	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueShowCmd, queueRunCmd)
	rootCmd.AddCommand(queueCmd)
}
