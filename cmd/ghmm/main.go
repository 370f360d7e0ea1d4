// Command ghmm learns growing hidden Markov models from trajectory CSV
// files, stores them in SQLite, and replays trajectories against them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/banshee-data/ghmm/internal/config"
	"github.com/banshee-data/ghmm/internal/ghmm"
	"github.com/banshee-data/ghmm/internal/modelstore"
	"github.com/banshee-data/ghmm/internal/monitor"
	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/topology"
	"github.com/banshee-data/ghmm/internal/trajectory"
	"github.com/banshee-data/ghmm/internal/version"
)

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "learn":
		return handleLearn(args, out)
	case "track":
		return handleTrack(args, out)
	case "plot":
		return handlePlot(args, out)
	case "inspect":
		return handleInspect(args, out)
	case "generate":
		return handleGenerate(args, out)
	case "version":
		fmt.Fprintln(out, version.String())
		return nil
	case "help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `ghmm - growing hidden Markov model trajectory learner

Usage: ghmm <command> [options]

Commands:
  learn      Learn a CSV batch into a new or existing stored model
  track      Replay trajectories against a stored model
  plot       Render a stored topology as PNG and/or HTML
  inspect    List stored models or describe one
  generate   Write a synthetic grid batch as CSV
  version    Show version
  help       Show this help message

Examples:
  ghmm generate --output grid.csv
  ghmm learn --db models.db --input grid.csv --description "grid"
  ghmm learn --db models.db --model <id> --input more.csv
  ghmm track --db models.db --model <id> --input live.csv --horizon 10
  ghmm plot --db models.db --model <id> --png topology.png --html topology.html
  ghmm inspect --db models.db`)
}

func loadConfig(path string) (*config.ModelConfig, error) {
	if path == "" {
		return &config.ModelConfig{}, nil
	}
	return config.LoadModelConfig(path)
}

func required(fs *flag.FlagSet, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name, v := range values {
		if v == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %s: --%s is required", errUsage, fs.Name(), names[0])
}

func handleLearn(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("learn", flag.ContinueOnError)
	configPath := fs.String("config", "", "Model configuration JSON (defaults when empty)")
	dbPath := fs.String("db", "", "SQLite model database (required)")
	input := fs.String("input", "", "Trajectory CSV (required)")
	modelID := fs.String("model", "", "Existing model to refine; a new model is created when empty")
	description := fs.String("description", "", "Description stored with a new model")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"db": *dbPath, "input": *input}); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	monitoring.SetDebug(*debug || cfg.GetDebug())

	db, err := modelstore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := modelstore.NewStore(db.DB, nil)

	var m *ghmm.Model
	if *modelID != "" {
		if m, err = store.Load(*modelID); err != nil {
			return err
		}
		if *configPath != "" {
			monitoring.Logf("[ghmm] refining %s with its stored parameters; %s ignored", *modelID, *configPath)
		}
	} else if m, err = ghmm.New(cfg.Params()); err != nil {
		return err
	}

	ts, err := trajectory.ReadFile(*input, m.Params().FullDim)
	if err != nil {
		return err
	}
	stats, err := m.Learn(trajectory.Observations(ts))
	if err != nil {
		return fmt.Errorf("learn %s: %w", *input, err)
	}

	id := *modelID
	if id == "" {
		if id, err = store.Save(m, *description); err != nil {
			return err
		}
	} else if err := store.Replace(id, m); err != nil {
		return err
	}

	fmt.Fprintf(out, "model %s: %d trajectories, %d states (+%d), %d transitions (+%d), log-likelihood %.4f\n",
		id, stats.Trajectories, stats.States, stats.StatesAdded,
		stats.Transitions, stats.TransitionsAdded, stats.LogLikelihood)
	return nil
}

func handleTrack(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration JSON supplying track_horizon")
	dbPath := fs.String("db", "", "SQLite model database (required)")
	modelID := fs.String("model", "", "Model to track against (required)")
	input := fs.String("input", "", "Trajectory CSV to replay (required)")
	horizon := fs.Int("horizon", -1, "Prediction horizon in steps (config track_horizon when negative)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"db": *dbPath, "model": *modelID, "input": *input}); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	monitoring.SetDebug(*debug || cfg.GetDebug())
	if *horizon < 0 {
		*horizon = cfg.GetTrackHorizon()
	}

	db, err := modelstore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	m, err := modelstore.NewStore(db.DB, nil).Load(*modelID)
	if err != nil {
		return err
	}
	ts, err := trajectory.ReadFile(*input, 0)
	if err != nil {
		return err
	}

	sessions := ghmm.NewSessions(m, nil)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "trajectory\tstep\tstate\tbelief\tlog_pdf\tpredicted")
	for _, tr := range ts {
		id, err := sessions.Open()
		if err != nil {
			return err
		}
		for step, o := range tr.Points {
			pdf, err := sessions.Pdf(id, 0, o)
			if err != nil {
				sessions.Close(id)
				return fmt.Errorf("trajectory %s, step %d: %w", tr.ID, step, err)
			}
			if err := sessions.Update(id, o); err != nil && !errors.Is(err, ghmm.ErrDegenerateLikelihood) {
				sessions.Close(id)
				return fmt.Errorf("trajectory %s, step %d: %w", tr.ID, step, err)
			}
			st, err := sessions.Get(id)
			if err != nil {
				return err
			}
			g, err := sessions.Graph(id)
			if err != nil {
				return err
			}
			if err := m.Predict(g, *horizon); err != nil {
				monitoring.Debugf("[ghmm] trajectory %s, step %d: predict: %v", tr.ID, step, err)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.4f\t%s\n",
				tr.ID, step, st.MostLikely, st.MaxBelief, math.Log(pdf), formatVector(ghmm.PredictedCentroid(g)))
		}
		st, err := sessions.Get(id)
		if err != nil {
			return err
		}
		if st.Degenerate > 0 {
			monitoring.Logf("[ghmm] trajectory %s: %d of %d updates were degenerate", tr.ID, st.Degenerate, st.Updates)
		}
		sessions.Close(id)
	}
	return tw.Flush()
}

func formatVector(v []float64) string {
	s := "("
	for i, x := range v {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%.3f", x)
	}
	return s + ")"
}

func handlePlot(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite model database (required)")
	modelID := fs.String("model", "", "Model to render (required)")
	pngPath := fs.String("png", "", "Write a static topology plot to this path")
	htmlPath := fs.String("html", "", "Write an interactive chart to this path")
	x := fs.Int("x", 0, "Centroid component on the horizontal axis")
	y := fs.Int("y", 1, "Centroid component on the vertical axis")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"db": *dbPath, "model": *modelID}); err != nil {
		return err
	}
	if *pngPath == "" && *htmlPath == "" {
		return fmt.Errorf("%w: plot: at least one of --png or --html is required", errUsage)
	}

	db, err := modelstore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	m, err := modelstore.NewStore(db.DB, nil).Load(*modelID)
	if err != nil {
		return err
	}
	g := m.Graph()
	title := "Model " + *modelID

	if *pngPath != "" {
		if err := monitor.PlotTopology(g, *pngPath, monitor.PlotOptions{Title: title, X: *x, Y: *y}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *pngPath)
	}
	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			return fmt.Errorf("create chart: %w", err)
		}
		if err := monitor.RenderBeliefChart(f, g, title, monitor.ChartOptions{X: *x, Y: *y}); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *htmlPath)
	}
	return nil
}

func handleInspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite model database (required)")
	modelID := fs.String("model", "", "Describe this model; list all when empty")
	top := fs.Int("top", 10, "Number of most probable states to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"db": *dbPath}); err != nil {
		return err
	}
	if *top < 0 {
		return fmt.Errorf("%w: inspect: --top must be non-negative", errUsage)
	}

	db, err := modelstore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := modelstore.NewStore(db.DB, nil)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if *modelID == "" {
		records, err := store.List()
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "model\ttrajectories\tstates\ttransitions\tversion\tdescription")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
				r.ModelID, r.TrajectoryCount, r.States, r.Transitions, r.Version, r.Description)
		}
		return tw.Flush()
	}

	rec, err := store.Get(*modelID)
	if err != nil {
		return err
	}
	m, err := store.Load(*modelID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "model %s (%s)\n", rec.ModelID, rec.Description)
	fmt.Fprintf(out, "trajectories=%d states=%d transitions=%d full_dim=%d observed_dim=%d\n",
		rec.TrajectoryCount, rec.States, rec.Transitions, rec.Params.FullDim, rec.Params.ObservedDim)

	g := m.Graph()
	states := append([]*topology.State(nil), g.States()...)
	sort.SliceStable(states, func(i, j int) bool { return states[i].Probability > states[j].Probability })
	if *top < len(states) {
		states = states[:*top]
	}
	fmt.Fprintln(tw, "state\tprobability\tout_degree\tcentroid")
	for _, s := range states {
		fmt.Fprintf(tw, "%d\t%.6f\t%d\t%s\n", s.ID, s.Probability, g.OutDegree(s.ID), formatVector(s.Centroid))
	}
	return tw.Flush()
}

func handleGenerate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	output := fs.String("output", "", "CSV path to write (required)")
	n := fs.Int("trajectories", 100, "Number of trajectories")
	points := fs.Int("points", 100, "Points per trajectory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"output": *output}); err != nil {
		return err
	}
	if *n <= 0 || *points <= 0 {
		return fmt.Errorf("%w: generate: --trajectories and --points must be positive", errUsage)
	}
	if err := trajectory.WriteFile(*output, trajectory.Grid(*n, *points)); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d trajectories of %d points to %s\n", *n, *points, *output)
	return nil
}
