package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/webitel/im-gamification-service/internal/domain/event"
	"github.com/webitel/im-gamification-service/internal/handler/rest"
)

const sparkHistory = 120

func topCmd() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "Live dashboard of a running instance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8080",
				Usage: "Base URL of the service HTTP API",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Second,
				Usage: "Refresh interval",
			},
		},
		Action: func(c *cli.Context) error {
			return runTop(c.Context, strings.TrimRight(c.String("addr"), "/"), c.Duration("interval"))
		},
	}
}

func fetchStats(ctx context.Context, client *http.Client, base string) (rest.StatsResponse, error) {
	var res rest.StatsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/stats", nil)
	if err != nil {
		return res, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("stats: unexpected status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&res)
	return res, err
}

type dashboard struct {
	worker    *widgets.Paragraph
	conns     *widgets.Paragraph
	listeners *widgets.BarChart
	pending   *widgets.Sparkline
	processed *widgets.Sparkline
	sparks    *widgets.SparklineGroup
	status    *widgets.Paragraph
	grid      *ui.Grid

	lastProcessed int64
}

func newDashboard() *dashboard {
	d := &dashboard{
		worker:    widgets.NewParagraph(),
		conns:     widgets.NewParagraph(),
		listeners: widgets.NewBarChart(),
		pending:   widgets.NewSparkline(),
		processed: widgets.NewSparkline(),
		status:    widgets.NewParagraph(),
	}
	d.worker.Title = "Worker"
	d.conns.Title = "Connections"
	d.listeners.Title = "Bus listeners"
	d.listeners.BarWidth = 6
	d.pending.Title = "Pending jobs"
	d.pending.LineColor = ui.ColorYellow
	d.processed.Title = "Processed / tick"
	d.processed.LineColor = ui.ColorGreen
	d.sparks = widgets.NewSparklineGroup(d.pending, d.processed)
	d.sparks.Title = "Queue"
	d.status.Border = false
	return d
}

// layout needs an initialised terminal.
func (d *dashboard) layout() {
	d.grid = ui.NewGrid()
	w, h := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, w, h)
	d.grid.Set(
		ui.NewRow(0.35,
			ui.NewCol(0.5, d.worker),
			ui.NewCol(0.5, d.conns),
		),
		ui.NewRow(0.35, ui.NewCol(1.0, d.sparks)),
		ui.NewRow(0.25, ui.NewCol(1.0, d.listeners)),
		ui.NewRow(0.05, ui.NewCol(1.0, d.status)),
	)
}

func (d *dashboard) update(s rest.StatsResponse) {
	w := s.Worker
	d.worker.Text = fmt.Sprintf(
		"running:    %t\nprocessing: %t\npending:    %d\nprocessed:  %d\nretried:    %d\ndropped:    %d\nbatches:    %d",
		w.Running, w.Processing, w.Pending, w.Processed, w.Retried, w.Dropped, w.Batches)

	users := s.Connections.UserIDs
	if len(users) > 10 {
		users = append(users[:10:10], "…")
	}
	d.conns.Text = fmt.Sprintf("connected: %d\n\n%s", s.Connections.Connected, strings.Join(users, "\n"))

	names := make([]string, 0, len(s.Listeners))
	for name := range s.Listeners {
		names = append(names, string(name))
	}
	sort.Strings(names)
	d.listeners.Labels = names
	d.listeners.Data = make([]float64, len(names))
	for i, name := range names {
		d.listeners.Data[i] = float64(s.Listeners[event.Name(name)])
	}

	delta := w.Processed - d.lastProcessed
	if d.lastProcessed == 0 || delta < 0 {
		delta = 0
	}
	d.lastProcessed = w.Processed
	d.pending.Data = appendCapped(d.pending.Data, float64(w.Pending))
	d.processed.Data = appendCapped(d.processed.Data, float64(delta))

	d.status.Text = "updated " + time.Now().Format(time.TimeOnly) + "  (q to quit)"
}

func appendCapped(data []float64, v float64) []float64 {
	data = append(data, v)
	if len(data) > sparkHistory {
		data = data[len(data)-sparkHistory:]
	}
	return data
}

func runTop(ctx context.Context, base string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("termui: %w", err)
	}
	defer ui.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	d := newDashboard()
	d.layout()

	refresh := func() {
		s, err := fetchStats(ctx, client, base)
		if err != nil {
			d.status.Text = "error: " + err.Error()
		} else {
			d.update(s)
		}
		ui.Render(d.grid)
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := ui.PollEvents()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(d.grid)
			}
		case <-ticker.C:
			refresh()
		}
	}
}
