package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/seiscube/internal/client"
	"github.com/xtxerr/seiscube/internal/payload"
)

// command is one shell command.
type command struct {
	name  string
	args  string
	help  string
	run   func(ctx context.Context, sh *shell, args []string) error
	nargs int
}

// shell runs commands against one server.
type shell struct {
	client *client.Client
	out    io.Writer
	width  int
}

var commands = []command{
	{name: "health", help: "server status", run: cmdHealth},
	{name: "info", help: "summary of the active cube", run: cmdInfo},
	{name: "upload", args: "<file>", help: "upload a SEG-Y or zip file", run: cmdUpload, nargs: 1},
	{name: "slice", args: "<inline|xline|sample> <index>", help: "fetch one slice and print its statistics", run: cmdSlice, nargs: 2},
	{name: "cubes", help: "list stored cubes", run: cmdCubes},
	{name: "cube", args: "<id>", help: "show one cube", run: cmdCube, nargs: 1},
	{name: "delete", args: "<id>", help: "delete a cube's stored objects", run: cmdDelete, nargs: 1},
}

// help ranges over commands, so it joins the table at init.
func init() {
	commands = append(commands, command{name: "help", help: "list commands", run: cmdHelp})
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// exec runs one command line.
func (sh *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c, ok := lookup(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	args := fields[1:]
	if len(args) < c.nargs {
		return fmt.Errorf("usage: %s %s", c.name, c.args)
	}
	return c.run(ctx, sh, args)
}

func (sh *shell) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(sh.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	if sh.width > 0 {
		t.SetColWidth(sh.width / max(1, len(header)))
	}
	return t
}

func cmdHelp(_ context.Context, sh *shell, _ []string) error {
	t := sh.table([]string{"Command", "Description"})
	for _, c := range commands {
		t.Append([]string{strings.TrimSpace(c.name + " " + c.args), c.help})
	}
	t.Render()
	return nil
}

func cmdHealth(ctx context.Context, sh *shell, _ []string) error {
	h, err := sh.client.Health(ctx)
	if err != nil {
		return err
	}
	t := sh.table([]string{"Field", "Value"})
	t.Append([]string{"status", h.Status})
	t.Append([]string{"data loaded", strconv.FormatBool(h.DataLoaded)})
	if h.CubeID != "" {
		t.Append([]string{"cube", h.CubeID})
	}
	t.Append([]string{"store", h.Store})
	t.Append([]string{"cached slices", fmt.Sprintf("%d / %d", h.Cache.Entries, h.Cache.Capacity)})
	t.Append([]string{"cache size", humanize.Bytes(uint64(h.Cache.Bytes))})
	t.Append([]string{"cache hits", humanize.Comma(int64(h.Cache.Hits))})
	t.Append([]string{"uploads queued", strconv.Itoa(h.Persist.Pool.Queued)})
	t.Append([]string{"uploads done", humanize.Comma(h.Persist.Pool.Completed)})
	t.Render()
	return nil
}

func cmdInfo(ctx context.Context, sh *shell, _ []string) error {
	info, err := sh.client.CubeInfo(ctx)
	if err != nil {
		return err
	}
	printInfo(sh, info)
	return nil
}

func printInfo(sh *shell, info *payload.CubeInfo) {
	t := sh.table([]string{"Axis", "Min", "Max", "Count"})
	for _, r := range []struct {
		name string
		rng  payload.Range
	}{
		{"inline", info.InlineRange},
		{"xline", info.XlineRange},
		{"sample", info.SampleRange},
	} {
		t.Append([]string{r.name, formatFloat(r.rng.Min), formatFloat(r.rng.Max), strconv.Itoa(r.rng.Count)})
	}
	t.Render()

	a := info.AmplitudeRange
	fmt.Fprintf(sh.out, "amplitude: min %s max %s mean %s std %s display [%s, %s]\n",
		formatFloat(a.ActualMin), formatFloat(a.ActualMax), formatFloat(a.Mean), formatFloat(a.Std),
		formatFloat(a.DisplayMin), formatFloat(a.DisplayMax))
	fmt.Fprintf(sh.out, "memory: %s\n", humanize.IBytes(uint64(info.MemoryUsageMB*1024*1024)))
	g := info.Geometry
	fmt.Fprintf(sh.out, "geometry: rotation %.2f deg, coordinates %s\n", g.RotationAngle, g.CoordinateSystem)
}

func cmdUpload(ctx context.Context, sh *shell, args []string) error {
	start := time.Now()
	resp, err := sh.client.UploadFile(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s: cube %s loaded in %s (%d of %d traces placed",
		strings.Join(resp.Files, ", "), resp.CubeID, time.Since(start).Round(time.Millisecond),
		resp.Build.Placed, resp.Build.Traces)
	if resp.Build.Duplicates > 0 {
		fmt.Fprintf(sh.out, ", %d duplicates", resp.Build.Duplicates)
	}
	fmt.Fprintln(sh.out, ")")
	printInfo(sh, &resp.CubeInfo)
	return nil
}

func cmdSlice(ctx context.Context, sh *shell, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("index %q is not an integer", args[1])
	}
	doc, err := sh.client.Slice(ctx, args[0], index)
	if err != nil {
		return err
	}
	rows, cols := len(doc.Data), 0
	if rows > 0 {
		cols = len(doc.Data[0])
	}
	s := doc.AmplitudeStats
	fmt.Fprintf(sh.out, "%s %d: %d x %d, min %s max %s mean %s std %s\n",
		args[0], index, rows, cols,
		formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.Mean), formatFloat(s.Std))
	return nil
}

func cmdCubes(ctx context.Context, sh *shell, _ []string) error {
	cubes, err := sh.client.Cubes(ctx)
	if err != nil {
		return err
	}
	if len(cubes) == 0 {
		fmt.Fprintln(sh.out, "no cubes")
		return nil
	}
	sort.SliceStable(cubes, func(i, j int) bool { return cubes[i].CreatedAt.After(cubes[j].CreatedAt) })

	t := sh.table([]string{"ID", "File", "Shape", "Size", "Created"})
	for _, m := range cubes {
		shape := m.CubeInfo.Shape
		t.Append([]string{
			m.CubeID,
			m.Filename,
			fmt.Sprintf("%d x %d x %d", shape[0], shape[1], shape[2]),
			humanize.IBytes(uint64(m.CubeInfo.MemoryUsageMB * 1024 * 1024)),
			humanize.Time(m.CreatedAt),
		})
	}
	t.Render()
	return nil
}

func cmdCube(ctx context.Context, sh *shell, args []string) error {
	m, err := sh.client.Cube(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s  %s  created %s\n", m.CubeID, m.Filename, humanize.Time(m.CreatedAt))
	printInfo(sh, &m.CubeInfo)
	return nil
}

func cmdDelete(ctx context.Context, sh *shell, args []string) error {
	resp, err := sh.client.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s (%d objects)\n", resp.Message, resp.DeletedObjects)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
