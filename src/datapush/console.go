package datapush

import (
	"fmt"
	"io"
	"strings"

	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/utils"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Console 在终端输出报表
type Console struct {
	out      io.Writer
	airlines processor.Labeler
	airports processor.Labeler

	title *color.Color
	warn  *color.Color
}

// NewConsole 名称表可为 nil, 此时只显示代码
func NewConsole(out io.Writer, airlines, airports processor.Labeler) *Console {
	return &Console{
		out:      out,
		airlines: airlines,
		airports: airports,
		title:    color.New(color.FgCyan, color.Bold),
		warn:     color.New(color.FgYellow),
	}
}

// Render 概览 -> 小时汇总 -> 排行 -> 统计
func (c *Console) Render(r processor.Report, description string) {
	c.title.Fprintln(c.out, "\n=== Flight Delay Insight ===")

	c.section("Overview")
	c.table([]string{"Metric", "Value"}, SummaryRows(r, description))

	if len(r.Hourly) > 0 {
		c.section("Delay by departure hour")
		c.groups(r.Hourly, processor.GroupHour, nil)
	}
	if r.Params.GroupBy != "" && r.Params.GroupBy != processor.GroupHour && len(r.Grouped) > 0 {
		c.section(fmt.Sprintf("Delay by %s", r.Params.GroupBy))
		c.groups(r.Grouped, r.Params.GroupBy, c.labelerFor(r.Params.GroupBy))
	}

	c.ranking(fmt.Sprintf("Airlines by mean arrival delay (>= %d flights)", r.Params.MinFlightsAirline),
		r.Airlines, processor.GroupCarrier, c.airlines)
	c.ranking(fmt.Sprintf("Origin airports by mean arrival delay (>= %d flights)", r.Params.MinFlightsAirport),
		r.Airports, processor.GroupOrigin, c.airports)
	c.ranking(fmt.Sprintf("Routes by mean arrival delay (>= %d flights)", r.Params.MinFlightsRoute),
		r.Routes, processor.GroupRoute, nil)

	if len(r.HubVsNonHub) > 0 {
		c.section(fmt.Sprintf("Hub vs non-hub (hubs: %s)", hubList(r.Hub)))
		c.groups(r.HubVsNonHub, processor.GroupHub, nil)
	}

	for _, w := range r.Warnings {
		c.warn.Fprintf(c.out, "warning: %s\n", w)
	}
}

func (c *Console) section(name string) {
	color.New(color.FgYellow).Fprintf(c.out, "\n%s\n", name)
}

func (c *Console) table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(rows)
	table.Render()
}

func (c *Console) ranking(title string, groups []processor.GroupSummary, key processor.GroupKey, labeler processor.Labeler) {
	c.section(title)
	if len(groups) == 0 {
		c.warn.Fprintln(c.out, "no group meets the minimum flight count")
		return
	}
	c.groups(groups, key, labeler)
}

func (c *Console) groups(groups []processor.GroupSummary, key processor.GroupKey, labeler processor.Labeler) {
	header := []string{string(key), "flights", "mean delay", "median delay"}
	var shareCols []string
	for _, col := range utils.ShareColumns {
		if _, ok := groups[0].Shares[col]; ok {
			shareCols = append(shareCols, col)
			header = append(header, processor.ShareName(col))
		}
	}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		name := g.Key
		switch {
		case key == processor.GroupHour:
			name = processor.HourLabel(g.Key)
		case labeler != nil:
			name = labeler.Label(g.Key)
		}
		row := []string{name, FormatCount(g.Flights), FormatFloat(g.MeanDelay, 1), FormatFloat(g.MedianDelay, 1)}
		for _, col := range shareCols {
			row = append(row, FormatPct(g.Shares[col]))
		}
		rows = append(rows, row)
	}
	c.table(header, rows)
}

func (c *Console) labelerFor(key processor.GroupKey) processor.Labeler {
	switch key {
	case processor.GroupCarrier:
		return c.airlines
	case processor.GroupOrigin, processor.GroupDestination:
		return c.airports
	}
	return nil
}

func hubList(h processor.HubInfo) string {
	if len(h.Hubs) == 0 {
		return "none"
	}
	const maxShown = 10
	if len(h.Hubs) > maxShown {
		return strings.Join(h.Hubs[:maxShown], ", ") + fmt.Sprintf(" +%d", len(h.Hubs)-maxShown)
	}
	return strings.Join(h.Hubs, ", ")
}
