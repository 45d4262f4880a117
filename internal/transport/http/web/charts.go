package web

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"fupan/internal/journal"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	chartWidth  = "1080px"
	chartHeight = "420px"
)

func (r *Router) handleDashboardPage(c *gin.Context) {
	dash, err := r.journal.BuildDashboard(c.Request.Context(), r.trendDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	html, err := buildDashboardHTML(dash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// buildDashboardHTML 把看板数据渲染成 go-echarts 页面。
func buildDashboardHTML(dash journal.Dashboard) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	page.AddCharts(
		trendChart(dash),
		rankChart("盈利排行", dash.TopProfits),
		rankChart("亏损排行", dash.TopLosses),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func trendChart(dash journal.Dashboard) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "交易复盘",
			Theme:     types.ThemeWalden,
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "每日已实现盈亏",
			Subtitle: fmt.Sprintf("总交易 %d | 累计盈亏 %.2f | 胜率 %.1f%% | 持仓 %d",
				dash.Overview.TotalTrades, dash.Overview.TotalPnL,
				dash.Overview.WinRate, dash.Overview.PositionsCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	dates := make([]string, 0, len(dash.DailyTrend))
	values := make([]opts.LineData, 0, len(dash.DailyTrend))
	for _, d := range dash.DailyTrend {
		dates = append(dates, d.Date)
		values = append(values, opts.LineData{Value: round2(d.PnL)})
	}
	line.SetXAxis(dates).AddSeries("盈亏", values,
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}))
	return line
}

func rankChart(title string, ranks []journal.SymbolPnL) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWalden,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	symbols := make([]string, 0, len(ranks))
	values := make([]opts.BarData, 0, len(ranks))
	for _, r := range ranks {
		symbols = append(symbols, r.Symbol)
		values = append(values, opts.BarData{Value: round2(r.PnL)})
	}
	bar.SetXAxis(symbols).AddSeries("净盈亏", values)
	return bar
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
