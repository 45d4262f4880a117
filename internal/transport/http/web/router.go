package web

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"fupan/internal/journal"

	"github.com/gin-gonic/gin"
)

// Router 暴露复盘查询与导入接口。
type Router struct {
	journal   JournalService
	store     StoreReader
	importer  ImportRunner
	uploadDir string
	trendDays int
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/dashboard", r.handleDashboard)
	group.GET("/dashboard/snapshot", r.handleDashboardSnapshot)
	group.GET("/positions", r.handlePositions)
	group.GET("/closed", r.handleClosedLots)
	group.GET("/trades", r.handleTrades)
	group.GET("/summary/:date", r.handleSummary)
	group.POST("/summary/:date/rebuild", r.handleSummaryRebuild)
	if r.importer != nil {
		group.POST("/import", r.handleImport)
		group.POST("/refresh", r.handleRefresh)
	}
}

func (r *Router) handleDashboard(c *gin.Context) {
	dash, err := r.journal.BuildDashboard(c.Request.Context(), r.trendDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (r *Router) handlePositions(c *gin.Context) {
	positions, err := r.store.GetOpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// 已清仓的标的不在持仓列表里出现。
	open := make([]journal.Position, 0, len(positions))
	for _, p := range positions {
		if p.TotalQuantity > 0 {
			open = append(open, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"positions": open, "count": len(open)})
}

func (r *Router) handleClosedLots(c *gin.Context) {
	ctx := c.Request.Context()
	var lots []journal.ClosedLot
	var err error
	if date := strings.TrimSpace(c.Query("date")); date != "" {
		if !validDate(date) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		lots, err = r.store.GetClosedLotsByDate(ctx, date)
	} else {
		lots, err = r.store.GetAllClosedLots(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed_lots": lots, "count": len(lots)})
}

func (r *Router) handleTrades(c *gin.Context) {
	ctx := c.Request.Context()
	var trades []journal.TradeEvent
	var err error
	if symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol"))); symbol != "" {
		trades, err = r.store.GetTradesBySymbol(ctx, symbol)
	} else {
		trades, err = r.store.GetAllTrades(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (r *Router) handleSummary(c *gin.Context) {
	date := c.Param("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	summary, found, err := r.store.GetDailySummary(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for " + date})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (r *Router) handleSummaryRebuild(c *gin.Context) {
	date := c.Param("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	summary, err := r.journal.DailySummary(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (r *Router) handleImport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field 'file'"})
		return
	}
	name := filepath.Base(file.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".xlsx", ".xls", ".csv", ".json":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type " + ext})
		return
	}

	dir := r.uploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	dst := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	report, err := r.importer.ImportFile(c.Request.Context(), dst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) handleRefresh(c *gin.Context) {
	reports, err := r.importer.ScanOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": reports, "count": len(reports)})
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validDate(date string) bool {
	return dateRe.MatchString(date)
}
