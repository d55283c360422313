package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"kestrel/internal/growth"
	"kestrel/internal/logger"
	"kestrel/internal/store/decisionlog"
	"kestrel/internal/store/gormstore"
)

// RunOverrides 是手动触发模拟时允许覆盖的参数。
// 零值字段表示沿用配置文件中的值。
type RunOverrides struct {
	Strategy       string
	HistoryDays    int
	InitialCapital float64
}

// SimulationRunner 按需执行一次增长模拟。
type SimulationRunner interface {
	RunSimulation(ctx context.Context, overrides RunOverrides) (*growth.Result, error)
}

// Router 挂载增长模拟与自动化决策的查询 / 控制端点。
type Router struct {
	runs      *gormstore.GormStore
	decisions *decisionlog.Store
	runner    SimulationRunner
	statusFn  func() map[string]any
}

// NewRouter 组装路由依赖。runs 必填；decisions 与 runner 可选，
// 对应端点在缺失时返回 503。
func NewRouter(runs *gormstore.GormStore, decisions *decisionlog.Store, runner SimulationRunner) (*Router, error) {
	if runs == nil {
		return nil, fmt.Errorf("http router: run store 不能为空")
	}
	return &Router{runs: runs, decisions: decisions, runner: runner}, nil
}

// WithStatus 注入自动化状态快照函数，/api/automation/status 会合并其输出。
func (r *Router) WithStatus(fn func() map[string]any) *Router {
	r.statusFn = fn
	return r
}

// Register 注册全部端点。
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/growth/runs", r.handleListRuns)
	group.GET("/growth/runs/:id", r.handleGetRun)
	group.GET("/growth/runs/:id/trades", r.handleListTrades)
	group.POST("/growth/run", r.handleTriggerRun)
	group.GET("/automation/decisions", r.handleListDecisions)
	group.GET("/automation/status", r.handleAutomationStatus)
}

// handleAutomationStatus 返回自动化配置快照与最近的决策记录。
func (r *Router) handleAutomationStatus(c *gin.Context) {
	payload := gin.H{}
	if r.statusFn != nil {
		for k, v := range r.statusFn() {
			payload[k] = v
		}
	}
	if r.decisions != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		recent, err := r.decisions.List(ctx, decisionlog.Query{Limit: 10})
		if err != nil {
			logger.Warnf("查询最近决策失败 ip=%s: %v", c.ClientIP(), err)
		} else {
			payload["recent_decisions"] = recent
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (r *Router) handleListRuns(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50, 1, 500)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	runs, err := r.runs.ListRuns(ctx, limit)
	if err != nil {
		logger.Errorf("查询模拟运行列表失败 ip=%s: %v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询运行列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (r *Router) handleGetRun(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	result, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gormstore.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "运行记录不存在", "run_id": runID})
			return
		}
		logger.Errorf("查询模拟运行失败 run_id=%s ip=%s: %v", runID, c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询运行记录失败"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) handleListTrades(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	limit := parseIntQuery(c, "limit", 1000, 1, 5000)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	trades, err := r.runs.ListTrades(ctx, runID, limit)
	if err != nil {
		logger.Errorf("查询成交流水失败 run_id=%s ip=%s: %v", runID, c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询成交流水失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "trades": trades, "count": len(trades)})
}

// handleTriggerRun 手动触发一次模拟。请求体可为空，也可携带
// {"strategy":"...","history_days":180,"initial_capital":10000} 覆盖配置。
func (r *Router) handleTriggerRun(c *gin.Context) {
	if r.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "模拟执行器未启用"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败"})
		return
	}
	overrides, err := parseRunOverrides(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	result, err := r.runner.RunSimulation(ctx, overrides)
	if err != nil {
		var mdErr *growth.MarketDataError
		if errors.As(err, &mdErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "行情数据缺失", "asset": mdErr.Asset, "detail": mdErr.Error()})
			return
		}
		logger.Errorf("手动触发模拟失败 ip=%s: %v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "增长模拟未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":           result.RunID,
		"duration_days":    result.Metrics.DurationDays,
		"total_return_pct": result.Metrics.TotalReturnPct,
		"cagr":             result.Metrics.CAGR,
		"max_drawdown_pct": result.Metrics.MaxDrawdownPct,
		"progress_pct":     result.Progress.Pct,
		"chart_paths":      result.ChartPaths,
	})
}

func (r *Router) handleListDecisions(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策日志未启用"})
		return
	}
	q := decisionlog.Query{
		Symbol: strings.TrimSpace(c.Query("symbol")),
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  parseIntQuery(c, "limit", 50, 1, 500),
		Offset: parseIntQuery(c, "offset", 0, 0, 1<<30),
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	recs, err := r.decisions.List(ctx, q)
	if err != nil {
		logger.Errorf("查询决策日志失败 ip=%s: %v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询决策日志失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
}

// parseRunOverrides 用 gjson 做宽松解析：空体合法，未知字段忽略，
// 但出现的字段必须类型正确且取值合理。
func parseRunOverrides(body []byte) (RunOverrides, error) {
	var overrides RunOverrides
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return overrides, nil
	}
	if !gjson.ValidBytes(body) {
		return overrides, fmt.Errorf("请求体不是合法 JSON")
	}
	if v := gjson.GetBytes(body, "strategy"); v.Exists() {
		if v.Type != gjson.String {
			return overrides, fmt.Errorf("strategy 必须是字符串")
		}
		overrides.Strategy = strings.TrimSpace(v.String())
	}
	if v := gjson.GetBytes(body, "history_days"); v.Exists() {
		if v.Type != gjson.Number {
			return overrides, fmt.Errorf("history_days 必须是数字")
		}
		days := int(v.Int())
		if days < 2 {
			return overrides, fmt.Errorf("history_days 至少为 2, 当前 %d", days)
		}
		overrides.HistoryDays = days
	}
	if v := gjson.GetBytes(body, "initial_capital"); v.Exists() {
		if v.Type != gjson.Number {
			return overrides, fmt.Errorf("initial_capital 必须是数字")
		}
		capital := v.Float()
		if capital <= 0 {
			return overrides, fmt.Errorf("initial_capital 必须为正, 当前 %.2f", capital)
		}
		overrides.InitialCapital = capital
	}
	return overrides, nil
}

func parseIntQuery(c *gin.Context, name string, fallback, min, max int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
