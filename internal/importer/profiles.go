package importer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"fupan/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Profile 描述一家券商导出文件的列映射与识别关键词。
type Profile struct {
	ID          string            `mapstructure:"id" yaml:"id"`
	Name        string            `mapstructure:"name" yaml:"name"`
	Detect      []string          `mapstructure:"detect" yaml:"detect"`
	Columns     map[string]string `mapstructure:"columns" yaml:"columns"`
	BuyWords    []string          `mapstructure:"buy_words" yaml:"buy_words"`
	SellWords   []string          `mapstructure:"sell_words" yaml:"sell_words"`
	DateFormats []string          `mapstructure:"date_formats" yaml:"date_formats"`
}

// FileConfig 映射 brokers.yaml 的顶层结构。
type FileConfig struct {
	Brokers map[string]Profile `mapstructure:"brokers" yaml:"brokers"`
}

// Snapshot 是某一时刻的 profile 集合。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// Registry 管理券商 profile，文件变更时热加载。
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry 读取 profile 文件并监听更新。path 为空时只用内置 profile。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.setSnapshot(builtinProfiles())
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read broker profiles failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("券商 profile 热加载失败: %v", err)
			return
		}
		logger.Infof("券商 profile 已热加载: %s", evt.Name)
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) reload() error {
	var cfg FileConfig
	if err := r.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return fmt.Errorf("parse broker profiles failed: %w", err)
	}
	merged := builtinProfiles()
	for id, p := range cfg.Brokers {
		if p.ID == "" {
			p.ID = id
		}
		merged[id] = p
	}
	r.setSnapshot(merged)
	return nil
}

func (r *Registry) setSnapshot(profiles map[string]Profile) {
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
}

// Snapshot 返回当前 profile 集合。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{Version: r.snapshot.Version, LoadedAt: r.snapshot.LoadedAt}
	snap.Profiles = make(map[string]Profile, len(r.snapshot.Profiles))
	for k, v := range r.snapshot.Profiles {
		snap.Profiles[k] = v
	}
	return snap
}

// Identify 根据表头关键词挑选最匹配的券商 profile，没有命中时退回通用 profile。
func (r *Registry) Identify(headers []string) Profile {
	snap := r.Snapshot()
	joined := strings.ToLower(strings.Join(headers, "|"))

	best, bestScore := snap.Profiles["generic"], 0
	for _, p := range snap.Profiles {
		if p.ID == "generic" {
			continue
		}
		score := 0
		for _, kw := range p.Detect {
			if kw == "" {
				continue
			}
			if strings.Contains(joined, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

// builtinProfiles 覆盖常见券商的默认列映射，profile 文件可以覆盖同名条目。
func builtinProfiles() map[string]Profile {
	std := []string{"2006-01-02", "2006/01/02", "2006.01.02", "20060102", "01/02/2006"}
	return map[string]Profile{
		"futu": {
			ID:     "futu",
			Name:   "富途证券",
			Detect: []string{"富途", "futu", "成交时间", "交易方向"},
			Columns: map[string]string{
				"symbol":        "代码",
				"security_name": "名称",
				"action":        "交易方向",
				"quantity":      "成交数量",
				"price":         "成交价格",
				"amount":        "成交金额",
				"commission":    "手续费",
				"date":          "成交日期",
				"time":          "成交时间",
			},
			BuyWords:    []string{"买入", "买"},
			SellWords:   []string{"卖出", "卖"},
			DateFormats: std,
		},
		"tiger": {
			ID:     "tiger",
			Name:   "老虎证券",
			Detect: []string{"老虎", "tiger", "佣金"},
			Columns: map[string]string{
				"symbol":        "股票代码",
				"security_name": "股票名称",
				"action":        "方向",
				"quantity":      "数量",
				"price":         "价格",
				"amount":        "金额",
				"commission":    "佣金",
				"date":          "交易日期",
				"time":          "交易时间",
			},
			BuyWords:    []string{"买入", "buy"},
			SellWords:   []string{"卖出", "sell"},
			DateFormats: std,
		},
		"snowball": {
			ID:     "snowball",
			Name:   "雪盈证券",
			Detect: []string{"雪盈", "snowball", "操作类型"},
			Columns: map[string]string{
				"symbol":     "证券代码",
				"action":     "操作类型",
				"quantity":   "成交股数",
				"price":      "成交均价",
				"amount":     "成交额",
				"commission": "费用合计",
				"date":       "日期",
				"time":       "时间",
			},
			BuyWords:    []string{"买入"},
			SellWords:   []string{"卖出"},
			DateFormats: std,
		},
		"ib": {
			ID:     "ib",
			Name:   "Interactive Brokers",
			Detect: []string{"interactive", "ibkr", "comm/fee", "t. price"},
			Columns: map[string]string{
				"symbol":     "Symbol",
				"action":     "Buy/Sell",
				"quantity":   "Quantity",
				"price":      "T. Price",
				"amount":     "Proceeds",
				"commission": "Comm/Fee",
				"date":       "Date/Time",
			},
			BuyWords:    []string{"buy", "bot"},
			SellWords:   []string{"sell", "sld"},
			DateFormats: std,
		},
		"generic": {
			ID:     "generic",
			Name:   "通用",
			Detect: nil,
			Columns: map[string]string{
				"symbol":        "symbol",
				"security_name": "security_name",
				"security_type": "security_type",
				"action":        "action",
				"quantity":      "quantity",
				"price":         "price",
				"amount":        "amount",
				"commission":    "commission",
				"date":          "trade_date",
				"time":          "trade_time",
			},
			BuyWords:    []string{"buy", "买入"},
			SellWords:   []string{"sell", "卖出"},
			DateFormats: std,
		},
	}
}
