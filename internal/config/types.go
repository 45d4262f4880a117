package config

// Config 是复盘系统的主配置载体。
type Config struct {
	App     AppConfig     `toml:"app"`
	Storage StorageConfig `toml:"storage"`
	Import  ImportConfig  `toml:"import"`
	Summary SummaryConfig `toml:"summary"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// StorageConfig 描述持仓库与原始数据归档的落盘位置。
type StorageConfig struct {
	DBPath     string `toml:"db_path"`
	ArchiveDir string `toml:"archive_dir"`
}

// ImportConfig 控制交易记录文件的导入来源。
type ImportConfig struct {
	WatchDir    string `toml:"watch_dir"`    // 券商导出文件所在目录
	BrokersPath string `toml:"brokers_path"` // 券商列映射 profile 文件
	ScanCron    string `toml:"scan_cron"`    // 周期扫描表达式，如 "@hourly"
	ScanOnStart bool   `toml:"scan_on_start"`
}

// SummaryConfig 控制每日汇总任务与看板趋势窗口。
type SummaryConfig struct {
	DailyHour int `toml:"daily_hour"` // 每日汇总触发整点 0~23
	TrendDays int `toml:"trend_days"` // 看板每日盈亏趋势回看天数
}
