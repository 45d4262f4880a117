package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// OptionInfo 是从期权代码解析出来的结构化信息。
type OptionInfo struct {
	Underlying string `json:"underlying"`
	Expiry     string `json:"expiry"`
	Right      string `json:"right"`
}

const (
	SecurityTypeStock  = "STOCK"
	SecurityTypeOption = "OPTION"

	RightCall = "CALL"
	RightPut  = "PUT"
)

// 紧凑格式：标的 + 到期日(MMDD 或 YYMMDD) + C/P，如 AVGO0919C、NVDA250117P。
var compactOptionRe = regexp.MustCompile(`^([A-Z]+)(\d{4}|\d{6})([CP])$`)

// ParseOptionSymbol 识别紧凑格式的期权代码。
// 非期权代码返回 (zero, false)，调用方按股票处理。
// now 用于把 MMDD 补全成完整年份：到期月份早于当前月份时认为是明年。
func ParseOptionSymbol(symbol string, now time.Time) (OptionInfo, bool) {
	m := compactOptionRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return OptionInfo{}, false
	}
	underlying, digits, right := m[1], m[2], m[3]

	var expiry time.Time
	var err error
	switch len(digits) {
	case 6:
		expiry, err = time.Parse("060102", digits)
	case 4:
		expiry, err = time.Parse("0102", digits)
		if err == nil {
			year := now.Year()
			if int(expiry.Month()) < int(now.Month()) {
				year++
			}
			expiry = time.Date(year, expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	if err != nil || expiry.IsZero() {
		return OptionInfo{}, false
	}

	info := OptionInfo{
		Underlying: underlying,
		Expiry:     expiry.Format("2006-01-02"),
		Right:      RightCall,
	}
	if right == "P" {
		info.Right = RightPut
	}
	return info, true
}

// ClassifySecurity 判断代码属于股票还是期权，期权时返回解析结果。
func ClassifySecurity(symbol string, now time.Time) (string, *OptionInfo) {
	if info, ok := ParseOptionSymbol(symbol, now); ok {
		return SecurityTypeOption, &info
	}
	return SecurityTypeStock, nil
}

// DescribeOption 生成形如 "AVGO 2025-09-19 CALL" 的可读描述。
func DescribeOption(info OptionInfo) string {
	return fmt.Sprintf("%s %s %s", info.Underlying, info.Expiry, info.Right)
}
