package importer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"fupan/internal/journal"
	"fupan/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Batch 是一个导入文件解析后的结果。
// Raw 保留未裁剪的原始行，供归档。
type Batch struct {
	BatchID  string
	Filename string
	Broker   string
	Trades   []journal.TradeEvent
	Raw      []map[string]string
	Skipped  int
}

// Parser 把券商导出文件解析成统一的成交记录。
type Parser struct {
	registry *Registry
	seq      atomic.Int64
	now      func() time.Time
}

func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry, now: time.Now}
}

// ParseFile 按扩展名分发解析。支持 .xlsx / .xls / .csv / .json。
func (p *Parser) ParseFile(path string) (Batch, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xlsx", ".xls":
		headers, rows, err := readExcel(path)
		if err != nil {
			return Batch{}, err
		}
		return p.parseTable(path, headers, rows)
	case ".csv":
		headers, rows, err := readCSV(path)
		if err != nil {
			return Batch{}, err
		}
		return p.parseTable(path, headers, rows)
	case ".json":
		return p.parseJSONFile(path)
	default:
		return Batch{}, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func readExcel(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel failed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("excel file has no sheets: %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read excel rows failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv failed: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	// 去掉可能的 UTF-8 BOM。
	if len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records[0], records[1:], nil
}

func (p *Parser) parseTable(path string, headers []string, rows [][]string) (Batch, error) {
	batch := Batch{
		BatchID:  uuid.NewString(),
		Filename: filepath.Base(path),
	}
	if len(headers) == 0 {
		return batch, nil
	}
	profile := p.registry.Identify(headers)
	batch.Broker = profile.ID

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[normalizeHeader(h)] = i
	}

	for i, row := range rows {
		raw := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(row) {
				raw[h] = strings.TrimSpace(row[j])
			}
		}
		if isEmptyRow(raw) {
			continue
		}
		batch.Raw = append(batch.Raw, raw)

		evt, err := p.convertRow(profile, index, row)
		if err != nil {
			batch.Skipped++
			logger.Warnf("跳过第 %d 行 (%s): %v", i+2, batch.Filename, err)
			continue
		}
		evt.Broker = profile.ID
		evt.SourceFile = batch.Filename
		evt.BatchID = batch.BatchID
		batch.Trades = append(batch.Trades, evt)
	}
	return batch, nil
}

func (p *Parser) convertRow(profile Profile, index map[string]int, row []string) (journal.TradeEvent, error) {
	cell := func(field string) string {
		header, ok := profile.Columns[field]
		if !ok {
			return ""
		}
		i, ok := index[normalizeHeader(header)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	symbol := strings.ToUpper(cell("symbol"))
	if symbol == "" {
		return journal.TradeEvent{}, fmt.Errorf("missing symbol")
	}

	action, err := normalizeAction(cell("action"), profile)
	if err != nil {
		return journal.TradeEvent{}, err
	}

	qty, err := parseNumber(cell("quantity"))
	if err != nil {
		return journal.TradeEvent{}, fmt.Errorf("bad quantity: %w", err)
	}
	price, err := parseNumber(cell("price"))
	if err != nil {
		return journal.TradeEvent{}, fmt.Errorf("bad price: %w", err)
	}
	commission, err := parseOptionalNumber(cell("commission"))
	if err != nil {
		return journal.TradeEvent{}, fmt.Errorf("bad commission: %w", err)
	}
	amount, err := parseOptionalNumber(cell("amount"))
	if err != nil {
		return journal.TradeEvent{}, fmt.Errorf("bad amount: %w", err)
	}

	// 部分券商把卖出数量或手续费记成负数，统一取绝对值。
	if qty < 0 {
		qty = -qty
	}
	if commission < 0 {
		commission = -commission
	}
	if amount < 0 {
		amount = -amount
	}
	if amount == 0 {
		amount = round2(qty * price)
	}

	rawDate := cell("date")
	date, tm, err := normalizeDate(rawDate, profile.DateFormats)
	if err != nil {
		return journal.TradeEvent{}, fmt.Errorf("bad date %q: %w", rawDate, err)
	}
	if t := normalizeTime(cell("time")); t != "" {
		tm = t
	}

	evt := journal.TradeEvent{
		Symbol:       symbol,
		Date:         date,
		Time:         tm,
		Action:       action,
		Quantity:     qty,
		Price:        price,
		Amount:       amount,
		Commission:   commission,
		SecurityName: cell("security_name"),
		SecurityType: strings.ToUpper(cell("security_type")),
		Sequence:     p.seq.Add(1),
	}

	// 部分券商把期权要素拆成独立列，优先于代码推断。
	if u := strings.ToUpper(cell("underlying")); u != "" {
		expiry, _, err := normalizeDate(cell("expiry"), profile.DateFormats)
		if err == nil {
			right := RightCall
			if strings.HasPrefix(strings.ToUpper(cell("right")), "P") {
				right = RightPut
			}
			applyOptionInfo(&evt, OptionInfo{Underlying: u, Expiry: expiry, Right: right})
			return evt, nil
		}
	}
	p.classify(&evt)
	return evt, nil
}

func applyOptionInfo(evt *journal.TradeEvent, info OptionInfo) {
	evt.SecurityType = SecurityTypeOption
	if evt.Extra == nil {
		evt.Extra = make(map[string]any, 3)
	}
	evt.Extra["underlying"] = info.Underlying
	evt.Extra["expiry"] = info.Expiry
	evt.Extra["right"] = info.Right
	if evt.SecurityName == "" {
		evt.SecurityName = DescribeOption(info)
	}
}

// classify 补全证券类型；期权代码额外在 Extra 里记录解析结果。
func (p *Parser) classify(evt *journal.TradeEvent) {
	if evt.SecurityType != "" {
		return
	}
	typ, info := ClassifySecurity(evt.Symbol, p.now())
	evt.SecurityType = typ
	if info != nil {
		applyOptionInfo(evt, *info)
	}
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func isEmptyRow(raw map[string]string) bool {
	for _, v := range raw {
		if v != "" {
			return false
		}
	}
	return true
}

func normalizeAction(raw string, profile Profile) (journal.Action, error) {
	val := strings.ToLower(strings.TrimSpace(raw))
	if val == "" {
		return "", fmt.Errorf("missing action")
	}
	for _, w := range profile.BuyWords {
		if val == strings.ToLower(w) {
			return journal.ActionBuy, nil
		}
	}
	for _, w := range profile.SellWords {
		if val == strings.ToLower(w) {
			return journal.ActionSell, nil
		}
	}
	switch val {
	case "buy", "b", "bot", "买入", "买":
		return journal.ActionBuy, nil
	case "sell", "s", "sld", "卖出", "卖":
		return journal.ActionSell, nil
	}
	return "", fmt.Errorf("unrecognized action %q", raw)
}

// parseNumber 用 decimal 解析金额类字段，容忍货币符号与千分位。
func parseNumber(raw string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", "¥", "", "￥", "", "HK$", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, fmt.Errorf("empty number")
	}
	cleaned = strings.TrimSuffix(cleaned, "股")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

func parseOptionalNumber(raw string) (float64, error) {
	if strings.TrimSpace(raw) == "" || strings.TrimSpace(raw) == "--" {
		return 0, nil
	}
	return parseNumber(raw)
}

func round2(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(2)
	f, _ := d.Float64()
	return f
}

// normalizeDate 把各家券商的日期写法统一成 2006-01-02。
// 带时间的写法（如 IB 的 "2025-01-17, 09:31:05"）会把时间一并拆出来。
func normalizeDate(raw string, formats []string) (string, string, error) {
	val := strings.TrimSpace(raw)
	if val == "" {
		return "", "", fmt.Errorf("missing date")
	}

	tm := ""
	if i := strings.IndexAny(val, ", "); i > 0 && len(val) > i+1 {
		if t := normalizeTime(strings.TrimLeft(val[i+1:], ", ")); t != "" {
			tm = t
			val = strings.TrimSpace(val[:i])
			val = strings.TrimSuffix(val, ",")
		}
	}

	if len(formats) == 0 {
		formats = []string{journal.DateLayout, "2006/01/02", "2006.01.02", "20060102", "01/02/2006"}
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, val); err == nil {
			return t.Format(journal.DateLayout), tm, nil
		}
	}
	return "", "", fmt.Errorf("no layout matched")
}

func normalizeTime(raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		return ""
	}
	for _, layout := range []string{"15:04:05", "15:04", "3:04:05 PM", "150405"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.Format("15:04:05")
		}
	}
	return ""
}
