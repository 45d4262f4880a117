package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fupan/internal/journal"
	"fupan/internal/logger"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// tradesSchema 约束 JSON 导入文件的结构：顶层 trades 数组，
// 每条记录至少带 symbol / action / quantity / price / trade_date。
const tradesSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["trades"],
	"properties": {
		"broker": {"type": "string"},
		"trades": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["symbol", "action", "quantity", "price", "trade_date"],
				"properties": {
					"symbol": {"type": "string", "minLength": 1},
					"action": {"type": "string"},
					"quantity": {"type": "number", "exclusiveMinimum": 0},
					"price": {"type": "number", "minimum": 0},
					"amount": {"type": "number"},
					"commission": {"type": "number", "minimum": 0},
					"trade_date": {"type": "string", "minLength": 8},
					"trade_time": {"type": "string"},
					"security_name": {"type": "string"},
					"security_type": {"type": "string"}
				}
			}
		}
	}
}`

var compiledTradesSchema = jsonschema.MustCompileString("trades.schema.json", tradesSchema)

// parseJSONFile 解析 JSON 格式的成交导入文件。
// 先整体过 schema 校验，再用 gjson 逐条提取。
func (p *Parser) parseJSONFile(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, err
	}
	if !gjson.ValidBytes(data) {
		return Batch{}, fmt.Errorf("invalid json: %s", path)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Batch{}, err
	}
	if err := compiledTradesSchema.Validate(doc); err != nil {
		return Batch{}, fmt.Errorf("json schema validation failed: %w", err)
	}

	batch := Batch{
		BatchID:  uuid.NewString(),
		Filename: filepath.Base(path),
		Broker:   "json",
	}
	if b := gjson.GetBytes(data, "broker").String(); b != "" {
		batch.Broker = b
	}

	for i, item := range gjson.GetBytes(data, "trades").Array() {
		raw := make(map[string]string)
		item.ForEach(func(k, v gjson.Result) bool {
			raw[k.String()] = v.String()
			return true
		})
		batch.Raw = append(batch.Raw, raw)

		action, err := normalizeAction(item.Get("action").String(), Profile{})
		if err != nil {
			batch.Skipped++
			logger.Warnf("跳过第 %d 条 JSON 记录 (%s): %v", i, batch.Filename, err)
			continue
		}
		date, _, err := normalizeDate(item.Get("trade_date").String(), nil)
		if err != nil {
			batch.Skipped++
			logger.Warnf("跳过第 %d 条 JSON 记录 (%s): %v", i, batch.Filename, err)
			continue
		}

		evt := journal.TradeEvent{
			Symbol:       strings.ToUpper(item.Get("symbol").String()),
			Date:         date,
			Time:         normalizeTime(item.Get("trade_time").String()),
			Action:       action,
			Quantity:     item.Get("quantity").Float(),
			Price:        item.Get("price").Float(),
			Amount:       item.Get("amount").Float(),
			Commission:   item.Get("commission").Float(),
			SecurityName: item.Get("security_name").String(),
			SecurityType: strings.ToUpper(item.Get("security_type").String()),
			Sequence:     p.seq.Add(1),
			Broker:       batch.Broker,
			SourceFile:   batch.Filename,
			BatchID:      batch.BatchID,
		}
		if evt.Amount == 0 {
			evt.Amount = round2(evt.Quantity * evt.Price)
		}
		p.classify(&evt)
		batch.Trades = append(batch.Trades, evt)
	}
	return batch, nil
}
