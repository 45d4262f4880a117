package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fupan/internal/journal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	reg, err := NewRegistry("")
	require.NoError(t, err)
	p := NewParser(reg)
	p.now = func() time.Time { return time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestParseCSVFutuProfile(t *testing.T) {
	csv := "代码,名称,交易方向,成交数量,成交价格,成交金额,手续费,成交日期,成交时间\n" +
		"AAPL,苹果,买入,100,150.50,\"15,050.00\",5.00,2025/08/01,09:31:05\n" +
		"AAPL,苹果,卖出,40,155.00,6200.00,3.00,2025/08/15,10:02:11\n"
	path := writeTempFile(t, "futu.csv", csv)

	p := newTestParser(t)
	batch, err := p.ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "futu", batch.Broker)
	assert.NotEmpty(t, batch.BatchID)
	require.Len(t, batch.Trades, 2)
	assert.Len(t, batch.Raw, 2)
	assert.Equal(t, 0, batch.Skipped)

	buy := batch.Trades[0]
	assert.Equal(t, "AAPL", buy.Symbol)
	assert.Equal(t, journal.ActionBuy, buy.Action)
	assert.Equal(t, "2025-08-01", buy.Date)
	assert.Equal(t, "09:31:05", buy.Time)
	assert.InDelta(t, 100, buy.Quantity, 1e-9)
	assert.InDelta(t, 15050.00, buy.Amount, 1e-9)
	assert.Equal(t, "苹果", buy.SecurityName)
	assert.Equal(t, SecurityTypeStock, buy.SecurityType)
	assert.Equal(t, "futu", buy.Broker)
	assert.Equal(t, batch.BatchID, buy.BatchID)

	sell := batch.Trades[1]
	assert.Equal(t, journal.ActionSell, sell.Action)
	assert.Greater(t, sell.Sequence, buy.Sequence)
}

func TestParseCSVSkipsBadRows(t *testing.T) {
	csv := "symbol,action,quantity,price,amount,commission,trade_date,trade_time\n" +
		"MSFT,buy,10,420.00,4200.00,1.00,2025-08-20,\n" +
		"MSFT,hold,10,420.00,4200.00,1.00,2025-08-20,\n" +
		",buy,10,420.00,4200.00,1.00,2025-08-20,\n"
	path := writeTempFile(t, "generic.csv", csv)

	p := newTestParser(t)
	batch, err := p.ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "generic", batch.Broker)
	require.Len(t, batch.Trades, 1)
	assert.Equal(t, 2, batch.Skipped)
	assert.Len(t, batch.Raw, 3)
}

func TestParseCSVDerivesAmount(t *testing.T) {
	csv := "symbol,action,quantity,price,amount,commission,trade_date,trade_time\n" +
		"TSLA,sell,-30,200.00,,--,2025.08.05,\n"
	path := writeTempFile(t, "derive.csv", csv)

	p := newTestParser(t)
	batch, err := p.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, batch.Trades, 1)

	evt := batch.Trades[0]
	assert.InDelta(t, 30, evt.Quantity, 1e-9)
	assert.InDelta(t, 6000.00, evt.Amount, 1e-9)
	assert.InDelta(t, 0, evt.Commission, 1e-9)
	assert.Equal(t, "2025-08-05", evt.Date)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,234.50", 1234.50},
		{"$12.30", 12.30},
		{"¥8", 8},
		{"HK$1,000", 1000},
		{"-42.5", -42.5},
	}
	for _, tc := range cases {
		got, err := parseNumber(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}

	_, err := parseNumber("abc")
	assert.Error(t, err)
	_, err = parseNumber("")
	assert.Error(t, err)
}

func TestNormalizeDateWithEmbeddedTime(t *testing.T) {
	date, tm, err := normalizeDate("2025-01-17, 09:31:05", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-17", date)
	assert.Equal(t, "09:31:05", tm)

	date, tm, err = normalizeDate("20250801", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-01", date)
	assert.Empty(t, tm)

	_, _, err = normalizeDate("not-a-date", nil)
	assert.Error(t, err)
}

func TestParseOptionSymbol(t *testing.T) {
	now := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)

	info, ok := ParseOptionSymbol("AVGO0919C", now)
	require.True(t, ok)
	assert.Equal(t, "AVGO", info.Underlying)
	assert.Equal(t, "2025-09-19", info.Expiry)
	assert.Equal(t, RightCall, info.Right)

	// 到期月份早于当前月份，归入下一年。
	info, ok = ParseOptionSymbol("TSLA0117P", now)
	require.True(t, ok)
	assert.Equal(t, "2026-01-17", info.Expiry)
	assert.Equal(t, RightPut, info.Right)

	info, ok = ParseOptionSymbol("NVDA250117P", now)
	require.True(t, ok)
	assert.Equal(t, "NVDA", info.Underlying)
	assert.Equal(t, "2025-01-17", info.Expiry)

	_, ok = ParseOptionSymbol("AAPL", now)
	assert.False(t, ok)
	_, ok = ParseOptionSymbol("BRK.B", now)
	assert.False(t, ok)
}

func TestParserClassifiesOptions(t *testing.T) {
	csv := "symbol,action,quantity,price,amount,commission,trade_date,trade_time\n" +
		"AVGO0919C,buy,2,3.50,700.00,1.30,2025-08-20,\n"
	path := writeTempFile(t, "opt.csv", csv)

	p := newTestParser(t)
	batch, err := p.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, batch.Trades, 1)

	evt := batch.Trades[0]
	assert.Equal(t, SecurityTypeOption, evt.SecurityType)
	assert.Equal(t, "AVGO 2025-09-19 CALL", evt.SecurityName)
	require.NotNil(t, evt.Extra)
	assert.Equal(t, "AVGO", evt.Extra["underlying"])
	assert.Equal(t, RightCall, evt.Extra["right"])
}

func TestParserSeparateColumnOptions(t *testing.T) {
	yaml := `
brokers:
  optbroker:
    name: 期权列券商
    detect: ["underlying_code"]
    columns:
      symbol: symbol
      action: action
      quantity: quantity
      price: price
      commission: commission
      date: trade_date
      underlying: underlying_code
      expiry: expiry_date
      right: option_right
    buy_words: ["buy"]
    sell_words: ["sell"]
`
	brokers := writeTempFile(t, "brokers.yaml", yaml)
	reg, err := NewRegistry(brokers)
	require.NoError(t, err)
	p := NewParser(reg)

	csv := "symbol,action,quantity,price,commission,trade_date,underlying_code,expiry_date,option_right\n" +
		"NVDA 250117 P,sell,1,4.20,1.10,2025-08-20,NVDA,2025-01-17,PUT\n"
	path := writeTempFile(t, "opts.csv", csv)

	batch, err := p.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, batch.Trades, 1)

	evt := batch.Trades[0]
	assert.Equal(t, "optbroker", batch.Broker)
	assert.Equal(t, SecurityTypeOption, evt.SecurityType)
	assert.Equal(t, "NVDA", evt.Extra["underlying"])
	assert.Equal(t, "2025-01-17", evt.Extra["expiry"])
	assert.Equal(t, RightPut, evt.Extra["right"])
}

func TestParseJSONFile(t *testing.T) {
	doc := `{
		"broker": "tiger",
		"trades": [
			{"symbol": "aapl", "action": "BUY", "quantity": 10, "price": 150.0, "commission": 1.2, "trade_date": "2025-08-01", "trade_time": "09:31:05"},
			{"symbol": "AAPL", "action": "SELL", "quantity": 5, "price": 160.0, "amount": 800.0, "trade_date": "2025-08-10"}
		]
	}`
	path := writeTempFile(t, "trades.json", doc)

	p := newTestParser(t)
	batch, err := p.ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tiger", batch.Broker)
	require.Len(t, batch.Trades, 2)

	buy := batch.Trades[0]
	assert.Equal(t, "AAPL", buy.Symbol)
	assert.Equal(t, journal.ActionBuy, buy.Action)
	assert.InDelta(t, 1500.0, buy.Amount, 1e-9)
	assert.Equal(t, "09:31:05", buy.Time)

	sell := batch.Trades[1]
	assert.InDelta(t, 800.0, sell.Amount, 1e-9)
}

func TestParseJSONFileRejectsBadSchema(t *testing.T) {
	doc := `{"trades": [{"symbol": "AAPL", "action": "BUY", "quantity": 0, "price": 150.0, "trade_date": "2025-08-01"}]}`
	path := writeTempFile(t, "bad.json", doc)

	p := newTestParser(t)
	_, err := p.ParseFile(path)
	assert.Error(t, err)
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "hello")
	p := newTestParser(t)
	_, err := p.ParseFile(path)
	assert.Error(t, err)
}

func TestRegistryIdentify(t *testing.T) {
	reg, err := NewRegistry("")
	require.NoError(t, err)

	p := reg.Identify([]string{"代码", "交易方向", "成交数量", "成交日期"})
	assert.Equal(t, "futu", p.ID)

	p = reg.Identify([]string{"Symbol", "Buy/Sell", "T. Price", "Comm/Fee"})
	assert.Equal(t, "ib", p.ID)

	p = reg.Identify([]string{"col_a", "col_b"})
	assert.Equal(t, "generic", p.ID)
}

func TestRegistryLoadsFileOverrides(t *testing.T) {
	yaml := `
brokers:
  mybroker:
    name: 自定义券商
    detect: ["mycol"]
    columns:
      symbol: mycol
      action: dir
      quantity: qty
      price: px
      date: dt
    buy_words: ["in"]
    sell_words: ["out"]
`
	path := writeTempFile(t, "brokers.yaml", yaml)

	reg, err := NewRegistry(path)
	require.NoError(t, err)

	snap := reg.Snapshot()
	prof, ok := snap.Profiles["mybroker"]
	require.True(t, ok)
	assert.Equal(t, "mybroker", prof.ID)
	assert.Equal(t, "自定义券商", prof.Name)

	// 内置 profile 仍然保留。
	_, ok = snap.Profiles["futu"]
	assert.True(t, ok)
}
