package price

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"
	selectdbclient "cryptojackal/pkg/selectdb_client"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SELECTDB_TIME_LAYOUT = "2006-01-02 15:04:05.000"

var selectDBPriceColumns = []string{
	"chain_id", "token_address", "symbol", "price_usd", "volume_24h", "confidence",
	"volatility", "source_count", "sources", "outlier_detected", "ts",
}

// selectDBPriceRow 字段名与 selectDBPriceColumns 一致
type selectDBPriceRow struct {
	ChainID         int64   `json:"chain_id"`
	TokenAddress    string  `json:"token_address"`
	Symbol          string  `json:"symbol"`
	PriceUSD        float64 `json:"price_usd"`
	Volume24h       float64 `json:"volume_24h"`
	Confidence      float64 `json:"confidence"`
	Volatility      float64 `json:"volatility"`
	SourceCount     int     `json:"source_count"`
	Sources         string  `json:"sources"`
	OutlierDetected bool    `json:"outlier_detected"`
	Ts              string  `json:"ts"`
}

// SelectDBPriceWriter 价格快照写入分析库, 同一批次重试复用 label
type SelectDBPriceWriter struct {
	client  *selectdbclient.Client
	table   string
	chainID int64
	tl      *zap.Logger
}

func NewSelectDBPriceWriter(client *selectdbclient.Client, table string, chainID int64, tl *zap.Logger) writer.BatchWriter[model.AggregatedPrice] {
	return &SelectDBPriceWriter{client: client, table: table, chainID: chainID, tl: tl}
}

func (w *SelectDBPriceWriter) BWrite(ctx context.Context, prices []model.AggregatedPrice) error {
	if len(prices) == 0 {
		return nil
	}
	data, err := sonic.Marshal(toSelectDBRows(w.chainID, prices))
	if err != nil {
		return err
	}
	label := fmt.Sprintf("price_%d_%s", w.chainID, strings.ReplaceAll(uuid.NewString(), "-", ""))

	newCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		var res selectdbclient.StreamLoadResult
		res, err = w.client.StreamLoad(newCtx, bytes.NewReader(data), selectdbclient.StreamLoadOptions{
			Table:   w.table,
			Format:  "json",
			Columns: selectDBPriceColumns,
			Label:   label,
		})
		if err == nil {
			w.tl.Debug("✅ SelectDB stream load success", zap.String("label", label), zap.Int64("rows", res.NumberLoadedRows))
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	w.tl.Warn("❌ SelectDB stream load failed, exceeded the maximum number of retries", zap.Error(err), zap.String("label", label), zap.Int("snapshots", len(prices)))
	return err
}

func toSelectDBRows(chainID int64, prices []model.AggregatedPrice) []selectDBPriceRow {
	rows := make([]selectDBPriceRow, 0, len(prices))
	for _, p := range prices {
		sources := make([]string, len(p.Sources))
		for i, s := range p.Sources {
			sources[i] = string(s)
		}
		rows = append(rows, selectDBPriceRow{
			ChainID:         chainID,
			TokenAddress:    strings.ToLower(p.TokenAddress),
			Symbol:          p.Symbol,
			PriceUSD:        p.PriceUSD,
			Volume24h:       p.Volume24h,
			Confidence:      p.Confidence,
			Volatility:      p.Volatility,
			SourceCount:     p.SourceCount,
			Sources:         strings.Join(sources, ","),
			OutlierDetected: p.OutlierDetected,
			Ts:              p.Timestamp.UTC().Format(SELECTDB_TIME_LAYOUT),
		})
	}
	return rows
}

func (w *SelectDBPriceWriter) Close() error {
	return nil
}
