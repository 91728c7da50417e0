package alert

import (
	"context"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"
	"cryptojackal/pkg/elasticsearch"

	"go.uber.org/zap"
)

// AlertsIndexMapping 告警索引 mapping
var AlertsIndexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"token_address":  map[string]interface{}{"type": "keyword"},
			"symbol":         map[string]interface{}{"type": "keyword"},
			"type":           map[string]interface{}{"type": "keyword"},
			"message":        map[string]interface{}{"type": "text"},
			"current_value":  map[string]interface{}{"type": "double"},
			"previous_value": map[string]interface{}{"type": "double"},
			"change_percent": map[string]interface{}{"type": "double"},
			"timestamp":      map[string]interface{}{"type": "date"},
		},
	},
}

type ESPriceAlertWriter struct {
	esClient *elasticsearch.Client
	logger   *zap.Logger
	index    string
}

func NewESPriceAlertWriter(esClient *elasticsearch.Client, logger *zap.Logger, index string) writer.BatchWriter[model.PriceAlert] {
	return &ESPriceAlertWriter{
		esClient: esClient,
		logger:   logger,
		index:    index,
	}
}

func (w *ESPriceAlertWriter) BWrite(ctx context.Context, alerts []model.PriceAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return w.esClient.BulkWrite(ctx, w.bulkOperations(alerts))
}

func (w *ESPriceAlertWriter) bulkOperations(alerts []model.PriceAlert) []elasticsearch.BulkOperation {
	operations := make([]elasticsearch.BulkOperation, 0, len(alerts))
	for _, a := range alerts {
		operations = append(operations, elasticsearch.BulkOperation{
			Action:   "index",
			Index:    w.index,
			ID:       a.ID,
			Document: convertToESDoc(a),
		})
	}
	return operations
}

func (w *ESPriceAlertWriter) Close() error {
	return nil
}

func convertToESDoc(a model.PriceAlert) map[string]interface{} {
	return map[string]interface{}{
		"token_address":  a.TokenAddress,
		"symbol":         a.Symbol,
		"type":           string(a.Type),
		"message":        a.Message,
		"current_value":  a.CurrentValue,
		"previous_value": a.PreviousValue,
		"change_percent": a.ChangePercent,
		"timestamp":      a.Timestamp.UnixMilli(),
	}
}
