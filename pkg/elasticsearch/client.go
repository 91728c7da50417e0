package elasticsearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Indexes   map[string]map[string]interface{} // indexName -> mapping
}

// BulkOperation 批量操作的结构
type BulkOperation struct {
	Action   string                 `json:"action"` // index, create, delete
	Index    string                 `json:"index"`
	ID       string                 `json:"id"`
	Document map[string]interface{} `json:"document"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	client := &Client{es: es, logger: log}
	for indexName, mapping := range cfg.Indexes {
		if err := client.CreateIndex(context.Background(), indexName, mapping); err != nil {
			log.Error("Failed to initialize ES index", zap.String("index", indexName), zap.Error(err))
		}
	}
	return client, nil
}

// BulkWrite 批量写入, 单条失败时返回第一条错误
func (c *Client) BulkWrite(ctx context.Context, operations []BulkOperation) error {
	if len(operations) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, op := range operations {
		actionLine := map[string]interface{}{
			op.Action: map[string]interface{}{
				"_index": op.Index,
				"_id":    op.ID,
			},
		}
		actionBytes, err := sonic.Marshal(actionLine)
		if err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		buf.Write(actionBytes)
		buf.WriteByte('\n')

		if op.Action != "delete" && op.Document != nil {
			docBytes, err := sonic.Marshal(op.Document)
			if err != nil {
				return fmt.Errorf("marshal bulk document %s: %w", op.ID, err)
			}
			buf.Write(docBytes)
			buf.WriteByte('\n')
		}
	}

	req := esapi.BulkRequest{Body: &buf}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk operation failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk operation error: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read bulk response: %w", err)
	}
	var parsed bulkResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for action, result := range item {
				if result.Error != nil {
					return fmt.Errorf("bulk %s failed: %s: %s", action, result.Error.Type, result.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk operation reported errors")
	}

	c.logger.Debug("Bulk write operation completed", zap.Int("operations", len(operations)))
	return nil
}

// CreateIndex 创建索引, 已存在时忽略
func (c *Client) CreateIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	mappingJSON, err := sonic.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(mappingJSON),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index: %s", res.String())
	}

	c.logger.Info("Index created or already exists", zap.String("index", indexName))
	return nil
}
