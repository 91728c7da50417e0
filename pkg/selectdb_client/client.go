package selectdbclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// 相同 label 重复提交时返回, 说明上一次已经导入成功
const STATUS_LABEL_EXISTS = "Label Already Exists"

// Client 配置 SelectDB HTTP Client
type Client struct {
	BaseURL    string // 例如 http://localhost:8030
	Database   string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// NewClient 创建 Client
func NewClient(baseURL, database, username, password string) *Client {
	c := &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Database: database,
		Username: username,
		Password: password,
	}
	c.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		// FE 会 307 到 BE, 跨 host 跳转时 net/http 会丢掉 Authorization
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			c.setAuth(req)
			return nil
		},
	}
	return c
}

// StreamLoadOptions 流式上传选项
type StreamLoadOptions struct {
	Table   string
	Format  string   // json, csv 等
	Columns []string // json 字段名与列名一致
	Label   string   // 重试时复用同一个 label 保证只导入一次
}

// StreamLoadResult Stream Load 返回体
type StreamLoadResult struct {
	Status           string `json:"Status"`
	Message          string `json:"Message"`
	Label            string `json:"Label"`
	NumberLoadedRows int64  `json:"NumberLoadedRows"`
	ErrorURL         string `json:"ErrorURL"`
}

// StreamLoad 通过 HTTP 流式上传 json 数组
func (c *Client) StreamLoad(ctx context.Context, data io.Reader, opts StreamLoadOptions) (StreamLoadResult, error) {
	url := fmt.Sprintf("%s/api/%s/%s/_stream_load", c.BaseURL, c.Database, opts.Table)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, data)
	if err != nil {
		return StreamLoadResult{}, fmt.Errorf("create request failed: %w", err)
	}
	c.setAuth(req)

	format := opts.Format
	if format == "" {
		format = "json"
	}
	// 必要的 Stream Load Header
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("format", format)
	if opts.Label != "" {
		req.Header.Set("label", opts.Label)
	}
	if format == "json" {
		req.Header.Set("strip_outer_array", "true")
		if len(opts.Columns) > 0 {
			paths := make([]string, len(opts.Columns))
			for i, col := range opts.Columns {
				paths[i] = `"$.` + col + `"`
			}
			req.Header.Set("jsonpaths", "["+strings.Join(paths, ",")+"]")
		}
	}
	if len(opts.Columns) > 0 {
		req.Header.Set("columns", strings.Join(opts.Columns, ","))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return StreamLoadResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var st StreamLoadResult
	_ = sonic.Unmarshal(body, &st)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return st, fmt.Errorf("stream load failed: status=%d, body=%s", resp.StatusCode, string(body))
	}
	if st.Status != "Success" && st.Status != STATUS_LABEL_EXISTS {
		return st, fmt.Errorf("stream load failed: status=%s, message=%s, error_url=%s", st.Status, st.Message, st.ErrorURL)
	}
	return st, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}
