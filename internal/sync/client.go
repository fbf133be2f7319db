package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"coffee_pos/internal/ledger"
)

// Client 是终端到账本服务的 HTTP 提交客户端。
// 会话租户通过 X-Business-ID 头携带（真实部署里由登录网关下发）。
type Client struct {
	baseURL    string
	businessID string
	http       *http.Client
}

func NewClient(baseURL, businessID string) *Client {
	return &Client{
		baseURL:    baseURL,
		businessID: businessID,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Online 用 /ping 探活，短超时，失败即视为离线。
func (c *Client) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Commit 调远端提交接口。409 映射为 ledger.ErrDuplicateOrder，
// 让 Sweeper 走幂等对账路径。
func (c *Client) Commit(ctx context.Context, payload CommitPayload) (ledger.CommitResult, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return ledger.CommitResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders/commit", bytes.NewReader(b))
	if err != nil {
		return ledger.CommitResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Business-ID", c.businessID)

	resp, err := c.http.Do(req)
	if err != nil {
		return ledger.CommitResult{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusConflict {
		return ledger.CommitResult{}, ledger.ErrDuplicateOrder
	}
	if resp.StatusCode != http.StatusOK {
		return ledger.CommitResult{}, fmt.Errorf("commit status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Code int                 `json:"code"`
		Msg  string              `json:"msg"`
		Data ledger.CommitResult `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return ledger.CommitResult{}, fmt.Errorf("decode commit response: %w", err)
	}
	if out.Code != 0 {
		return ledger.CommitResult{}, fmt.Errorf("commit rejected: %s", out.Msg)
	}
	return out.Data, nil
}

// PushCustomer 回填客户姓名/手机号到远端订单。
func (c *Client) PushCustomer(ctx context.Context, orderID, name, phone string) error {
	body, err := json.Marshal(map[string]string{
		"customer_name":  name,
		"customer_phone": phone,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/orders/%s/customer", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Business-ID", c.businessID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push customer status=%d body=%s", resp.StatusCode, string(b))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
