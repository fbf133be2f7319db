package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type commitItem struct {
	MenuItemID uint   `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

type commitReq struct {
	OrderID       string       `json:"order_id"`
	IsPaid        bool         `json:"is_paid"`
	PaymentMethod string       `json:"payment_method"`
	QuickOrder    bool         `json:"quick_order"`
	Items         []commitItem `json:"items"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "ledger base url")
	businessID := flag.String("business", "", "business id header")

	// 提交风暴参数：n 笔不同订单并发提交
	nOrders := flag.Int("orders", 200, "distinct orders")
	concurrency := flag.Int("c", 50, "max concurrency")

	// 重试风暴参数：同一订单 id 重复提交（模拟回放重试），只应成功一次
	retries := flag.Int("retries", 50, "replays of a single order id")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	// 1) 吞吐测试：不同订单并发提交，全部应 200
	fmt.Printf("start commit storm: orders=%d concurrency=%d\n", *nOrders, *concurrency)
	results := runCommits(client, *baseURL, *businessID, *nOrders, *concurrency)
	printSummary("commit_storm", results)

	// 2) 幂等测试：同一订单 id 重复提交，应 1 次 200、其余 409
	orderID := uuid.New().String()
	fmt.Printf("\nstart idempotency storm: order=%s replays=%d\n", orderID, *retries)
	results2 := runReplays(client, *baseURL, *businessID, orderID, *retries, *concurrency)
	printSummary("idempotency_storm", results2)
}

func runCommits(client *http.Client, baseURL, businessID string, nOrders, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, nOrders)

	for i := 0; i < nOrders; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := commitReq{
				OrderID:       uuid.New().String(),
				IsPaid:        true,
				PaymentMethod: "cash",
				QuickOrder:    true,
				Items: []commitItem{
					{MenuItemID: 1, Name: "espresso", Quantity: 1, Price: 1200},
				},
			}
			results[idx] = commitOnce(client, baseURL, businessID, req)
		}(i)
	}

	wg.Wait()
	return results
}

func runReplays(client *http.Client, baseURL, businessID, orderID string, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := commitReq{
				OrderID:       orderID,
				IsPaid:        true,
				PaymentMethod: "card",
				QuickOrder:    true,
				Items: []commitItem{
					{MenuItemID: 2, Name: "flat white", Quantity: 2, Price: 1400},
				},
			}
			results[idx] = commitOnce(client, baseURL, businessID, req)
		}(i)
	}

	wg.Wait()
	return results
}

func commitOnce(client *http.Client, baseURL, businessID string, req commitReq) Result {
	b, _ := json.Marshal(req)
	url := fmt.Sprintf("%s/api/orders/commit", baseURL)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	if businessID != "" {
		httpReq.Header.Set("X-Business-ID", businessID)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
