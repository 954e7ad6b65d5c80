package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type client struct {
	http  *http.Client
	base  string
	token string
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	username := flag.String("user", "loadtest", "account used for the run (registered if missing)")
	password := flag.String("password", "loadtest-pass", "account password")
	initialStock := flag.Int64("stock", 50, "stock of the product created for the run")

	// 超卖测试：200 个客户并发各买 1 件
	nUsers := flag.Int("users", 200, "distinct customers")
	concurrency := flag.Int("c", 50, "max concurrency")
	nUpdates := flag.Int("updates", 100, "concurrent quantity updates on a single order")
	flag.Parse()

	c := &client{http: &http.Client{Timeout: 10 * time.Second}, base: *baseURL}
	if err := c.login(*username, *password); err != nil {
		fail("login: %v", err)
	}

	productID, err := c.createProduct(fmt.Sprintf("loadtest-%d", time.Now().Unix()), *initialStock)
	if err != nil {
		fail("create product: %v", err)
	}

	// 1) 不超卖：不同客户并发下单
	fmt.Printf("start oversell test: product=%d stock=%d users=%d concurrency=%d\n", productID, *initialStock, *nUsers, *concurrency)
	results := runParallel(*nUsers, *concurrency, func(i int) Result {
		return c.do(http.MethodPost, "/api/orders/create", map[string]any{
			"product_id":    productID,
			"customer_name": fmt.Sprintf("customer-%d", i+1),
			"quantity":      1,
		})
	})
	summary := printSummary("oversell", results)

	stock, err := c.stock(productID)
	if err != nil {
		fail("stock check: %v", err)
	}
	fmt.Println("final stock:", stock)
	if stock < 0 || int64(summary[http.StatusOK])+stock != *initialStock {
		fail("invariant broken: %d successful orders + stock %d != %d", summary[http.StatusOK], stock, *initialStock)
	}

	// 2) 同一订单并发改数量：最终 库存 + 订单数量 必须守恒
	if stock == 0 {
		fmt.Println("\nno stock left, skip update test")
		return
	}
	orderID, err := c.createOrder(productID, "update-target", 1)
	if err != nil {
		fail("create order: %v", err)
	}
	before, _ := c.stock(productID)
	fmt.Printf("\nstart update test: order=%d updates=%d\n", orderID, *nUpdates)
	results = runParallel(*nUpdates, *concurrency, func(int) Result {
		return c.do(http.MethodPut, fmt.Sprintf("/api/orders/update/%d", orderID), map[string]any{
			"new_quantity": 1 + rand.IntN(int(before)+1),
		})
	})
	printSummary("update", results)

	after, err := c.stock(productID)
	if err != nil {
		fail("stock check: %v", err)
	}
	qty, err := c.orderQuantity(orderID)
	if err != nil {
		fail("order check: %v", err)
	}
	fmt.Printf("order quantity=%d stock=%d\n", qty, after)
	if after < 0 || qty+after != before+1 {
		fail("invariant broken: quantity %d + stock %d != %d", qty, after, before+1)
	}
	fmt.Println("ok")
}

func runParallel(total, concurrency int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) map[int]int {
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
	return count
}

func (c *client) do(method, path string, body any) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return Result{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

// call 发请求并把 data 解到 out。
func (c *client) call(method, path string, body, out any) error {
	res := c.do(method, path, body)
	if res.Err != nil {
		return res.Err
	}
	if res.Status >= 300 {
		return fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	if out == nil {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Body), &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// login 先尝试注册（已存在返回 409，忽略），再登录拿 token。
func (c *client) login(username, password string) error {
	creds := map[string]string{"username": username, "password": password}
	if res := c.do(http.MethodPost, "/api/auth/register", creds); res.Err != nil {
		return res.Err
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := c.call(http.MethodPost, "/api/auth/login", creds, &tok); err != nil {
		return err
	}
	c.token = tok.Token
	return nil
}

func (c *client) createProduct(name string, stock int64) (uint, error) {
	var p struct {
		ID uint `json:"id"`
	}
	err := c.call(http.MethodPost, "/api/products", map[string]any{"name": name, "unit_price": 100, "stock": stock}, &p)
	return p.ID, err
}

func (c *client) createOrder(productID uint, customer string, qty int64) (uint, error) {
	var o struct {
		ID uint `json:"id"`
	}
	err := c.call(http.MethodPost, "/api/orders/create", map[string]any{
		"product_id": productID, "customer_name": customer, "quantity": qty,
	}, &o)
	return o.ID, err
}

// stock 查询数据库中的当前库存，用于压测后校验是否出现超卖。
func (c *client) stock(productID uint) (int64, error) {
	var p struct {
		Stock int64 `json:"stock"`
	}
	err := c.call(http.MethodGet, fmt.Sprintf("/api/products/%d", productID), nil, &p)
	return p.Stock, err
}

func (c *client) orderQuantity(orderID uint) (int64, error) {
	var rows []struct {
		OrderID  uint  `json:"order_id"`
		Quantity int64 `json:"quantity"`
	}
	if err := c.call(http.MethodGet, "/api/orders/all-orders", nil, &rows); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.OrderID == orderID {
			return r.Quantity, nil
		}
	}
	return 0, fmt.Errorf("order %d not found", orderID)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
