package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://www.okx.com"

// Client is a signed OKX v5 REST client. Market-data endpoints work without
// credentials; account endpoints require the API key triple.
type Client struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, secretKey, passphrase, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Kline represents a candlestick.
type Kline struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Balance is the account equity snapshot used in the decision prompt.
type Balance struct {
	AvailableUSDT float64 `json:"available_usdt"`
	TotalEquity   float64 `json:"total_equity"`
}

// PositionInfo is the exchange-side view of the open position.
type PositionInfo struct {
	Side       string  `json:"position_side"` // long, short or flat
	Size       float64 `json:"position_size"`
	EntryPrice float64 `json:"entry_price"`
	Leverage   float64 `json:"leverage"`
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// request signs and sends one API call and unmarshals the data payload.
// The signature is HMAC-SHA256 over timestamp+method+path+body, base64
// encoded, per the OKX v5 scheme.
func (c *Client) request(method, requestPath, body string, out interface{}) error {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+requestPath, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, method, requestPath, body))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Code != "0" {
		return fmt.Errorf("API error %s: %s", apiResp.Code, apiResp.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(apiResp.Data, out); err != nil {
			return fmt.Errorf("failed to parse data: %w", err)
		}
	}
	return nil
}

func (c *Client) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// GetKlines fetches candles for the instrument, returned in chronological
// ascending order. Bar values follow OKX conventions (5m, 30m, 2H, 1D).
func (c *Client) GetKlines(instID, bar string, limit int) ([]Kline, error) {
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", instID, bar, limit)

	var raw [][]string
	if err := c.request("GET", path, "", &raw); err != nil {
		return nil, fmt.Errorf("error fetching %s klines: %w", bar, err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, candle := range raw {
		if len(candle) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(candle[0], 10, 64)
		if err != nil {
			continue
		}
		klines = append(klines, Kline{
			Time:   time.UnixMilli(ms).UTC(),
			Open:   parseFloat(candle[1]),
			High:   parseFloat(candle[2]),
			Low:    parseFloat(candle[3]),
			Close:  parseFloat(candle[4]),
			Volume: parseFloat(candle[5]),
		})
	}

	// OKX returns newest first.
	sort.Slice(klines, func(i, j int) bool { return klines[i].Time.Before(klines[j].Time) })
	return klines, nil
}

// GetCurrentPrice fetches the last traded price for the instrument.
func (c *Client) GetCurrentPrice(instID string) (float64, error) {
	path := fmt.Sprintf("/api/v5/market/ticker?instId=%s", instID)

	var data []struct {
		Last string `json:"last"`
	}
	if err := c.request("GET", path, "", &data); err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty ticker response for %s", instID)
	}
	price := parseFloat(data[0].Last)
	if price <= 0 {
		return 0, fmt.Errorf("invalid ticker price %q for %s", data[0].Last, instID)
	}
	return price, nil
}

// GetBalance fetches the trading account equity.
func (c *Client) GetBalance() (*Balance, error) {
	var data []struct {
		TotalEq string `json:"totalEq"`
		Details []struct {
			AvailEq string `json:"availEq"`
		} `json:"details"`
	}
	if err := c.request("GET", "/api/v5/account/balance", "", &data); err != nil {
		return nil, fmt.Errorf("error fetching balance: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty balance response")
	}

	bal := &Balance{TotalEquity: parseFloat(data[0].TotalEq)}
	if len(data[0].Details) > 0 {
		bal.AvailableUSDT = parseFloat(data[0].Details[0].AvailEq)
	}
	return bal, nil
}

// GetPosition fetches the open position for the instrument. A flat account
// yields Side "flat" with zero size.
func (c *Client) GetPosition(instID string) (*PositionInfo, error) {
	path := fmt.Sprintf("/api/v5/account/positions?instId=%s", instID)

	var data []struct {
		Pos   string `json:"pos"`
		AvgPx string `json:"avgPx"`
		Lever string `json:"lever"`
	}
	if err := c.request("GET", path, "", &data); err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	info := &PositionInfo{Side: "flat"}
	if len(data) > 0 {
		size := parseFloat(data[0].Pos)
		info.Leverage = parseFloat(data[0].Lever)
		switch {
		case size > 0:
			info.Side = "long"
			info.Size = size
			info.EntryPrice = parseFloat(data[0].AvgPx)
		case size < 0:
			info.Side = "short"
			info.Size = -size
			info.EntryPrice = parseFloat(data[0].AvgPx)
		}
	}
	return info, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
