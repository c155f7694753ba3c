// Package remote はリモートの出品APIのHTTPクライアントを提供する。
// 再試行は行わず、タイムアウトは http.Client と ctx に委ねる。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
	"github.com/hitoshi/furuhon/internal/security"
)

const userAgent = "Furuhon/1.0"

// Options はクライアントの接続設定。
type Options struct {
	BaseURL   string
	Token     string     // 空の場合はAuthorizationヘッダーを付けない
	RateLimit rate.Limit // 1秒あたりのリクエスト数。0以下は無制限
	Burst     int
}

// Client はリモートの出品APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	limiter    *rate.Limiter
	mapper     mapper
	baseURL    string
	token      string
	session    repository.SessionProvider
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, opts Options, logger *slog.Logger, mc metrics.MetricsCollector) *Client {
	limit, burst := opts.RateLimit, opts.Burst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		limiter:    rate.NewLimiter(limit, burst),
		mapper:     mapper{sanitizer: security.NewTextSanitizer(), logger: logger},
		baseURL:    opts.BaseURL,
		token:      opts.Token,
	}
}

// SetSession はリクエストにログインユーザーを付与するためのセッションを設定する。
func (c *Client) SetSession(session repository.SessionProvider) {
	c.session = session
}

// FetchRecent は最新の出品を pageSize 件取得する。
func (c *Client) FetchRecent(ctx context.Context, pageSize int) ([]model.Insertion, error) {
	return c.list(ctx, "fetch_recent", "/v1/insertions", url.Values{"limit": {strconv.Itoa(pageSize)}})
}

// FetchByQuery は検索語に一致する出品を取得する。
func (c *Client) FetchByQuery(ctx context.Context, text string) ([]model.Insertion, error) {
	return c.list(ctx, "fetch_by_query", "/v1/insertions", url.Values{"q": {text}})
}

// FetchAfter は t 以降に作成された出品を取得する。
func (c *Client) FetchAfter(ctx context.Context, t time.Time) ([]model.Insertion, error) {
	return c.list(ctx, "fetch_after", "/v1/insertions", url.Values{"after": {t.UTC().Format(time.RFC3339Nano)}})
}

// FetchBefore は t 以前に作成された出品を取得する。
func (c *Client) FetchBefore(ctx context.Context, t time.Time) ([]model.Insertion, error) {
	return c.list(ctx, "fetch_before", "/v1/insertions", url.Values{"before": {t.UTC().Format(time.RFC3339Nano)}})
}

// FetchSaved はユーザーが保存した出品を取得する。
func (c *Client) FetchSaved(ctx context.Context, userID string, pageSize int) ([]model.Insertion, error) {
	path := "/v1/users/" + url.PathEscape(userID) + "/saved"
	return c.list(ctx, "fetch_saved", path, url.Values{"limit": {strconv.Itoa(pageSize)}})
}

// FetchPublished は出品者自身の出品を取得する。
func (c *Client) FetchPublished(ctx context.Context, sellerID string, pageSize int) ([]model.Insertion, error) {
	path := "/v1/users/" + url.PathEscape(sellerID) + "/insertions"
	return c.list(ctx, "fetch_published", path, url.Values{"limit": {strconv.Itoa(pageSize)}})
}

// FetchByID は指定IDの出品を取得する。見つからない場合はnilを返す。
func (c *Client) FetchByID(ctx context.Context, id string) (*model.Insertion, error) {
	var doc insertionDocument
	status, err := c.do(ctx, "fetch_by_id", http.MethodGet, "/v1/insertions/"+url.PathEscape(id), nil, nil, nil, &doc)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ins, ok := c.mapper.toModel(doc)
	if !ok {
		return nil, fmt.Errorf("リモートAPIが不正な出品を返しました: %s", id)
	}
	return &ins, nil
}

// SetSaveStatus は保存状態の変更を依頼し、書き込み後の状態が desired と一致するかを返す。
// リクエストごとに冪等キーを付与する。
func (c *Client) SetSaveStatus(ctx context.Context, id string, desired bool) (bool, error) {
	body, err := json.Marshal(saveStatusRequest{Saved: desired})
	if err != nil {
		return false, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	headers := http.Header{}
	headers.Set("Idempotency-Key", uuid.NewString())

	var resp saveStatusResponse
	path := "/v1/insertions/" + url.PathEscape(id) + "/saved"
	if _, err := c.do(ctx, "set_save_status", http.MethodPut, path, nil, headers, body, &resp); err != nil {
		return false, err
	}
	return resp.Saved == desired, nil
}

func (c *Client) list(ctx context.Context, op, path string, query url.Values) ([]model.Insertion, error) {
	var resp listResponse
	if _, err := c.do(ctx, op, http.MethodGet, path, query, nil, nil, &resp); err != nil {
		return nil, err
	}
	return c.mapper.toModels(resp.Insertions), nil
}

// do はリクエストを送信してJSONレスポンスを out にデコードし、HTTPステータスを返す。
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, headers http.Header, body []byte, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("リクエスト待機中に中断されました: %w", err)
	}

	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return 0, fmt.Errorf("リクエストURLのパースに失敗しました: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != nil {
		if userID, ok := c.session.CurrentUserID(); ok {
			req.Header.Set("X-User-ID", userID)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordRemoteLatency(op, time.Since(start))
	if err != nil {
		c.logger.Error("リモートAPIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, fmt.Errorf("リモートAPIがステータス %d を返しました", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("リモートAPIがエラーステータスを返しました",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		return resp.StatusCode, fmt.Errorf("リモートAPIがステータス %d を返しました", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("リモートAPIのレスポンスのパースに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return resp.StatusCode, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return resp.StatusCode, nil
}

// compile-time interface check
var _ repository.RemoteService = (*Client)(nil)
