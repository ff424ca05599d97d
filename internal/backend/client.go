// Package backend はShelterLinkバックエンドREST APIのクライアントを提供する。
// 寄付・リクエスト・マッチの永続化とプロフィール管理はすべてバックエンドが担い、
// このパッケージはJSON over HTTPの呼び出しとエラー形式の変換のみを行う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（5MB）。
	maxResponseSize = 5 << 20
	// userAgent はバックエンド呼び出し時のUser-Agent。
	userAgent = "ShelterLink-BFF/1.0"
)

// CallRecorder はバックエンド呼び出しの結果を記録するインターフェース。
// metrics.Collector が実装する。
type CallRecorder interface {
	RecordBackendCall(operation string, statusCode int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordBackendCall(string, int, time.Duration) {}

// RemoteError はバックエンドが2xx以外を返したことを表す。
// Detailにはバックエンドの {detail: string} をそのまま保持する。
type RemoteError struct {
	Operation  string
	StatusCode int
	Detail     string
}

// Error はバックエンドのdetailをそのまま返す。
func (e *RemoteError) Error() string {
	return e.Detail
}

// NotFound はリソースが存在しない（404）ことを表すかを返す。
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound はerrが404のRemoteErrorかどうかを返す。
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.NotFound()
}

// Client はShelterLinkバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	recorder   CallRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLの末尾のスラッシュは取り除く。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   noopRecorder{},
	}
}

// SetRecorder は呼び出し結果の記録先を設定する。
func (c *Client) SetRecorder(r CallRecorder) {
	if r == nil {
		r = noopRecorder{}
	}
	c.recorder = r
}

// errorBody はバックエンドのエラーレスポンス形式。
// detailは通常文字列だが、入力検証エラーでは配列になることがある。
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// do はリクエストを実行し、2xxの場合はoutにJSONデコードする。
// outがnilの場合はボディを読み捨てる。
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordBackendCall(op, 0, time.Since(start))
		c.logger.Error("バックエンドへのリクエストに失敗しました",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.recorder.RecordBackendCall(op, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := &RemoteError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(data, resp.StatusCode),
		}
		c.logger.Warn("バックエンドがエラーステータスを返しました",
			slog.String("operation", op),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", remoteErr.Detail),
		)
		return remoteErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// extractDetail はエラーレスポンスからdetailを取り出す。
// 文字列ならそのまま、それ以外はJSONテキストをそのまま返す。
func extractDetail(data []byte, statusCode int) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return fmt.Sprintf("backend returned status %d", statusCode)
}

// pathEscape はパスセグメントをエスケープする。
func pathEscape(segment string) string {
	return url.PathEscape(segment)
}
