// Package brevo はBrevo（旧Sendinblue）v3 APIのクライアントを提供する。
// マーケティングリストへの連絡先登録とテンプレートメール送信を含む。
package brevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const defaultBaseURL = "https://api.brevo.com/v3"

// Config はBrevoクライアントの設定。
type Config struct {
	APIKey      string
	SenderName  string
	SenderEmail string

	// BaseURL はテスト用に差し替え可能。未設定時は本番APIを使う。
	BaseURL string
}

// Client はBrevo v3 APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// createContactRequest は連絡先登録エンドポイントのリクエストボディ。
type createContactRequest struct {
	UpdateEnabled    bool    `json:"updateEnabled"`
	Email            string  `json:"email"`
	ExtID            string  `json:"ext_id"`
	EmailBlacklisted bool    `json:"emailBlacklisted"`
	SMSBlacklisted   bool    `json:"smsBlacklisted"`
	ListIDs          []int64 `json:"listIds"`
}

// emailAddress は送信者・宛先の共通表現。
type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// templateParams はテンプレートに渡すパラメータ。
type templateParams struct {
	VerificationLink string `json:"verification_link"`
	GreetingsTitle   string `json:"greetings_title"`
}

// sendEmailRequest はトランザクショナルメール送信のリクエストボディ。
type sendEmailRequest struct {
	Sender     emailAddress   `json:"sender"`
	Subject    string         `json:"subject,omitempty"`
	TemplateID int            `json:"templateId"`
	Params     templateParams `json:"params"`
	To         []emailAddress `json:"to"`
	ReplyTo    emailAddress   `json:"replyTo"`
}

// CreateContact は顧客をマーケティングリストへ登録する。
func (c *Client) CreateContact(ctx context.Context, listIDs []int64, extID, email string) error {
	body := createContactRequest{
		UpdateEnabled: false,
		Email:         email,
		ExtID:         extID,
		ListIDs:       listIDs,
	}
	return c.post(ctx, "/contacts", body)
}

// VerificationEmail は検証メール1通の送信内容。
type VerificationEmail struct {
	TemplateID       int
	CustomerName     string
	CustomerEmail    string
	Subject          string
	VerificationLink string
	GreetingsTitle   string
}

// SendVerificationEmail はメールアドレス検証メールをテンプレート経由で送信する。
func (c *Client) SendVerificationEmail(ctx context.Context, email VerificationEmail) error {
	sender := emailAddress{Email: c.config.SenderEmail, Name: c.config.SenderName}
	body := sendEmailRequest{
		Sender:     sender,
		Subject:    email.Subject,
		TemplateID: email.TemplateID,
		Params: templateParams{
			VerificationLink: email.VerificationLink,
			GreetingsTitle:   email.GreetingsTitle,
		},
		To: []emailAddress{
			{Email: email.CustomerEmail, Name: email.CustomerName},
		},
		ReplyTo: sender,
	}
	return c.post(ctx, "/smtp/email", body)
}

// post はapi-keyヘッダー付きでJSONボディをPOSTする。
func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Brevo APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("Brevo APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("brevo APIがステータス %d を返しました: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
