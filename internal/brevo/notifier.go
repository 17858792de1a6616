package brevo

import (
	"context"
	"fmt"
)

// Notifier はClientを顧客登録フローの通知インターフェースに適合させる。
// リストIDとテンプレートIDは設定から注入する。
type Notifier struct {
	client     *Client
	listID     int64
	templateID int
}

// NewNotifier はNotifierを生成する。
func NewNotifier(client *Client, listID int64, templateID int) *Notifier {
	return &Notifier{
		client:     client,
		listID:     listID,
		templateID: templateID,
	}
}

// CreateContact は顧客をマーケティングリストへ登録する。
// リストIDが未設定の場合はリスト指定なしで連絡先だけを作成する。
func (n *Notifier) CreateContact(ctx context.Context, customerID, email string) error {
	var lists []int64
	if n.listID != 0 {
		lists = []int64{n.listID}
	}
	return n.client.CreateContact(ctx, lists, customerID, email)
}

// SendVerificationEmail はメールアドレス検証メールを送信する。
func (n *Notifier) SendVerificationEmail(ctx context.Context, name, address, verificationLink string) error {
	return n.client.SendVerificationEmail(ctx, VerificationEmail{
		TemplateID:       n.templateID,
		CustomerName:     name,
		CustomerEmail:    address,
		Subject:          "メールアドレスの確認",
		VerificationLink: verificationLink,
		GreetingsTitle:   fmt.Sprintf("%sさん、ようこそ", name),
	})
}
