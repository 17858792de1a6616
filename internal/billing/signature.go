package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/hitoshi/customerd/internal/model"
)

// hexSignatureLength はHMAC-SHA256のhex表現長。
const hexSignatureLength = 64

// VerifySignature はWebhookボディの署名を検証する。
// HMAC-SHA256は受信したボディの生バイト列そのものに対して計算する。
// 再シリアライズしたペイロードではキー順や空白の差で正当な署名が落ちる。
// 比較はhex文字列同士で行い、大文字hexは不一致として扱う。
// ヘッダー欠落・長さ不正・不一致はすべて同じエラーにまとめる。
func VerifySignature(rawBody []byte, signatureHex string, secret []byte) error {
	if len(signatureHex) != hexSignatureLength {
		return model.NewInvalidSignatureError()
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHex)) != 1 {
		return model.NewInvalidSignatureError()
	}
	return nil
}
