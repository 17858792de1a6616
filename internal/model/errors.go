package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, customer, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTermsNotAccepted    = "TERMS_NOT_ACCEPTED"
	ErrCodeInvalidName         = "INVALID_NAME"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeInvalidPassword     = "INVALID_PASSWORD"
	ErrCodePasswordMismatch    = "PASSWORD_CONFIRMATION_MISMATCH"
	ErrCodeEmailEqualsPassword = "EMAIL_EQUALS_PASSWORD"
	ErrCodeUnknownClass        = "UNKNOWN_CLASS"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeMaxEmailsReached    = "MAX_EMAILS_REACHED"
	ErrCodeCustomerNotFound    = "CUSTOMER_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInsufficientScopes  = "INSUFFICIENT_SCOPES"
	ErrCodeIncorrectPassword   = "INCORRECT_PASSWORD"
	ErrCodeProviderMismatch    = "PROVIDER_MISMATCH"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeMissingCustomerID   = "MISSING_CUSTOMER_ID"
	ErrCodeUnknownVariant      = "UNKNOWN_VARIANT"
	ErrCodeInvalidVerifyToken  = "INVALID_VERIFICATION_TOKEN"
)

// NewTermsNotAcceptedError は利用規約未同意エラーを生成する。
func NewTermsNotAcceptedError() *APIError {
	return &APIError{
		Code:     ErrCodeTermsNotAccepted,
		Message:  "利用規約とプライバシーポリシーへの同意が必要です。",
		Category: "validation",
		Action:   "利用規約に同意した上で再度お試しください。",
	}
}

// NewInvalidNameError は名前の形式エラーを生成する。
func NewInvalidNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  "無効な名前です。2文字以上25文字以下で入力してください。",
		Category: "validation",
		Action:   "名前の長さを確認してください。",
	}
}

// NewInvalidEmailError はメールアドレスの形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "無効なメールアドレスです。",
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewInvalidPasswordError はパスワードの形式エラーを生成する。
func NewInvalidPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  "無効なパスワードです。8文字以上100文字以下で、英字と数字を含めてください。",
		Category: "validation",
		Action:   "パスワードの条件を確認してください。",
	}
}

// NewPasswordMismatchError はパスワード確認の不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードと確認用パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewEmailEqualsPasswordError はメールアドレスとパスワードが同一の場合のエラーを生成する。
func NewEmailEqualsPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailEqualsPassword,
		Message:  "メールアドレスとパスワードには異なる値を指定してください。",
		Category: "validation",
		Action:   "メールアドレスと異なるパスワードを設定してください。",
	}
}

// NewUnknownClassError は未知のアカウント種別エラーを生成する。
func NewUnknownClassError(class string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownClass,
		Message:  fmt.Sprintf("無効なアカウント種別です: %s", class),
		Category: "validation",
		Action:   "personal、manager、developer のいずれかを指定してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に使用されています。",
		Category: "customer",
		Action:   "別のメールアドレスを使用してください。",
	}
}

// NewMaxEmailsReachedError はメールアドレス上限エラーを生成する。
func NewMaxEmailsReachedError() *APIError {
	return &APIError{
		Code:     ErrCodeMaxEmailsReached,
		Message:  "登録できるメールアドレスは5件までです。",
		Category: "customer",
		Action:   "不要なメールアドレスの整理をサポートまでご依頼ください。",
	}
}

// NewCustomerNotFoundError は顧客未検出エラーを生成する。
func NewCustomerNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomerNotFound,
		Message:  "顧客が見つかりません。",
		Category: "customer",
		Action:   "IDまたはメールアドレスを確認してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
// リソースの存在有無を漏らさないよう、詳細は含めない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInsufficientScopesError はスコープ不足エラーを生成する。
func NewInsufficientScopesError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientScopes,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "必要なスコープを持つセッションで再度お試しください。",
	}
}

// NewIncorrectPasswordError はパスワード不一致エラーを生成する。
func NewIncorrectPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeIncorrectPassword,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認してください。",
	}
}

// NewProviderMismatchError は認証プロバイダー不一致エラーを生成する。
func NewProviderMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderMismatch,
		Message:  "このメールアドレスは別の認証方法で登録されています。",
		Category: "auth",
		Action:   "登録時に使用した認証方法でログインしてください。",
	}
}

// NewInvalidSignatureError はWebhook署名エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Webhook署名の検証に失敗しました。",
		Category: "billing",
		Action:   "署名キーの設定を確認してください。",
	}
}

// NewMissingCustomerIDError はWebhookのcustom_data不足エラーを生成する。
func NewMissingCustomerIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCustomerID,
		Message:  "Webhookペイロードにcustomer_idが含まれていません。",
		Category: "billing",
		Action:   "チェックアウト時のcustom_data設定を確認してください。",
	}
}

// NewUnknownVariantError は未知のバリアントIDエラーを生成する。
func NewUnknownVariantError(variantID int64) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownVariant,
		Message:  fmt.Sprintf("未知のバリアントIDです: %d", variantID),
		Category: "billing",
		Action:   "商品のバリアントID設定を確認してください。",
	}
}

// NewInvalidVerifyTokenError は検証トークンエラーを生成する。
func NewInvalidVerifyTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVerifyToken,
		Message:  "無効または期限切れの検証トークンです。",
		Category: "auth",
		Action:   "検証メールを再送してください。",
	}
}
