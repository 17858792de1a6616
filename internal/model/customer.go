// Package model はドメインモデルを定義する。
package model

// Email は顧客に紐づくメールアドレスを表す。
// 登録直後は未検証。mainは顧客ごとにちょうど1件だけtrueになる。
type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
	Main     bool   `json:"main"`
}

// Preferences は顧客のUI設定を表す。
type Preferences struct {
	DarkMode      bool   `json:"dark_mode"`
	Language      string `json:"language"`
	Notifications bool   `json:"notifications"`
}

// DefaultPreferences は新規顧客のデフォルト設定を返す。
func DefaultPreferences() Preferences {
	return Preferences{
		DarkMode:      false,
		Language:      "en",
		Notifications: true,
	}
}

// Customer はサービスの顧客レコードを表す。
// 日時フィールドはISO-8601文字列として保持する（外部APIの日時表現と揃える）。
type Customer struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Class        CustomerClass `json:"class"`
	Emails       []Email       `json:"emails"`
	AuthProvider AuthProvider  `json:"auth_provider"`

	// security
	PasswordHash     string   `json:"-"`
	BackupCodeHashes []string `json:"-"`

	Preferences  Preferences  `json:"preferences"`
	Subscription Subscription `json:"subscription"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
}

// MainEmail はmain=trueのメールアドレスを返す。見つからない場合は空文字を返す。
func (c *Customer) MainEmail() string {
	for _, e := range c.Emails {
		if e.Main {
			return e.Address
		}
	}
	return ""
}

// HasEmail は指定アドレス（小文字化済み）が登録済みかどうかを返す。
func (c *Customer) HasEmail(address string) bool {
	for _, e := range c.Emails {
		if e.Address == address {
			return true
		}
	}
	return false
}

// PrivateCustomer はスコープに応じてフィールドを開示する顧客ビュー。
// 許可されていないフィールドはnilのままJSONから省略される。
type PrivateCustomer struct {
	ID           *string        `json:"id,omitempty"`
	Name         *string        `json:"name,omitempty"`
	Class        *CustomerClass `json:"class,omitempty"`
	Emails       []Email        `json:"emails,omitempty"`
	AuthProvider *AuthProvider  `json:"auth_provider,omitempty"`
	Preferences  *Preferences   `json:"preferences,omitempty"`
	Subscription *Subscription  `json:"subscription,omitempty"`
	CreatedAt    *string        `json:"created_at,omitempty"`
	UpdatedAt    *string        `json:"updated_at,omitempty"`
	Deleted      *bool          `json:"deleted,omitempty"`
}

// NewPrivateCustomer は顧客レコードからスコープ制限付きビューを構築する。
// TotalAccessを持つセッションには全フィールドを開示し、
// それ以外はスコープと1対1で対応するフィールドグループのみを開示する。
func NewPrivateCustomer(c *Customer, scopes ScopeSet) *PrivateCustomer {
	view := &PrivateCustomer{}

	if scopes.Has(ScopeTotalAccess) || scopes.Has(ScopeViewPublicID) {
		view.ID = &c.ID
	}
	if scopes.Has(ScopeTotalAccess) || scopes.Has(ScopeViewEmailAddresses) {
		view.Emails = c.Emails
	}
	if scopes.Has(ScopeTotalAccess) || scopes.Has(ScopeViewSubscription) {
		view.Subscription = &c.Subscription
	}
	// プロフィールグループは全フィールドまとめて開示する（個別開示はしない）
	if scopes.Has(ScopeTotalAccess) || scopes.Has(ScopeViewPublicProfile) {
		view.Name = &c.Name
		view.Class = &c.Class
		view.AuthProvider = &c.AuthProvider
		view.Preferences = &c.Preferences
		view.CreatedAt = &c.CreatedAt
		view.UpdatedAt = &c.UpdatedAt
		view.Deleted = &c.Deleted
	}

	return view
}
