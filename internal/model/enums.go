package model

import "fmt"

// CustomerClass は顧客のアカウント種別を表す。
type CustomerClass string

const (
	ClassPersonal  CustomerClass = "personal"
	ClassManager   CustomerClass = "manager"
	ClassDeveloper CustomerClass = "developer"
)

// ParseCustomerClass は文字列をCustomerClassに変換する。
// 未知の値はエラーを返す（暗黙にデフォルトへ倒さない）。
func ParseCustomerClass(s string) (CustomerClass, error) {
	switch CustomerClass(s) {
	case ClassPersonal, ClassManager, ClassDeveloper:
		return CustomerClass(s), nil
	default:
		return "", fmt.Errorf("unknown customer class: %q", s)
	}
}

// AuthProvider は認証プロバイダーを表す。
type AuthProvider string

const (
	ProviderLegacy AuthProvider = "legacy"
	ProviderGoogle AuthProvider = "google"
)

// ParseAuthProvider は文字列をAuthProviderに変換する。未知の値はエラーを返す。
func ParseAuthProvider(s string) (AuthProvider, error) {
	switch AuthProvider(s) {
	case ProviderLegacy, ProviderGoogle:
		return AuthProvider(s), nil
	default:
		return "", fmt.Errorf("unknown auth provider: %q", s)
	}
}

// SubscriptionSlug はサブスクリプションのプランを表す。
type SubscriptionSlug string

const (
	SlugFree SubscriptionSlug = "free"
	SlugPro  SubscriptionSlug = "pro"
)

// SubscriptionFrequency は課金周期を表す。無課金プランはUNDEFINED。
type SubscriptionFrequency string

const (
	FrequencyMonthly   SubscriptionFrequency = "monthly"
	FrequencyAnnually  SubscriptionFrequency = "annually"
	FrequencyUndefined SubscriptionFrequency = "undefined"
)

// ParseSubscriptionFrequency は文字列をSubscriptionFrequencyに変換する。
// 未知の値はエラーを返す。
func ParseSubscriptionFrequency(s string) (SubscriptionFrequency, error) {
	switch SubscriptionFrequency(s) {
	case FrequencyMonthly, FrequencyAnnually, FrequencyUndefined:
		return SubscriptionFrequency(s), nil
	default:
		return "", fmt.Errorf("unknown subscription frequency: %q", s)
	}
}
