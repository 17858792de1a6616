package model

import (
	"fmt"
	"sort"
	"strings"
)

// Scope はセッションに付与される権限を表す。
// トークンのaudクレームには正規化した直列化（重複排除・ソート済み・カンマ結合）で格納する。
type Scope string

const (
	ScopeViewPublicID                Scope = "view_public_id"
	ScopeViewEmailAddresses          Scope = "view_email_addresses"
	ScopeViewPublicProfile           Scope = "view_public_profile"
	ScopeViewPrivateSensitiveProfile Scope = "view_private_sensitive_profile"
	ScopeViewSubscription            Scope = "view_subscription"
	ScopeUpdateName                  Scope = "update_name"
	ScopeUpdateEmailAddresses        Scope = "update_email_addresses"
	ScopeUpdatePreferences           Scope = "update_preferences"
	ScopeTotalAccess                 Scope = "total_access"
)

// ParseScope は文字列をScopeに変換する。未知の値はエラーを返す。
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeViewPublicID, ScopeViewEmailAddresses, ScopeViewPublicProfile,
		ScopeViewPrivateSensitiveProfile, ScopeViewSubscription,
		ScopeUpdateName, ScopeUpdateEmailAddresses, ScopeUpdatePreferences,
		ScopeTotalAccess:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// ScopeSet はスコープの集合。
type ScopeSet map[Scope]struct{}

// NewScopeSet は指定スコープからScopeSetを生成する。
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// ParseScopeSet は正規化直列化（カンマ結合）をScopeSetに復元する。
// 未知のスコープが含まれる場合はエラーを返す（署名対象のクレームを暗黙に捨てない）。
func ParseScopeSet(serialized string) (ScopeSet, error) {
	set := make(ScopeSet)
	if serialized == "" {
		return set, nil
	}
	for _, token := range strings.Split(serialized, ",") {
		scope, err := ParseScope(token)
		if err != nil {
			return nil, err
		}
		set[scope] = struct{}{}
	}
	return set, nil
}

// Has は指定スコープを含むかどうかを返す。
func (s ScopeSet) Has(scope Scope) bool {
	_, ok := s[scope]
	return ok
}

// Satisfies は要求スコープをすべて満たすかどうかを返す。
// TotalAccessを含むセッションは単独で常に要求を満たす。
func (s ScopeSet) Satisfies(required ...Scope) bool {
	if s.Has(ScopeTotalAccess) {
		return true
	}
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// String は正規化直列化を返す。重複を排除しソートした上でカンマ結合する。
func (s ScopeSet) String() string {
	tokens := make([]string, 0, len(s))
	for scope := range s {
		tokens = append(tokens, string(scope))
	}
	sort.Strings(tokens)
	return strings.Join(tokens, ",")
}
