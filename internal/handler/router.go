package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/customerd/internal/middleware"
	"github.com/hitoshi/customerd/internal/model"
)

// MetricsRecorder はルーター全体で使うメトリクス記録インターフェース。
type MetricsRecorder interface {
	SignupRecorder
	LoginRecorder
	WebhookRecorder
	middleware.HTTPMetricsRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	IdentityService IdentityServiceInterface
	CustomerService CustomerServiceInterface
	Reconciler      ReconcilerInterface

	// Webhook署名検証キー
	WebhookSignatureKey []byte

	// メトリクス。nilでもよい。
	Metrics MetricsRecorder
	// Prometheusエクスポジション用ハンドラー。nilの場合/metricsは公開しない。
	MetricsHandler http.Handler

	// アクセスログ用ロガー。nilの場合はslog.Default()を使用する。
	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Logging
//	→ (認証ルート: SessionMiddleware → RateLimitMiddleware(General))
//
// 未認証ルート（新規登録・ログイン）には認証系レート制限のみを適用する。
// Webhookルートにはレート制限を適用しない（送信側のリトライを誘発しない）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(log))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	identityHandler := NewIdentityHandler(deps.IdentityService, deps.Metrics)
	customerHandler := NewCustomerHandler(deps.CustomerService, deps.Metrics)
	webhookHandler := NewWebhookHandler(deps.Reconciler, deps.WebhookSignatureKey, deps.Metrics)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 新規登録・ログイン（認証系レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/api/customers", customerHandler.Signup)
		r.Post("/api/identity/session/legacy", identityHandler.LoginLegacy)
		r.Get("/api/identity/session/google/login", identityHandler.GoogleLogin)
		r.Get("/api/identity/session/google", identityHandler.GoogleCallback)
	})

	// メール検証（リンク踏み、認証なし）
	r.Get("/api/email/verify", customerHandler.VerifyEmail)

	// 課金プロバイダーWebhook（署名検証のみ、レート制限なし）
	r.Route("/api/webhooks/lemonsqueezy/events", func(r chi.Router) {
		r.Post("/orders", webhookHandler.HandleOrders)
		r.Post("/subscriptions", webhookHandler.HandleSubscriptions)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッション管理
		r.Route("/api/identity/session", func(r chi.Router) {
			r.Get("/", identityHandler.GetSession)
			r.Patch("/", identityHandler.Renew)
			r.Delete("/", identityHandler.Logout)
		})

		// 顧客情報の取得（開示フィールドはセッションのスコープで決まる）
		r.Get("/api/customers", customerHandler.Fetch)

		// 自身の属性更新（操作ごとに要求スコープが異なる）
		r.Route("/api/me", func(r chi.Router) {
			r.With(middleware.RequireScopes(model.ScopeUpdateName)).
				Patch("/name", customerHandler.UpdateName)
			r.With(middleware.RequireScopes(model.ScopeTotalAccess)).
				Patch("/password", customerHandler.UpdatePassword)
			r.With(middleware.RequireScopes(model.ScopeUpdateEmailAddresses)).
				Patch("/email", customerHandler.AddEmail)
			r.With(middleware.RequireScopes(model.ScopeUpdatePreferences)).
				Patch("/preferences", customerHandler.UpdatePreferences)
		})
	})

	return r
}

// handleHealth はヘルスチェックに応答する。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
