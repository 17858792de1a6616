// Package customer は顧客アカウント管理のドメインロジックを提供する。
package customer

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/customerd/internal/model"
	"github.com/hitoshi/customerd/internal/repository"
)

const (
	nameMinLength     = 2
	nameMaxLength     = 25
	passwordMinLength = 8
	passwordMaxLength = 100
	maxEmailCount     = 5
)

// Notifier は顧客登録後の外部通知インターフェース。
// brevo.Notifierが実装する。
type Notifier interface {
	// CreateContact は顧客をマーケティングリストへ登録する。
	CreateContact(ctx context.Context, customerID, email string) error
	// SendVerificationEmail はメールアドレス検証メールを送信する。
	SendVerificationEmail(ctx context.Context, name, address, verificationLink string) error
}

// Service は顧客アカウント管理のサービス層。
// 通知は永続化の後に行い、通知の失敗は登録をロールバックしない。
type Service struct {
	customerRepo repository.CustomerRepository
	tokenRepo    repository.VerificationTokenRepository
	notifier     Notifier
	sanitizer    *bluemonday.Policy
	baseURL      string
	verifyTTL    time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierはnilでもよい（外部通知無効）。
func NewService(
	customerRepo repository.CustomerRepository,
	tokenRepo repository.VerificationTokenRepository,
	notifier Notifier,
	baseURL string,
	verifyTTL time.Duration,
) *Service {
	return &Service{
		customerRepo: customerRepo,
		tokenRepo:    tokenRepo,
		notifier:     notifier,
		sanitizer:    bluemonday.StrictPolicy(),
		baseURL:      baseURL,
		verifyTTL:    verifyTTL,
	}
}

// SignupInput は新規登録のリクエスト内容。
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Class           string
	AcceptedTerms   bool
}

// Signup は新規顧客を登録する。
// 顧客レコードの永続化が成功した後に検証メール送信とマーケティング登録を行う。
// 戻り値のboolは検証メール送信に成功したかどうかを示す。
func (s *Service) Signup(ctx context.Context, input SignupInput) (*model.Customer, bool, error) {
	if !input.AcceptedTerms {
		return nil, false, model.NewTermsNotAcceptedError()
	}

	name, err := s.validateName(input.Name)
	if err != nil {
		return nil, false, err
	}

	email := normalizeEmail(input.Email)
	if !isValidEmail(email) {
		return nil, false, model.NewInvalidEmailError()
	}

	if !isValidPassword(input.Password) {
		return nil, false, model.NewInvalidPasswordError()
	}
	if input.Password != input.PasswordConfirm {
		return nil, false, model.NewPasswordMismatchError()
	}
	if input.Password == email {
		return nil, false, model.NewEmailEqualsPasswordError()
	}

	class, err := model.ParseCustomerClass(strings.ToLower(input.Class))
	if err != nil {
		return nil, false, model.NewUnknownClassError(input.Class)
	}

	existing, err := s.customerRepo.FindByIDOrEmail(ctx, "", email)
	if err != nil {
		return nil, false, fmt.Errorf("顧客の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, false, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := nowISO()
	customer := &model.Customer{
		ID:    uuid.New().String(),
		Name:  name,
		Class: class,
		Emails: []model.Email{
			{Address: email, Verified: false, Main: true},
		},
		AuthProvider:     model.ProviderLegacy,
		PasswordHash:     string(hash),
		BackupCodeHashes: []string{},
		Preferences:      model.DefaultPreferences(),
		Subscription:     model.NewFreeSubscription(uuid.New().String(), now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, false, fmt.Errorf("顧客の作成に失敗しました: %w", err)
	}

	slog.Info("新規顧客を登録しました",
		slog.String("customer_id", customer.ID),
		slog.String("class", string(class)),
	)

	notified := s.notifySignup(ctx, customer, email)
	return customer, notified, nil
}

// notifySignup は登録完了後の外部通知をまとめて実行する。
// 顧客レコードは永続化済みなので、ここでの失敗はログに記録するだけで伝播しない。
func (s *Service) notifySignup(ctx context.Context, customer *model.Customer, email string) bool {
	if s.notifier == nil {
		return false
	}

	if err := s.notifier.CreateContact(ctx, customer.ID, email); err != nil {
		slog.Error("マーケティングリストへの登録に失敗しました",
			slog.String("customer_id", customer.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.sendVerification(ctx, customer, email); err != nil {
		slog.Error("検証メールの送信に失敗しました",
			slog.String("customer_id", customer.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// sendVerification は一回限りの検証トークンを発行し、検証メールを送信する。
func (s *Service) sendVerification(ctx context.Context, customer *model.Customer, address string) error {
	token := uuid.New().String()
	if err := s.tokenRepo.Put(ctx, token, customer.ID, address, s.verifyTTL); err != nil {
		return fmt.Errorf("検証トークンの保存に失敗しました: %w", err)
	}

	link := fmt.Sprintf("%s/api/email/verify?token=%s", s.baseURL, url.QueryEscape(token))
	return s.notifier.SendVerificationEmail(ctx, customer.Name, address, link)
}

// Fetch は顧客をIDで取得し、セッションのスコープに応じたビューを返す。
func (s *Service) Fetch(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error) {
	customer, err := s.customerRepo.FindByIDOrEmail(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	if customer == nil || customer.Deleted {
		return nil, model.NewCustomerNotFoundError()
	}
	return model.NewPrivateCustomer(customer, scopes), nil
}

// UpdateName は顧客の名前を更新する。
func (s *Service) UpdateName(ctx context.Context, customerID, name string) error {
	sanitized, err := s.validateName(name)
	if err != nil {
		return err
	}
	if err := s.customerRepo.UpdateName(ctx, customerID, sanitized, nowISO()); err != nil {
		return fmt.Errorf("名前の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdatePassword は現在のパスワードを検証した上で新しいパスワードを設定する。
// OAuth経由のアカウント（パスワードなし）は変更できない。
func (s *Service) UpdatePassword(ctx context.Context, customerID, current, newPassword, confirm string) error {
	customer, err := s.customerRepo.FindByIDOrEmail(ctx, customerID, "")
	if err != nil {
		return fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	if customer == nil || customer.Deleted {
		return model.NewCustomerNotFoundError()
	}
	if customer.AuthProvider != model.ProviderLegacy {
		return model.NewProviderMismatchError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(current)); err != nil {
		return model.NewIncorrectPasswordError()
	}

	if !isValidPassword(newPassword) {
		return model.NewInvalidPasswordError()
	}
	if newPassword != confirm {
		return model.NewPasswordMismatchError()
	}
	if newPassword == customer.MainEmail() {
		return model.NewEmailEqualsPasswordError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	if err := s.customerRepo.UpdatePassword(ctx, customerID, string(hash), nowISO()); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	slog.Info("パスワードを更新しました", slog.String("customer_id", customerID))
	return nil
}

// UpdatePreferences は顧客のUI設定を更新する。
func (s *Service) UpdatePreferences(ctx context.Context, customerID string, prefs model.Preferences) error {
	if err := s.customerRepo.UpdatePreferences(ctx, customerID, prefs, nowISO()); err != nil {
		return fmt.Errorf("設定の更新に失敗しました: %w", err)
	}
	return nil
}

// AddEmail は顧客に未検証のサブメールアドレスを追加する。
// 上限は5件。同一顧客・他顧客を問わず登録済みのアドレスは追加できない。
func (s *Service) AddEmail(ctx context.Context, customerID, address string) error {
	address = normalizeEmail(address)
	if !isValidEmail(address) {
		return model.NewInvalidEmailError()
	}

	customer, err := s.customerRepo.FindByIDOrEmail(ctx, customerID, "")
	if err != nil {
		return fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	if customer == nil || customer.Deleted {
		return model.NewCustomerNotFoundError()
	}
	if len(customer.Emails) >= maxEmailCount {
		return model.NewMaxEmailsReachedError()
	}
	if customer.HasEmail(address) {
		return model.NewEmailTakenError()
	}

	holder, err := s.customerRepo.FindByIDOrEmail(ctx, "", address)
	if err != nil {
		return fmt.Errorf("顧客の検索に失敗しました: %w", err)
	}
	if holder != nil {
		return model.NewEmailTakenError()
	}

	emails := append(customer.Emails, model.Email{Address: address, Verified: false, Main: false})
	if err := s.customerRepo.UpdateEmails(ctx, customerID, emails, nowISO()); err != nil {
		return fmt.Errorf("メールアドレスの追加に失敗しました: %w", err)
	}

	if s.notifier != nil {
		if err := s.sendVerification(ctx, customer, address); err != nil {
			slog.Error("検証メールの送信に失敗しました",
				slog.String("customer_id", customerID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// VerifyEmail は検証トークンを消費してメールアドレスを検証済みにする。
// トークンは一回限りで、消費後は削除される。
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return model.NewInvalidVerifyTokenError()
	}

	vt, err := s.tokenRepo.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("検証トークンの取得に失敗しました: %w", err)
	}
	if vt == nil {
		return model.NewInvalidVerifyTokenError()
	}

	if err := s.customerRepo.MarkEmailVerified(ctx, vt.CustomerID, vt.Address, nowISO()); err != nil {
		return fmt.Errorf("メールアドレスの検証に失敗しました: %w", err)
	}

	if err := s.tokenRepo.Delete(ctx, token); err != nil {
		return fmt.Errorf("検証トークンの削除に失敗しました: %w", err)
	}

	slog.Info("メールアドレスを検証しました",
		slog.String("customer_id", vt.CustomerID),
	)
	return nil
}

// validateName はHTMLタグを除去した上で名前の長さを検証する。
func (s *Service) validateName(name string) (string, error) {
	sanitized := strings.TrimSpace(s.sanitizer.Sanitize(name))
	length := utf8.RuneCountInString(sanitized)
	if length < nameMinLength || length > nameMaxLength {
		return "", model.NewInvalidNameError()
	}
	return sanitized, nil
}

// normalizeEmail はメールアドレスを小文字化・トリムして正規化する。
func normalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// isValidEmail はRFC 5322のアドレス単体として解釈できるかを検証する。
// 表示名付きのアドレスは受け付けない。
func isValidEmail(address string) bool {
	if address == "" {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return false
	}
	return parsed.Address == address
}

// isValidPassword は長さと文字種（英字と数字を各1文字以上）を検証する。
func isValidPassword(password string) bool {
	length := utf8.RuneCountInString(password)
	if length < passwordMinLength || length > passwordMaxLength {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// nowISO は現在時刻のISO-8601（UTC）表現を返す。
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
