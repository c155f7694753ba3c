// Package auth はこのプロセスのログイン状態を管理する。
// 認証そのもの（資格情報の検証）は外部で行い、結果のユーザーIDだけを受け取る。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

// Session はログイン中のユーザーを保持する。repository.SessionProvider を実装する。
type Session struct {
	repo   repository.SessionRepository
	logger *slog.Logger

	mu       sync.RWMutex
	userID   string
	onLogout []func()
}

// NewSession はSessionを生成する。保存済みのログイン状態は Restore で読み込む。
func NewSession(repo repository.SessionRepository, logger *slog.Logger) *Session {
	return &Session{repo: repo, logger: logger}
}

// Restore は保存済みのログイン状態を読み込む。
func (s *Session) Restore(ctx context.Context) error {
	userID, err := s.repo.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("ログイン状態の復元に失敗しました: %w", err)
	}

	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	if userID != "" {
		s.logger.Info("ログイン状態を復元しました", slog.String("user_id", userID))
	}
	return nil
}

// Login は userID をログインユーザーとして保存する。
// 別のユーザーがログイン中の場合は先にログアウトする。
func (s *Session) Login(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.NewInvalidRequestError("user_id は必須です")
	}

	if current, ok := s.CurrentUserID(); ok && current != userID {
		if err := s.Logout(ctx); err != nil {
			return err
		}
	}

	if err := s.repo.Save(ctx, userID); err != nil {
		return fmt.Errorf("ログインに失敗しました: %w", err)
	}

	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	s.logger.Info("ログインしました", slog.String("user_id", userID))
	return nil
}

// Logout はログイン状態を削除し、登録されたフックを呼ぶ。
func (s *Session) Logout(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("ログアウトに失敗しました: %w", err)
	}

	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	s.logger.Info("ログアウトしました", slog.String("user_id", userID))
	return nil
}

// OnLogout はログアウト時に呼ぶ関数を登録する。ユーザーごとのキャッシュの破棄に使う。
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// CurrentUserID はログイン中のユーザーIDを返す。
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// IsLoggedIn はログイン中かを返す。
func (s *Session) IsLoggedIn() bool {
	_, ok := s.CurrentUserID()
	return ok
}

// compile-time interface check
var _ repository.SessionProvider = (*Session)(nil)
