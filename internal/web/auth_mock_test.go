package web

import (
	"context"
	"sync"

	"github.com/conorfennell/flashdeck/internal/auth"
	"github.com/conorfennell/flashdeck/internal/domain"
)

var _ authService = &authServiceMock{}

type authServiceMock struct {
	RegisterFunc func(ctx context.Context, input auth.RegisterInput) (*auth.Result, error)
	LoginFunc    func(ctx context.Context, input auth.LoginInput) (*auth.Result, error)
	LogoutFunc   func(ctx context.Context, token string) error
	ResolveFunc  func(ctx context.Context, token string) (domain.User, error)

	calls struct {
		Resolve []struct {
			Ctx   context.Context
			Token string
		}
	}
	lockResolve sync.RWMutex
}

func (mock *authServiceMock) Register(ctx context.Context, input auth.RegisterInput) (*auth.Result, error) {
	if mock.RegisterFunc == nil {
		panic("authServiceMock.RegisterFunc: method is nil but authService.Register was just called")
	}
	return mock.RegisterFunc(ctx, input)
}

func (mock *authServiceMock) Login(ctx context.Context, input auth.LoginInput) (*auth.Result, error) {
	if mock.LoginFunc == nil {
		panic("authServiceMock.LoginFunc: method is nil but authService.Login was just called")
	}
	return mock.LoginFunc(ctx, input)
}

func (mock *authServiceMock) Logout(ctx context.Context, token string) error {
	if mock.LogoutFunc == nil {
		panic("authServiceMock.LogoutFunc: method is nil but authService.Logout was just called")
	}
	return mock.LogoutFunc(ctx, token)
}

func (mock *authServiceMock) Resolve(ctx context.Context, token string) (domain.User, error) {
	if mock.ResolveFunc == nil {
		panic("authServiceMock.ResolveFunc: method is nil but authService.Resolve was just called")
	}
	callInfo := struct {
		Ctx   context.Context
		Token string
	}{Ctx: ctx, Token: token}
	mock.lockResolve.Lock()
	mock.calls.Resolve = append(mock.calls.Resolve, callInfo)
	mock.lockResolve.Unlock()
	return mock.ResolveFunc(ctx, token)
}

// ResolveCalls gets all the calls that were made to Resolve.
func (mock *authServiceMock) ResolveCalls() []struct {
	Ctx   context.Context
	Token string
} {
	mock.lockResolve.RLock()
	defer mock.lockResolve.RUnlock()
	return mock.calls.Resolve
}
