package web

import (
	"context"

	"github.com/conorfennell/flashdeck/internal/domain"
)

type ctxKey int

const (
	requestInfoKey ctxKey = iota
	userKey
	tokenKey
)

// requestInfo is created once per request by RequestID. Inner handlers fill
// in the user so the access log, which runs outside them, can report it.
type requestInfo struct {
	id     string
	userID int64
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

func requestInfoFromCtx(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

// RequestIDFromCtx returns the request id, or "" outside a request.
func RequestIDFromCtx(ctx context.Context) string {
	if info := requestInfoFromCtx(ctx); info != nil {
		return info.id
	}
	return ""
}

func withUser(ctx context.Context, user domain.User, token string) context.Context {
	if info := requestInfoFromCtx(ctx); info != nil {
		info.userID = user.ID
	}
	ctx = context.WithValue(ctx, tokenKey, token)
	return context.WithValue(ctx, userKey, user)
}

// tokenFromCtx returns the session token the user was resolved from.
func tokenFromCtx(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// UserFromCtx returns the authenticated user, if any.
func UserFromCtx(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey).(domain.User)
	return user, ok
}
