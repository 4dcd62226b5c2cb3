package grpcserver

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestWithUserID_And_UserIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := UserIDFromCtx(context.Background()); ok || id != "" {
		t.Fatalf("expected no user id in empty ctx")
	}

	ctx := WithUserID(context.Background(), "u1")
	got, ok := UserIDFromCtx(ctx)
	if !ok || got != "u1" {
		t.Fatalf("got %q, %v", got, ok)
	}

	if _, ok := UserIDFromCtx(WithUserID(context.Background(), "")); ok {
		t.Fatalf("empty id must read as signed out")
	}
}

func Test_bearerTokenFromMD(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("got %q, %v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer   spaced  "))
	if got, _ := bearerTokenFromMD(ctx); got != "spaced" {
		t.Fatalf("case-insensitive scheme and trimming: got %q", got)
	}

	for _, md := range []metadata.MD{
		metadata.Pairs("authorization", "Basic xxx"),
		metadata.Pairs("authorization", "Bearer   "),
		metadata.Pairs(),
	} {
		if _, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), md)); err == nil {
			t.Fatalf("expected error for %v", md)
		}
	}
	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("expected error without metadata")
	}
}

type stubVerifier map[string]string

func (s stubVerifier) UserID(tok string) (string, error) {
	if uid, ok := s[tok]; ok {
		return uid, nil
	}
	return "", errors.New("invalid token")
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	ic := AuthUnary(stubVerifier{"good": "u1"})
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	var seen string
	h := func(ctx context.Context, req any) (any, error) {
		seen, _ = UserIDFromCtx(ctx)
		return "ok", nil
	}

	if _, err := ic(context.Background(), nil, info, h); err != nil || seen != "" {
		t.Fatalf("anonymous call: seen=%q err=%v", seen, err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer good"))
	if _, err := ic(ctx, nil, info, h); err != nil || seen != "u1" {
		t.Fatalf("authed call: seen=%q err=%v", seen, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer forged"))
	_, err := ic(ctx, nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}
