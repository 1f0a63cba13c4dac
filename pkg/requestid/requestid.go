package requestid

import (
	"context"
	"net/http"
)

// Header is read from incoming requests and echoed on responses.
const Header = "X-Request-Id"

type ctxKey struct{}

func ToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns "" when ctx carries no request id.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
