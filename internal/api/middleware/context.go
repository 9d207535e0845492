package middleware

import (
	"context"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	contextKeyActor   contextKey = "actor"
	contextKeyAPIKey  contextKey = "api_key"
	contextKeySubject contextKey = "subject_holder"
)

// subjectHolder передаёт субъекта запроса из auth middleware
// обратно в RequestLogger.
type subjectHolder struct {
	subject string
}

func withSubjectHolder(ctx context.Context, h *subjectHolder) context.Context {
	return context.WithValue(ctx, contextKeySubject, h)
}

func setSubject(ctx context.Context, subject string) {
	if h, ok := ctx.Value(contextKeySubject).(*subjectHolder); ok {
		h.subject = subject
	}
}

// WithActor помещает контекст пользователя в context.
func WithActor(ctx context.Context, actor rbac.Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFromContext извлекает контекст пользователя.
// ok == false, если запрос не прошёл JWT-аутентификацию.
func ActorFromContext(ctx context.Context) (rbac.Actor, bool) {
	a, ok := ctx.Value(contextKeyActor).(rbac.Actor)
	return a, ok
}

// WithAPIKey помещает проверенный API-ключ в context.
func WithAPIKey(ctx context.Context, k *model.APIKey) context.Context {
	return context.WithValue(ctx, contextKeyAPIKey, k)
}

// APIKeyFromContext извлекает API-ключ. nil — запрос без ключа.
func APIKeyFromContext(ctx context.Context) *model.APIKey {
	k, _ := ctx.Value(contextKeyAPIKey).(*model.APIKey)
	return k
}
