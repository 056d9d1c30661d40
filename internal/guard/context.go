package guard

import "context"

// Ключ identity агента в context.Context. Неэкспортируемый тип исключает
// коллизии с чужими значениями контекста.
type agentKey struct{}

// With привязывает identity агента к контексту. Все обернутые действия,
// вызванные с производными этого контекста, атрибутируются агенту.
// Вложенный With перекрывает внешний: побеждает ближайшая привязка.
func With(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey{}, agent)
}

// Current возвращает identity агента из контекста.
// Второе значение false — привязки нет.
func Current(ctx context.Context) (string, bool) {
	agent, ok := ctx.Value(agentKey{}).(string)
	if !ok || agent == "" {
		return "", false
	}
	return agent, true
}

// Bind оборачивает функцию так, что она всегда исполняется от имени
// агента. Удобно для регистрации колбэков во внешних фреймворках,
// которые сами управляют контекстом вызова.
func Bind[T any](agent string, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return fn(With(ctx, agent))
	}
}
