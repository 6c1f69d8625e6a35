package applog

// CategoryLogger is a logger bound to one category.
type CategoryLogger interface {
	Category() Category
	Log(level Level, message string, data any, ctx ...map[string]any) (Entry, bool)
	Debug(message string, data any, ctx ...map[string]any)
	Info(message string, data any, ctx ...map[string]any)
	Warn(message string, data any, ctx ...map[string]any)
	Error(message string, data any, ctx ...map[string]any)
	Fatal(message string, data any, ctx ...map[string]any)
}

// Category returns a view of l bound to c. Views hold no state of their own.
func (l *Logger) Category(c Category) CategoryLogger {
	return categoryLogger{l: l, category: c}
}

type categoryLogger struct {
	l        *Logger
	category Category
}

func (c categoryLogger) Category() Category { return c.category }

func (c categoryLogger) Log(level Level, message string, data any, ctx ...map[string]any) (Entry, bool) {
	return c.l.Log(level, c.category, message, data, mergeContext(ctx))
}

func (c categoryLogger) Debug(message string, data any, ctx ...map[string]any) {
	c.Log(LevelDebug, message, data, ctx...)
}

func (c categoryLogger) Info(message string, data any, ctx ...map[string]any) {
	c.Log(LevelInfo, message, data, ctx...)
}

func (c categoryLogger) Warn(message string, data any, ctx ...map[string]any) {
	c.Log(LevelWarn, message, data, ctx...)
}

func (c categoryLogger) Error(message string, data any, ctx ...map[string]any) {
	c.Log(LevelError, message, data, ctx...)
}

func (c categoryLogger) Fatal(message string, data any, ctx ...map[string]any) {
	c.Log(LevelFatal, message, data, ctx...)
}

func mergeContext(ctx []map[string]any) map[string]any {
	switch len(ctx) {
	case 0:
		return nil
	case 1:
		return ctx[0]
	}
	out := make(map[string]any)
	for _, m := range ctx {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Discard returns a CategoryLogger that records nothing.
func Discard(c Category) CategoryLogger {
	return discardLogger(c)
}

type discardLogger Category

func (d discardLogger) Category() Category { return Category(d) }
func (discardLogger) Log(Level, string, any, ...map[string]any) (Entry, bool) {
	return Entry{}, false
}
func (discardLogger) Debug(string, any, ...map[string]any) {}
func (discardLogger) Info(string, any, ...map[string]any)  {}
func (discardLogger) Warn(string, any, ...map[string]any)  {}
func (discardLogger) Error(string, any, ...map[string]any) {}
func (discardLogger) Fatal(string, any, ...map[string]any) {}
