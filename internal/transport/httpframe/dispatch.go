package httpframe

import "strings"

// HandlerFunc processes a parsed Request and returns the Response to send.
type HandlerFunc func(Request) Response

// Router implements the lookup rules from §4.3: exact (method, path) match
// first, then the method's handler registered at "/", then any method
// registered at the exact path, finally any method at "/". The any-method
// fallbacks apply only to a method that has at least one handler of its
// own; a method with none is unsupported and finds no handler.
type Router struct {
	exact map[string]HandlerFunc // "METHOD path"
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]HandlerFunc)}
}

// AddHandler registers fn for method+path. method is matched
// case-insensitively.
func (r *Router) AddHandler(method, path string, fn HandlerFunc) {
	r.exact[key(method, path)] = fn
}

// Lookup finds the handler for method+path per the fallback chain, or
// reports ok=false if the method is entirely unsupported for this router
// (the caller should then respond 400 and close).
func (r *Router) Lookup(method, path string) (HandlerFunc, bool) {
	if fn, ok := r.exact[key(method, path)]; ok {
		return fn, true
	}
	if fn, ok := r.exact[key(method, "/")]; ok {
		return fn, true
	}
	supported := false
	prefix := strings.ToUpper(method) + " "
	for k := range r.exact {
		if strings.HasPrefix(k, prefix) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, false
	}
	if fn, ok := r.anyMethod(path); ok {
		return fn, true
	}
	if fn, ok := r.anyMethod("/"); ok {
		return fn, true
	}
	return nil, false
}

func (r *Router) anyMethod(path string) (HandlerFunc, bool) {
	suffix := " " + path
	for k, fn := range r.exact {
		if strings.HasSuffix(k, suffix) {
			return fn, true
		}
	}
	return nil, false
}

func key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
