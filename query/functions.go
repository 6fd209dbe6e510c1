package query

import (
	"sort"
	"sync"
)

// Function is a call-chain entry: a SQL template over the compiled body
// (the value the function is applied to) and its compiled arguments.
type Function struct {
	// Min and Max bound the number of arguments, inclusive.
	Min, Max int
	Render   func(body string, args []string) string
}

// accepts reports whether n arguments satisfy the arity.
func (f Function) accepts(n int) bool {
	return n >= f.Min && n <= f.Max
}

func fixed(n int, render func(string, []string) string) Function {
	return Function{Min: n, Max: n, Render: render}
}

func arg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

var (
	funcMu    sync.RWMutex
	functions = map[string]Function{
		"isAfter": fixed(1, func(body string, args []string) string {
			return "date_trunc('milliseconds', " + body + ") > date_trunc('milliseconds', " + args[0] + ")"
		}),
		"isBefore": fixed(1, func(body string, args []string) string {
			return "date_trunc('milliseconds', " + body + ") < date_trunc('milliseconds', " + args[0] + ")"
		}),
		"isToday": fixed(0, func(body string, _ []string) string {
			return "CAST(" + body + " AS DATE) = CURRENT_DATE"
		}),
		"toDate": fixed(0, func(body string, _ []string) string {
			return "CAST(" + body + " AS DATE)"
		}),
		"toISODate": fixed(0, func(body string, _ []string) string {
			return "to_char(" + body + ", 'YYYY-MM-DD')"
		}),
		"includedIn": fixed(1, func(body string, args []string) string {
			return body + " = ANY(" + args[0] + ")"
		}),
		"startsWith": fixed(1, func(body string, args []string) string {
			return body + " LIKE " + args[0] + " || '%'"
		}),
		"startOf": fixed(1, func(body string, args []string) string {
			return args[0] + " LIKE " + body + " || '%'"
		}),
		"endsWith": fixed(1, func(body string, args []string) string {
			return body + " LIKE '%' || " + args[0]
		}),
		"endOf": fixed(1, func(body string, args []string) string {
			return args[0] + " LIKE '%' || " + body
		}),
		"includes": fixed(1, func(body string, args []string) string {
			return body + " LIKE '%' || " + args[0] + " || '%'"
		}),
		"substringOf": fixed(1, func(body string, args []string) string {
			return args[0] + " LIKE '%' || " + body + " || '%'"
		}),
		"uppercase": fixed(0, func(body string, _ []string) string {
			return "upper(" + body + ")"
		}),
		"lowercase": fixed(0, func(body string, _ []string) string {
			return "lower(" + body + ")"
		}),
		"length": fixed(0, func(body string, _ []string) string {
			return "length(" + body + ")"
		}),
		"byteLength": fixed(0, func(body string, _ []string) string {
			return "octet_length(" + body + ")"
		}),
		// hash and hmac need the pgcrypto extension.
		"hash": {Min: 0, Max: 1, Render: func(body string, args []string) string {
			return "encode(digest(" + body + ", " + arg(args, 0, "'sha256'") + "), 'hex')"
		}},
		"hmac": {Min: 1, Max: 2, Render: func(body string, args []string) string {
			return "encode(hmac(" + body + ", " + args[0] + ", " + arg(args, 1, "'sha256'") + "), 'hex')"
		}},
		"valueOf": fixed(0, func(body string, _ []string) string {
			return body
		}),
	}
)

// RegisterFunction adds or replaces a call-chain function.
func RegisterFunction(name string, fn Function) {
	funcMu.Lock()
	defer funcMu.Unlock()
	functions[name] = fn
}

// LookupFunction returns the function registered under name.
func LookupFunction(name string) (Function, bool) {
	funcMu.RLock()
	defer funcMu.RUnlock()
	fn, ok := functions[name]
	return fn, ok
}

// FunctionNames returns the registered function names, sorted.
func FunctionNames() []string {
	funcMu.RLock()
	defer funcMu.RUnlock()
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
