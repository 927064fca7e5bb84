// Package redact masks secrets before command lines and environments reach
// the logs.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[redacted]"

var (
	secretKeyPattern  = regexp.MustCompile(`(?i)\b(` + strings.Join(escaped(secretKeys), "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	secretFlagPattern = regexp.MustCompile(`(?i)^--?(` + strings.Join(escaped(secretFlags), "|") + `)(=.*)?$`)
)

var secretKeys = []string{
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AZURE_CLIENT_SECRET",
	"DATABASE_PASSWORD",
	"DB_PASSWORD",
	"API_KEY",
	"ACCESS_TOKEN",
	"REFRESH_TOKEN",
	"CLIENT_SECRET",
	"PASSWORD",
	"PASSPHRASE",
}

var secretFlags = []string{
	"passphrase",
	"passphrase-fd",
	"password",
	"pin",
	"token",
	"api-key",
	"secret",
}

func escaped(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = regexp.QuoteMeta(key)
	}
	return out
}

// Secrets masks known secret key assignments (KEY=value, KEY: value) in s.
func Secrets(s string) string {
	if s == "" {
		return s
	}
	return secretKeyPattern.ReplaceAllString(s, "$1$2$3"+placeholder+"$5")
}

// Args returns a copy of args with secret-bearing flag values masked. Both
// "--flag=value" and "--flag value" forms are handled; other tokens go
// through Secrets.
func Args(args []string) []string {
	out := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		switch {
		case maskNext:
			out[i] = placeholder
			maskNext = false
		case secretFlagPattern.MatchString(arg):
			m := secretFlagPattern.FindStringSubmatch(arg)
			if m[2] == "" {
				out[i] = arg
				maskNext = true
				continue
			}
			out[i] = strings.TrimSuffix(arg, m[2]) + "=" + placeholder
		default:
			out[i] = Secrets(arg)
		}
	}
	return out
}

// Env masks the values of KEY=value pairs whose key names a secret.
func Env(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		out[i] = Secrets(kv)
	}
	return out
}
