package tools

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// 环境变量读取工具：空值或解析失败时返回默认值

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func parseOr[T any](key string, def T, parse func(string) (T, error)) T {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func GetEnv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func GetEnvInt(key string, def int) int { return parseOr(key, def, strconv.Atoi) }

// GetEnvBool also accepts "yes".
func GetEnvBool(key string, def bool) bool {
	return parseOr(key, def, func(s string) (bool, error) {
		if strings.EqualFold(s, "yes") {
			return true, nil
		}
		return strconv.ParseBool(s)
	})
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	return parseOr(key, def, time.ParseDuration)
}

// GetEnvList splits a comma separated value, dropping empty items.
func GetEnvList(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
