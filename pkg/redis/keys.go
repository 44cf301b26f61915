package redis

import "fmt"

// MutateRateLimitKey 统一约定写接口限流键名（按来源 IP）。
func MutateRateLimitKey(ip string) string {
	return fmt.Sprintf("stockguard:rate_limit:ip:%s", ip)
}
