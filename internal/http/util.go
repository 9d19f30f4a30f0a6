package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"slideboard-measure/internal/domain"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// sessionFromReq 从网关注入的请求头构造会话
// X-User-Role 支持逗号分隔的多个角色
func sessionFromReq(r *http.Request) *domain.Session {
	s := &domain.Session{
		TenantID: headerValue(r, "X-Tenant-Id"),
		UserID:   headerValue(r, "X-User-Id"),
	}
	for _, role := range strings.Split(r.Header.Get("X-User-Role"), ",") {
		if role = strings.TrimSpace(role); role != "" {
			s.Roles = append(s.Roles, strings.ToUpper(role))
		}
	}
	return s
}

// headerValue 前端未登录时可能传 "null"
func headerValue(r *http.Request, key string) string {
	v := strings.TrimSpace(r.Header.Get(key))
	if v == "null" {
		return ""
	}
	return v
}
