package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QuotaService fetches a project's bucket quota from the subscription
// service. Enforcement happens in the propagation engine, this is only
// the number's source. When the service is unreachable or unconfigured
// the configured default applies.
type QuotaService struct {
	Endpoint string
	Default  int64
	http     *http.Client
}

func NewQuotaService() *QuotaService {
	return &QuotaService{
		Endpoint: viper.GetString("quota.endpoint"),
		Default:  viper.GetInt64("quota.default_bucket_size"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// MaxBucketSize returns the byte quota for one of the project's buckets.
func (q *QuotaService) MaxBucketSize(ctx context.Context, projectUUID string) int64 {
	if q.Endpoint == "" {
		return q.Default
	}

	u := q.Endpoint + "?project_uuid=" + url.QueryEscape(projectUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return q.Default
	}

	resp, err := q.http.Do(req)
	if err != nil {
		zap.L().Warn("Quota service unreachable, using default",
			zap.String("project_uuid", projectUUID), zap.Error(err))
		return q.Default
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("Quota service returned unexpected status",
			zap.Int("status", resp.StatusCode))
		return q.Default
	}

	var out struct {
		MaxBucketSize int64 `json:"maxBucketSize"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.MaxBucketSize <= 0 {
		zap.L().Warn("Quota service returned unusable payload", zap.Error(err))
		return q.Default
	}

	return out.MaxBucketSize
}
