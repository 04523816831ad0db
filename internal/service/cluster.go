package service

import (
	"errors"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/ipfs"

	"github.com/jellydator/ttlcache/v2"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// ClusterService routes content-network traffic per project. Cluster
// rows change rarely, so lookups sit behind a short TTL cache.
type ClusterService struct {
	DB    *gorm.DB
	cache *ttlcache.Cache

	// NewNetwork builds a client for an endpoint. Swappable in tests.
	NewNetwork func(endpoint string) ContentNetwork
}

func NewClusterService(db *gorm.DB) *ClusterService {
	cache := ttlcache.NewCache()
	cache.SetTTL(5 * time.Minute)
	cache.SkipTTLExtensionOnHit(true)

	return &ClusterService{
		DB:    db,
		cache: cache,
		NewNetwork: func(endpoint string) ContentNetwork {
			return ipfs.New(endpoint)
		},
	}
}

// ClusterFor returns the project's cluster config, the default cluster
// row, or a synthetic config from the global settings, in that order.
func (s *ClusterService) ClusterFor(projectUUID string) (*model.IpfsCluster, error) {
	if v, err := s.cache.Get(projectUUID); err == nil {
		return v.(*model.IpfsCluster), nil
	}

	cluster := &model.IpfsCluster{}

	err := s.DB.Where("project_uuid = ?", projectUUID).First(cluster).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.DB.Where("project_uuid = ''").First(cluster).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cluster = &model.IpfsCluster{
			APIEndpoint: viper.GetString("ipfs.api_endpoint"),
			Gateway:     viper.GetString("ipfs.gateway"),
		}
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up ipfs cluster, %w", err)
	}

	s.cache.Set(projectUUID, cluster)

	return cluster, nil
}

// NetworkFor returns a content-network client for the project's cluster.
func (s *ClusterService) NetworkFor(projectUUID string) (ContentNetwork, error) {
	cluster, err := s.ClusterFor(projectUUID)
	if err != nil {
		return nil, err
	}

	return s.NewNetwork(cluster.APIEndpoint), nil
}
