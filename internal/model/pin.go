package model

// Table names a PinToCrustRequest can reference back into.
const (
	RefTableFile      = "files"
	RefTableDirectory = "directories"
	RefTableBucket    = "buckets"
)

// MaxPinExecutions is the retry cap. Once NumOfExecutions reaches it the
// request is excluded from polling and surfaced as an operator alert.
const MaxPinExecutions = 5

// PinToCrustRequest is one durable "please pin this CID" unit of work.
type PinToCrustRequest struct {
	ID              uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	BucketUUID      string        `gorm:"index;size:36" json:"bucket_uuid"`
	CID             string        `gorm:"column:cid;uniqueIndex" json:"cid"`
	Size            int64         `json:"size"`
	IsDirectory     bool          `json:"is_directory"`
	RefID           string        `json:"ref_id"`
	RefTable        string        `json:"ref_table"`
	PinningStatus   PinningStatus `gorm:"default:0;index" json:"pinning_status"`
	NumOfExecutions int           `json:"num_of_executions"`
	Message         string        `json:"message"`
	RenewalDate     *int64        `json:"renewal_date"`
	CreatedAt       int64         `gorm:"not null" json:"created_at"`
	UpdatedAt       int64         `json:"updated_at"`
}

// IpnsRecord is a mutable name pointing at the latest CID of a bucket or
// collection. Key is derivable from (ProjectUUID, BucketID, ID), which is
// what makes server-side key loss recoverable.
type IpnsRecord struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectUUID string       `gorm:"index;size:36" json:"project_uuid"`
	BucketID    uint         `gorm:"index" json:"-"`
	Name        string       `json:"name"`
	IpnsName    string       `json:"ipns_name"`
	IpnsValue   string       `json:"ipns_value"`
	CID         string       `gorm:"column:cid" json:"cid"`
	Key         string       `json:"key"`
	Status      EntityStatus `gorm:"default:1" json:"-"`
	CreatedAt   int64        `gorm:"not null" json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
}

// IpfsCluster routes a project's traffic to a concrete IPFS endpoint.
// A row with an empty ProjectUUID is the default cluster.
type IpfsCluster struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectUUID    string `gorm:"uniqueIndex;size:36" json:"project_uuid"`
	APIEndpoint    string `json:"api_endpoint"`
	Gateway        string `json:"gateway"`
	BackupEndpoint string `json:"backup_endpoint"`
	Private        bool   `json:"private"`
}
